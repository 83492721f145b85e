package ratelimit

import (
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

func newTestLimiter(limits map[model.Operation]Limit) (*Limiter, *time.Time) {
	l := New(limits)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestAllowUnlimitedByDefault(t *testing.T) {
	l, _ := newTestLimiter(nil)
	for i := 0; i < 100; i++ {
		if _, ok := l.Allow(model.OpExec); !ok {
			t.Fatal("no configured limit should mean unlimited")
		}
	}
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := newTestLimiter(map[model.Operation]Limit{
		model.OpExec: {MaxRequests: 3, Window: time.Minute},
	})
	for i := 0; i < 3; i++ {
		if _, ok := l.Allow(model.OpExec); !ok {
			t.Fatalf("request %d should be within the limit", i+1)
		}
	}
	retry, ok := l.Allow(model.OpExec)
	if ok {
		t.Fatal("fourth request should exceed the limit")
	}
	if retry <= 0 {
		t.Errorf("retry-after should be positive, got %v", retry)
	}
}

func TestAllowWindowSlides(t *testing.T) {
	l, current := newTestLimiter(map[model.Operation]Limit{
		model.OpExec: {MaxRequests: 2, Window: time.Minute},
	})

	l.Allow(model.OpExec)
	l.Allow(model.OpExec)
	if _, ok := l.Allow(model.OpExec); ok {
		t.Fatal("limit should be reached")
	}

	*current = current.Add(61 * time.Second)
	if _, ok := l.Allow(model.OpExec); !ok {
		t.Error("window should have slid past the old hits")
	}
}

func TestAllowPerOperationIsolation(t *testing.T) {
	l, _ := newTestLimiter(map[model.Operation]Limit{
		model.OpExec: {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow(model.OpExec)
	if _, ok := l.Allow(model.OpExec); ok {
		t.Fatal("exec limit should be reached")
	}
	if _, ok := l.Allow(model.OpFSRead); !ok {
		t.Error("fs.read has no limit and must not share the exec window")
	}
}

func TestExceededRequestNotRecorded(t *testing.T) {
	l, current := newTestLimiter(map[model.Operation]Limit{
		model.OpFetch: {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow(model.OpFetch)
	for i := 0; i < 10; i++ {
		l.Allow(model.OpFetch)
	}
	// Only the single recorded hit has to age out, not the rejected ones.
	*current = current.Add(61 * time.Second)
	if _, ok := l.Allow(model.OpFetch); !ok {
		t.Error("rejected requests must not extend the window")
	}
}

func TestSetLimitsOnReload(t *testing.T) {
	l, _ := newTestLimiter(map[model.Operation]Limit{
		model.OpExec: {MaxRequests: 1, Window: time.Minute},
	})
	l.Allow(model.OpExec)
	if _, ok := l.Allow(model.OpExec); ok {
		t.Fatal("limit should be reached")
	}

	l.SetLimits(map[model.Operation]Limit{
		model.OpExec: {MaxRequests: 10, Window: time.Minute},
	})
	if _, ok := l.Allow(model.OpExec); !ok {
		t.Error("raised limit should apply immediately after reload")
	}
}
