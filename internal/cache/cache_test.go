package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/guard"
)

func TestValidateKeyAcceptsGrammar(t *testing.T) {
	for _, key := range []string{"session:42", "user.profile", "a", "A-B_c.d:e", "0123"} {
		if rej := ValidateKey(key); rej != nil {
			t.Fatalf("%q: expected valid, got %v", key, rej)
		}
	}
}

func TestValidateKeyRejectsMetacharacters(t *testing.T) {
	cases := []string{
		"",
		"key with space",
		"key*",
		"key?",
		"key[a]",
		"key\n",
		"key/slash",
		"ключ",
	}
	for _, key := range cases {
		rej := ValidateKey(key)
		if rej == nil {
			t.Fatalf("%q: expected rejection", key)
		}
		if rej.Kind != guard.KindMalformedSyntax {
			t.Fatalf("%q: expected MalformedSyntax, got %s", key, rej.Kind)
		}
	}
}

func TestValidateKeyRejectsOverlongKey(t *testing.T) {
	rej := ValidateKey(strings.Repeat("k", MaxKeyLen+1))
	if rej == nil {
		t.Fatal("expected rejection")
	}
	if rej.Cap != MaxKeyLen {
		t.Fatalf("expected cap %d disclosed, got %d", MaxKeyLen, rej.Cap)
	}
}

func TestClampTTLDefaultsToMax(t *testing.T) {
	svc := Service{MaxTTL: time.Hour}

	ttl, rej := svc.ClampTTL(0)
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if ttl != time.Hour {
		t.Fatalf("expected 1h, got %v", ttl)
	}
}

func TestClampTTLRejectsAboveMax(t *testing.T) {
	svc := Service{MaxTTL: time.Hour}

	_, rej := svc.ClampTTL(7200)
	if rej == nil {
		t.Fatal("expected rejection")
	}
	if rej.Kind != guard.KindTimeoutTooLarge {
		t.Fatalf("expected TimeoutTooLarge, got %s", rej.Kind)
	}
	if rej.Cap != 3600 {
		t.Fatalf("expected cap 3600 seconds, got %d", rej.Cap)
	}
}

func TestClampTTLRejectsNegative(t *testing.T) {
	svc := Service{MaxTTL: time.Hour}

	_, rej := svc.ClampTTL(-1)
	if rej == nil || rej.Kind != guard.KindMalformedSyntax {
		t.Fatalf("expected MalformedSyntax, got %v", rej)
	}
}

// Validation runs before any network call, so a nil client is safe for the
// rejection paths.
func TestOperationsRejectBeforeTouchingRedis(t *testing.T) {
	svc := Service{MaxTTL: time.Hour, Limits: guard.Limits{MaxValueBytes: 16, MaxEntries: 10}}
	ctx := context.Background()

	if _, err := svc.Get(ctx, "bad key"); err == nil {
		t.Fatal("get: expected rejection")
	}
	if err := svc.Set(ctx, "bad key", "v", 0); err == nil {
		t.Fatal("set: expected rejection")
	}
	if err := svc.Set(ctx, "ok", strings.Repeat("x", 32), 0); err == nil {
		t.Fatal("set: expected oversized value rejection")
	} else if rej, ok := guard.AsRejection(err); !ok || rej.Kind != guard.KindPayloadTooLarge {
		t.Fatalf("set: expected PayloadTooLarge, got %v", err)
	}
	if err := svc.Set(ctx, "ok", "v", 999999); err == nil {
		t.Fatal("set: expected ttl rejection")
	}
	if _, err := svc.Del(ctx, "bad key"); err == nil {
		t.Fatal("del: expected rejection")
	}
	if _, err := svc.Keys(ctx, "bad*prefix", 0); err == nil {
		t.Fatal("keys: expected rejection")
	}
	if _, err := svc.Keys(ctx, "ok", 1000); err == nil {
		t.Fatal("keys: expected cap rejection")
	}
}
