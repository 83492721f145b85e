package guard

import "time"

// Limits is the immutable resource cap set. Every byte-returning operation
// truncates deterministically at its cap and reports the truncation; a caller
// asking for more than a cap allows is an input error with the cap disclosed,
// never a silent clamp.
type Limits struct {
	MaxReadBytes   int64
	MaxOutputBytes int64
	MaxValueBytes  int64
	MaxRows        int
	MaxEntries     int
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// ClampTimeout resolves a caller-requested timeout in seconds against the
// limits. Zero means the policy default. A request above the maximum is
// rejected with TimeoutTooLarge; the caller finds the cap in the rejection
// and retries within it.
func (l Limits) ClampTimeout(requestedSeconds int) (time.Duration, *Rejection) {
	if requestedSeconds == 0 {
		return l.DefaultTimeout, nil
	}
	if requestedSeconds < 0 {
		return 0, Reject(KindMalformedSyntax, "timeout must be positive")
	}
	d := time.Duration(requestedSeconds) * time.Second
	if l.MaxTimeout > 0 && d > l.MaxTimeout {
		maxSeconds := int64(l.MaxTimeout / time.Second)
		return 0, RejectCap(KindTimeoutTooLarge, maxSeconds,
			"requested timeout %ds exceeds the maximum %ds", requestedSeconds, maxSeconds)
	}
	return d, nil
}

// CapBytes resolves a caller-requested byte cap against a policy maximum.
// Zero means the policy maximum itself.
func CapBytes(requested, max int64) (int64, *Rejection) {
	if requested == 0 {
		return max, nil
	}
	if requested < 0 {
		return 0, Reject(KindMalformedSyntax, "byte cap must be positive")
	}
	if max > 0 && requested > max {
		return 0, RejectCap(KindPayloadTooLarge, max,
			"requested cap %d exceeds the maximum %d bytes", requested, max)
	}
	return requested, nil
}

// CapCount resolves a caller-requested row/entry count against a policy
// maximum. Zero means the policy maximum itself.
func CapCount(requested, max int) (int, *Rejection) {
	if requested == 0 {
		return max, nil
	}
	if requested < 0 {
		return 0, Reject(KindMalformedSyntax, "count cap must be positive")
	}
	if max > 0 && requested > max {
		return 0, RejectCap(KindPayloadTooLarge, int64(max),
			"requested cap %d exceeds the maximum %d", requested, max)
	}
	return requested, nil
}

// Truncate returns at most cap bytes of b and whether anything was dropped.
// The kept prefix is exact: cap bytes when len(b) > cap, all of b otherwise.
func Truncate(b []byte, cap int64) ([]byte, bool) {
	if cap <= 0 || int64(len(b)) <= cap {
		return b, false
	}
	return b[:cap], true
}
