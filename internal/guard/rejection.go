// Package guard is the validation core of the gateway. Every untrusted input
// (filesystem path, command line, SQL identifier, timeout, byte cap) passes
// through one of its validators before the wrapped capability is touched.
// Validators are pure functions over an immutable policy: the same input under
// the same policy always yields the same result, and a rejection always
// prevents the operation entirely.
package guard

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names one rejection cause.
type Kind string

const (
	KindEmptyPath           Kind = "EmptyPath"
	KindBlocked             Kind = "Blocked"
	KindTraversalDetected   Kind = "TraversalDetected"
	KindOutsideAllowedRoots Kind = "OutsideAllowedRoots"
	KindMalformedSyntax     Kind = "MalformedSyntax"
	KindEmptyCommand        Kind = "EmptyCommand"
	KindCommandNotAllowed   Kind = "CommandNotAllowed"
	KindSystemReserved      Kind = "SystemReserved"
	KindSchemaNotAllowed    Kind = "SchemaNotAllowed"
	KindTimeoutTooLarge     Kind = "TimeoutTooLarge"
	KindPayloadTooLarge     Kind = "PayloadTooLarge"
	KindRateLimited         Kind = "RateLimited"
	KindUnknownOperation    Kind = "UnknownOperation"
)

// Class groups kinds by how callers should treat them.
type Class string

const (
	// ClassInputMalformed: the input cannot be interpreted. Client error,
	// never retried.
	ClassInputMalformed Class = "InputMalformed"
	// ClassPolicyViolation: the input is well-formed but policy forbids it.
	// Client error; the detail names only the violated rule's category.
	ClassPolicyViolation Class = "PolicyViolation"
	// ClassResourceExceeded: a requested size or timeout is over the policy
	// cap. Client error with the cap disclosed so the caller can retry
	// within bounds.
	ClassResourceExceeded Class = "ResourceExceeded"
	// ClassUpstreamFailure: the wrapped capability itself failed after
	// validation passed. Server error; retry policy belongs to the caller.
	ClassUpstreamFailure Class = "UpstreamFailure"
)

// Class returns the taxonomy class for a kind.
func (k Kind) Class() Class {
	switch k {
	case KindEmptyPath, KindEmptyCommand, KindMalformedSyntax, KindUnknownOperation:
		return ClassInputMalformed
	case KindTimeoutTooLarge, KindPayloadTooLarge:
		return ClassResourceExceeded
	default:
		return ClassPolicyViolation
	}
}

// HTTPStatus returns the response status a handler maps this kind to.
func (k Kind) HTTPStatus() int {
	switch k.Class() {
	case ClassInputMalformed, ClassResourceExceeded:
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// Rejection is the structured refusal returned by every validator. It
// implements error so it can flow through ordinary error returns; callers
// recover it with AsRejection.
type Rejection struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
	// Cap carries the violated limit for ResourceExceeded kinds (seconds for
	// timeouts, bytes or counts otherwise) and the retry-after interval in
	// seconds for RateLimited.
	Cap int64 `json:"cap,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("rejected (%s)", r.Kind)
	}
	return fmt.Sprintf("rejected (%s): %s", r.Kind, r.Detail)
}

// Reject builds a Rejection with a formatted detail.
func Reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// RejectCap builds a ResourceExceeded-style Rejection carrying the violated
// cap.
func RejectCap(kind Kind, cap int64, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Detail: fmt.Sprintf(format, args...), Cap: cap}
}

// AsRejection unwraps a *Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
