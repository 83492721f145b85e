package guard

import (
	"regexp"
	"strings"
)

// DefaultMaxIdentLen matches the identifier length limit common to SQL
// engines.
const DefaultMaxIdentLen = 63

// identPattern is the only grammar an identifier may have. Anything that
// passes it is safe to interpolate into generated SQL text, the one place
// interpolation is acceptable, because identifiers structurally cannot go
// through query placeholders. All other values must be parameterized.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IdentPolicy is the immutable identifier rule set.
type IdentPolicy struct {
	// MaxLen caps identifier length; zero means DefaultMaxIdentLen.
	MaxLen int
	// ReservedPrefixes are system namespaces (pg_, sqlite_) no user
	// identifier may claim. Compared case-folded, the way SQL engines treat
	// unquoted names.
	ReservedPrefixes []string
	// Schemas is the fixed schema allow-list for ValidateSchemaName.
	Schemas []string
}

func (p IdentPolicy) maxLen() int {
	if p.MaxLen > 0 {
		return p.MaxLen
	}
	return DefaultMaxIdentLen
}

// ValidateIdentifier accepts raw only if it matches the identifier grammar,
// fits the length limit, and claims no reserved system prefix.
func ValidateIdentifier(raw string, pol IdentPolicy) (string, *Rejection) {
	if raw == "" {
		return "", Reject(KindMalformedSyntax, "identifier is empty")
	}
	if len(raw) > pol.maxLen() {
		return "", RejectCap(KindMalformedSyntax, int64(pol.maxLen()),
			"identifier exceeds %d characters", pol.maxLen())
	}
	if !identPattern.MatchString(raw) {
		return "", Reject(KindMalformedSyntax, "identifier must match [A-Za-z_][A-Za-z0-9_]*")
	}
	folded := strings.ToLower(raw)
	for _, prefix := range pol.ReservedPrefixes {
		if strings.HasPrefix(folded, prefix) {
			return "", Reject(KindSystemReserved, "identifier uses the reserved prefix %q", prefix)
		}
	}
	return raw, nil
}

// ValidateSchemaName accepts raw only if it is a valid identifier AND a
// member of the policy's fixed schema allow-list, never an arbitrary name.
func ValidateSchemaName(raw string, pol IdentPolicy) (string, *Rejection) {
	name, rej := ValidateIdentifier(raw, pol)
	if rej != nil {
		return "", rej
	}
	if !member(pol.Schemas, name) {
		return "", Reject(KindSchemaNotAllowed, "schema %q is not in the allowed set", name)
	}
	return name, nil
}
