// Package audit is the hash-chained JSONL decision log. Every gateway
// decision on every surface appends one line whose prev_hash is the SHA-256
// of the previous line, making after-the-fact tampering detectable by a
// single forward walk.
package audit

// Entry is one line in the audit log. All fields are flat scalars (no
// map[string]any) to guarantee deterministic json.Marshal field order for
// reproducible hashing. Resource is stored post-redaction; raw secrets never
// reach the log.
type Entry struct {
	Timestamp  string `json:"ts"`
	Source     string `json:"source"`
	Operation  string `json:"operation"`
	Resource   string `json:"resource"`
	Decision   string `json:"decision"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	PolicyHash string `json:"policy_hash"`
	DurationMS int64  `json:"duration_ms"`
	PrevHash   string `json:"prev_hash"`
}
