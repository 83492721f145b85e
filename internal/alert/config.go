// Package alert fans out webhook notifications when the gateway denies a
// request. Alerts are fire-and-forget: a webhook failure never affects the
// decision already made.
package alert

// Config defines one webhook destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic" or "slack"
	Events  []string          `yaml:"events"  json:"events"` // decisions ("deny") or rejection kinds ("Blocked")
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints. Resource is redacted
// before it gets here; the raw input never leaves the gateway.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
	Operation  string `json:"operation"`
	Resource   string `json:"resource"`
	Decision   string `json:"decision"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
	PolicyHash string `json:"policy_hash"`
}
