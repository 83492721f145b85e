package toolgate

import "fmt"

// APIError is the gateway's error envelope plus the HTTP status it arrived
// with. Kind names the specific check that failed; Class groups kinds into
// the four failure families the gateway reports.
type APIError struct {
	Kind   string `json:"kind"`
	Class  string `json:"class"`
	Detail string `json:"detail,omitempty"`
	Cap    int64  `json:"cap,omitempty"`
	Status int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("toolgate: %s (%s): %s", e.Kind, e.Class, e.Detail)
	}
	return fmt.Sprintf("toolgate: %s (%s)", e.Kind, e.Class)
}

// Refused reports whether the gateway's policy rejected the request, as
// opposed to a malformed request, a missing target, or an upstream failure.
func (e *APIError) Refused() bool { return e.Class == "PolicyViolation" }

// NotFound reports whether the validated target does not exist.
func (e *APIError) NotFound() bool { return e.Class == "NotFound" }

// CheckResult is the verdict of a validation-only check.
type CheckResult struct {
	Valid      bool     `json:"valid"`
	Normalized string   `json:"normalized,omitempty"`
	Argv       []string `json:"argv,omitempty"`
}

// ReadResult is the outcome of a file read.
type ReadResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated"`
}

// WriteResult is the outcome of a file write.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListResult is the outcome of a directory listing.
type ListResult struct {
	Path      string     `json:"path"`
	Entries   []DirEntry `json:"entries"`
	Truncated bool       `json:"truncated"`
}

// StatResult is the outcome of a stat.
type StatResult struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	ModTime string `json:"mod_time"`
	IsDir   bool   `json:"is_dir"`
}

// ExecResult captures one subprocess execution.
type ExecResult struct {
	Argv            []string `json:"argv"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	ExitCode        int      `json:"exit_code"`
	Killed          bool     `json:"killed"`
	StdoutTruncated bool     `json:"stdout_truncated"`
	StderrTruncated bool     `json:"stderr_truncated"`
	DurationMS      int64    `json:"duration_ms"`
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// SelectQuery is the shape of a guarded select.
type SelectQuery struct {
	Schema  string         `json:"schema,omitempty"`
	Table   string         `json:"table"`
	Columns []string       `json:"columns,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// SelectResult is the outcome of a guarded select.
type SelectResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// CacheValue is the outcome of a cache get.
type CacheValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// CacheKeys is the outcome of a cache key listing.
type CacheKeys struct {
	Keys      []string `json:"keys"`
	Truncated bool     `json:"truncated"`
}

// FetchResult is the outcome of a guarded fetch.
type FetchResult struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated"`
	ContentType string `json:"content_type"`
}
