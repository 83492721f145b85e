// Package fsio is the guarded filesystem capability: read, write, list, and
// stat, each validating its path against the policy before touching anything.
// Reads and listings truncate deterministically at the caller's cap and
// report the truncation.
package fsio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ppiankov/toolgate/internal/guard"
)

// Service is a stateless value over the current policy. Rebuilt on reload.
type Service struct {
	Paths  guard.PathPolicy
	Limits guard.Limits
}

// ReadResult is the outcome of a guarded file read.
type ReadResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated"`
}

// WriteResult is the outcome of a guarded file write.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

// DirEntry is one row of a guarded listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListResult is the outcome of a guarded directory listing.
type ListResult struct {
	Path      string     `json:"path"`
	Entries   []DirEntry `json:"entries"`
	Truncated bool       `json:"truncated"`
}

// StatResult is the outcome of a guarded stat.
type StatResult struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Mode    string    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}

// Read returns at most maxBytes of the file at path. maxBytes zero means the
// policy cap; above the policy cap is a rejection with the cap disclosed.
// Size reports the bytes returned, not the on-disk size.
func (s Service) Read(path string, maxBytes int64) (*ReadResult, error) {
	canonical, rej := guard.ValidatePath(path, s.Paths)
	if rej != nil {
		return nil, rej
	}
	cap, rej := guard.CapBytes(maxBytes, s.Limits.MaxReadBytes)
	if rej != nil {
		return nil, rej
	}

	f, err := os.Open(canonical)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", canonical, err)
	}
	defer f.Close()

	// Read one byte past the cap to distinguish "exactly cap bytes" from
	// "more than cap bytes".
	data, err := io.ReadAll(io.LimitReader(f, cap+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", canonical, err)
	}
	content, truncated := guard.Truncate(data, cap)

	return &ReadResult{
		Path:      canonical,
		Content:   string(content),
		Size:      int64(len(content)),
		Truncated: truncated,
	}, nil
}

// Write stores content at path, creating parent directories inside the
// sandbox as needed. Content above the policy value cap is rejected, never
// silently truncated: a partial write is worse than no write.
func (s Service) Write(path, content string) (*WriteResult, error) {
	canonical, rej := guard.ValidatePath(path, s.Paths)
	if rej != nil {
		return nil, rej
	}
	if max := s.Limits.MaxValueBytes; max > 0 && int64(len(content)) > max {
		return nil, guard.RejectCap(guard.KindPayloadTooLarge, max,
			"content is %d bytes, the maximum is %d", len(content), max)
	}

	// The parent directory is inside an allowed root whenever the target is:
	// containment is boundary-aware and the canonical path is at or below a
	// root.
	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return nil, fmt.Errorf("create parent of %s: %w", canonical, err)
	}
	if err := os.WriteFile(canonical, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", canonical, err)
	}

	return &WriteResult{Path: canonical, BytesWritten: len(content)}, nil
}

// List returns at most maxEntries entries of the directory at path, sorted
// by name.
func (s Service) List(path string, maxEntries int) (*ListResult, error) {
	canonical, rej := guard.ValidatePath(path, s.Paths)
	if rej != nil {
		return nil, rej
	}
	cap, rej := guard.CapCount(maxEntries, s.Limits.MaxEntries)
	if rej != nil {
		return nil, rej
	}

	entries, err := os.ReadDir(canonical)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", canonical, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	truncated := false
	if cap > 0 && len(entries) > cap {
		entries = entries[:cap]
		truncated = true
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			de.Size = info.Size()
		}
		out = append(out, de)
	}

	return &ListResult{Path: canonical, Entries: out, Truncated: truncated}, nil
}

// Stat returns metadata for the file or directory at path.
func (s Service) Stat(path string) (*StatResult, error) {
	canonical, rej := guard.ValidatePath(path, s.Paths)
	if rej != nil {
		return nil, rej
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", canonical, err)
	}

	return &StatResult{
		Path:    canonical,
		Size:    info.Size(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime().UTC(),
		IsDir:   info.IsDir(),
	}, nil
}
