package mcp

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/cache"
	"github.com/ppiankov/toolgate/internal/fetch"
	"github.com/ppiankov/toolgate/internal/fsio"
	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/runner"
	"github.com/ppiankov/toolgate/internal/secrets"
	"github.com/ppiankov/toolgate/internal/sqlstore"
)

// Refusal is the denial envelope embedded in every tool output. It mirrors
// the HTTP error body so a client sees the same kind/class vocabulary on both
// surfaces.
type Refusal struct {
	Blocked bool   `json:"blocked,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Class   string `json:"class,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Cap     int64  `json:"cap,omitempty"`
}

// errDisabled marks a capability whose backend is not configured.
type errDisabled struct{ name string }

func (e errDisabled) Error() string { return e.name + " backend is not configured" }

// asRefusal maps a service error to the refusal envelope. ok is false when
// the error is internal and should surface as a protocol error instead.
func asRefusal(err error) (Refusal, bool) {
	if rej, ok := guard.AsRejection(err); ok {
		return Refusal{
			Blocked: true,
			Kind:    string(rej.Kind),
			Class:   string(rej.Kind.Class()),
			Detail:  rej.Detail,
			Cap:     rej.Cap,
		}, true
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, sqlstore.ErrNotFound) || errors.Is(err, secrets.ErrNotFound) {
		return Refusal{
			Blocked: true,
			Kind:    "NotFound",
			Class:   "NotFound",
			Detail:  "the validated target does not exist",
		}, true
	}
	var disabled errDisabled
	if errors.As(err, &disabled) {
		return Refusal{
			Blocked: true,
			Kind:    "UpstreamFailure",
			Class:   string(guard.ClassUpstreamFailure),
			Detail:  disabled.Error(),
		}, true
	}
	return Refusal{}, false
}

// run executes one tool operation under the rate limiter, maps refusals, and
// leaves exactly one audit record. A non-nil CallToolResult means the caller
// must return it with the refusal embedded in the output.
func run[R any](s *Server, op model.Operation, resource string, fn func() (R, error)) (R, Refusal, *mcpsdk.CallToolResult, error) {
	var zero R
	start := time.Now()

	if retry, ok := s.limiter.Allow(op); !ok {
		rej := guard.RejectCap(guard.KindRateLimited, int64(retry/time.Second)+1,
			"operation %s is rate limited", op)
		ref, _ := asRefusal(rej)
		s.record(op, resource, model.DecisionDeny, ref.Kind, ref.Detail, start)
		return zero, ref, &mcpsdk.CallToolResult{IsError: true}, nil
	}

	res, err := fn()
	if err != nil {
		if ref, ok := asRefusal(err); ok {
			s.record(op, resource, model.DecisionDeny, ref.Kind, ref.Detail, start)
			return zero, ref, &mcpsdk.CallToolResult{IsError: true}, nil
		}
		s.record(op, resource, model.DecisionDeny, "UpstreamFailure", err.Error(), start)
		return zero, Refusal{}, nil, err
	}

	s.record(op, resource, model.DecisionAllow, "", "", start)
	return res, Refusal{}, nil, nil
}

type FSReadInput struct {
	Path     string `json:"path" jsonschema:"file path inside the sandbox roots"`
	MaxBytes int64  `json:"max_bytes,omitempty" jsonschema:"read cap in bytes, 0 for the policy default"`
}

type FSReadOutput struct {
	Path      string `json:"path,omitempty"`
	Content   string `json:"content,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Refusal
}

func (s *Server) fsRead(ctx context.Context, req *mcpsdk.CallToolRequest, in FSReadInput) (*mcpsdk.CallToolResult, FSReadOutput, error) {
	res, ref, errResult, err := run(s, model.OpFSRead, in.Path, func() (*fsio.ReadResult, error) {
		return s.fs.Read(in.Path, in.MaxBytes)
	})
	if err != nil {
		return nil, FSReadOutput{}, err
	}
	if errResult != nil {
		return errResult, FSReadOutput{Refusal: ref}, nil
	}
	return nil, FSReadOutput{
		Path:      res.Path,
		Content:   res.Content,
		Size:      res.Size,
		Truncated: res.Truncated,
	}, nil
}

type FSWriteInput struct {
	Path    string `json:"path" jsonschema:"file path inside the sandbox roots"`
	Content string `json:"content" jsonschema:"file content"`
}

type FSWriteOutput struct {
	Path         string `json:"path,omitempty"`
	BytesWritten int    `json:"bytes_written,omitempty"`
	Refusal
}

func (s *Server) fsWrite(ctx context.Context, req *mcpsdk.CallToolRequest, in FSWriteInput) (*mcpsdk.CallToolResult, FSWriteOutput, error) {
	res, ref, errResult, err := run(s, model.OpFSWrite, in.Path, func() (*fsio.WriteResult, error) {
		return s.fs.Write(in.Path, in.Content)
	})
	if err != nil {
		return nil, FSWriteOutput{}, err
	}
	if errResult != nil {
		return errResult, FSWriteOutput{Refusal: ref}, nil
	}
	return nil, FSWriteOutput{Path: res.Path, BytesWritten: res.BytesWritten}, nil
}

type FSListInput struct {
	Path       string `json:"path" jsonschema:"directory path inside the sandbox roots"`
	MaxEntries int    `json:"max_entries,omitempty" jsonschema:"entry cap, 0 for the policy default"`
}

type FSListOutput struct {
	Path      string          `json:"path,omitempty"`
	Entries   []fsio.DirEntry `json:"entries,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
	Refusal
}

func (s *Server) fsList(ctx context.Context, req *mcpsdk.CallToolRequest, in FSListInput) (*mcpsdk.CallToolResult, FSListOutput, error) {
	res, ref, errResult, err := run(s, model.OpFSList, in.Path, func() (*fsio.ListResult, error) {
		return s.fs.List(in.Path, in.MaxEntries)
	})
	if err != nil {
		return nil, FSListOutput{}, err
	}
	if errResult != nil {
		return errResult, FSListOutput{Refusal: ref}, nil
	}
	return nil, FSListOutput{Path: res.Path, Entries: res.Entries, Truncated: res.Truncated}, nil
}

type FSStatInput struct {
	Path string `json:"path" jsonschema:"path inside the sandbox roots"`
}

type FSStatOutput struct {
	Path    string `json:"path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Mode    string `json:"mode,omitempty"`
	ModTime string `json:"mod_time,omitempty"`
	IsDir   bool   `json:"is_dir,omitempty"`
	Refusal
}

func (s *Server) fsStat(ctx context.Context, req *mcpsdk.CallToolRequest, in FSStatInput) (*mcpsdk.CallToolResult, FSStatOutput, error) {
	res, ref, errResult, err := run(s, model.OpFSStat, in.Path, func() (*fsio.StatResult, error) {
		return s.fs.Stat(in.Path)
	})
	if err != nil {
		return nil, FSStatOutput{}, err
	}
	if errResult != nil {
		return errResult, FSStatOutput{Refusal: ref}, nil
	}
	return nil, FSStatOutput{
		Path:    res.Path,
		Size:    res.Size,
		Mode:    res.Mode,
		ModTime: res.ModTime.UTC().Format(time.RFC3339),
		IsDir:   res.IsDir,
	}, nil
}

type ExecInput struct {
	Command        string `json:"command" jsonschema:"command line, first token must be allow-listed"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"timeout in seconds, 0 for the policy default"`
	Stdin          string `json:"stdin,omitempty" jsonschema:"standard input for the command"`
}

type ExecOutput struct {
	Argv            []string `json:"argv,omitempty"`
	Stdout          string   `json:"stdout,omitempty"`
	Stderr          string   `json:"stderr,omitempty"`
	ExitCode        int      `json:"exit_code"`
	Killed          bool     `json:"killed,omitempty"`
	StdoutTruncated bool     `json:"stdout_truncated,omitempty"`
	StderrTruncated bool     `json:"stderr_truncated,omitempty"`
	DurationMS      int64    `json:"duration_ms,omitempty"`
	Refusal
}

func (s *Server) execRun(ctx context.Context, req *mcpsdk.CallToolRequest, in ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	res, ref, errResult, err := run(s, model.OpExec, in.Command, func() (*runner.Result, error) {
		argv, rej := guard.ValidateCommand(in.Command, s.pol.Commands)
		if rej != nil {
			return nil, rej
		}
		timeout, rej := s.pol.Limits.ClampTimeout(in.TimeoutSeconds)
		if rej != nil {
			return nil, rej
		}
		var stdin io.Reader
		if in.Stdin != "" {
			stdin = strings.NewReader(in.Stdin)
		}
		return runner.Run(ctx, argv, stdin, timeout, s.pol.Limits.MaxOutputBytes)
	})
	if err != nil {
		return nil, ExecOutput{}, err
	}
	if errResult != nil {
		return errResult, ExecOutput{Refusal: ref}, nil
	}
	return nil, s.execOutput(res), nil
}

func (s *Server) execOutput(res *runner.Result) ExecOutput {
	out := ExecOutput{
		Argv:            res.Argv,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		Killed:          res.Killed,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		DurationMS:      res.DurationMS,
	}
	if s.scrub {
		out.Stdout, _ = s.scanner.Scrub(out.Stdout)
		out.Stderr, _ = s.scanner.Scrub(out.Stderr)
	}
	return out
}

type GitInput struct {
	Repo           string   `json:"repo" jsonschema:"repository path inside the sandbox roots"`
	Verb           string   `json:"verb" jsonschema:"git subcommand, must be allow-listed"`
	Args           []string `json:"args,omitempty" jsonschema:"additional arguments, option injection is screened"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" jsonschema:"timeout in seconds, 0 for the policy default"`
}

func (s *Server) gitRun(ctx context.Context, req *mcpsdk.CallToolRequest, in GitInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	resource := "git " + in.Verb + " " + in.Repo
	res, ref, errResult, err := run(s, model.OpGit, resource, func() (*runner.Result, error) {
		return s.git.Run(ctx, in.Repo, in.Verb, in.Args, in.TimeoutSeconds)
	})
	if err != nil {
		return nil, ExecOutput{}, err
	}
	if errResult != nil {
		return errResult, ExecOutput{Refusal: ref}, nil
	}
	return nil, s.execOutput(res), nil
}

type SQLTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"schema name, defaults to main"`
}

type SQLTablesOutput struct {
	Tables []string `json:"tables,omitempty"`
	Refusal
}

func (s *Server) sqlTables(ctx context.Context, req *mcpsdk.CallToolRequest, in SQLTablesInput) (*mcpsdk.CallToolResult, SQLTablesOutput, error) {
	tables, ref, errResult, err := run(s, model.OpSQLTables, in.Schema, func() ([]string, error) {
		if s.sqlSvc.DB == nil {
			return nil, errDisabled{"sql"}
		}
		return s.sqlSvc.Tables(ctx, in.Schema)
	})
	if err != nil {
		return nil, SQLTablesOutput{}, err
	}
	if errResult != nil {
		return errResult, SQLTablesOutput{Refusal: ref}, nil
	}
	return nil, SQLTablesOutput{Tables: tables}, nil
}

type SQLDescribeInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"schema name, defaults to main"`
	Table  string `json:"table" jsonschema:"table name"`
}

type SQLDescribeOutput struct {
	Table   string            `json:"table,omitempty"`
	Columns []sqlstore.Column `json:"columns,omitempty"`
	Refusal
}

func (s *Server) sqlDescribe(ctx context.Context, req *mcpsdk.CallToolRequest, in SQLDescribeInput) (*mcpsdk.CallToolResult, SQLDescribeOutput, error) {
	cols, ref, errResult, err := run(s, model.OpSQLDescribe, in.Table, func() ([]sqlstore.Column, error) {
		if s.sqlSvc.DB == nil {
			return nil, errDisabled{"sql"}
		}
		return s.sqlSvc.Describe(ctx, in.Schema, in.Table)
	})
	if err != nil {
		return nil, SQLDescribeOutput{}, err
	}
	if errResult != nil {
		return errResult, SQLDescribeOutput{Refusal: ref}, nil
	}
	return nil, SQLDescribeOutput{Table: in.Table, Columns: cols}, nil
}

type SQLSelectInput struct {
	Schema  string         `json:"schema,omitempty" jsonschema:"schema name, defaults to main"`
	Table   string         `json:"table" jsonschema:"table name"`
	Columns []string       `json:"columns,omitempty" jsonschema:"columns to return, empty for all"`
	Filters map[string]any `json:"filters,omitempty" jsonschema:"equality filters, values are parameterized"`
	Limit   int            `json:"limit,omitempty" jsonschema:"row cap, 0 for the policy default"`
}

type SQLSelectOutput struct {
	Columns   []string `json:"columns,omitempty"`
	Rows      [][]any  `json:"rows,omitempty"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
	Refusal
}

func (s *Server) sqlSelect(ctx context.Context, req *mcpsdk.CallToolRequest, in SQLSelectInput) (*mcpsdk.CallToolResult, SQLSelectOutput, error) {
	res, ref, errResult, err := run(s, model.OpSQLSelect, in.Table, func() (*sqlstore.SelectResult, error) {
		if s.sqlSvc.DB == nil {
			return nil, errDisabled{"sql"}
		}
		return s.sqlSvc.Select(ctx, sqlstore.SelectRequest{
			Schema:  in.Schema,
			Table:   in.Table,
			Columns: in.Columns,
			Filters: in.Filters,
			Limit:   in.Limit,
		})
	})
	if err != nil {
		return nil, SQLSelectOutput{}, err
	}
	if errResult != nil {
		return errResult, SQLSelectOutput{Refusal: ref}, nil
	}
	return nil, SQLSelectOutput{
		Columns:   res.Columns,
		Rows:      res.Rows,
		RowCount:  res.RowCount,
		Truncated: res.Truncated,
	}, nil
}

type SQLInsertInput struct {
	Schema string         `json:"schema,omitempty" jsonschema:"schema name, defaults to main"`
	Table  string         `json:"table" jsonschema:"table name"`
	Values map[string]any `json:"values" jsonschema:"column to value map, values are parameterized"`
}

type SQLInsertOutput struct {
	Table        string `json:"table,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	Refusal
}

func (s *Server) sqlInsert(ctx context.Context, req *mcpsdk.CallToolRequest, in SQLInsertInput) (*mcpsdk.CallToolResult, SQLInsertOutput, error) {
	n, ref, errResult, err := run(s, model.OpSQLInsert, in.Table, func() (int64, error) {
		if s.sqlSvc.DB == nil {
			return 0, errDisabled{"sql"}
		}
		return s.sqlSvc.Insert(ctx, in.Schema, in.Table, in.Values)
	})
	if err != nil {
		return nil, SQLInsertOutput{}, err
	}
	if errResult != nil {
		return errResult, SQLInsertOutput{Refusal: ref}, nil
	}
	return nil, SQLInsertOutput{Table: in.Table, RowsAffected: n}, nil
}

type CacheGetInput struct {
	Key string `json:"key" jsonschema:"cache key"`
}

type CacheGetOutput struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
	Refusal
}

func (s *Server) cacheGet(ctx context.Context, req *mcpsdk.CallToolRequest, in CacheGetInput) (*mcpsdk.CallToolResult, CacheGetOutput, error) {
	res, ref, errResult, err := run(s, model.OpCacheGet, in.Key, func() (*cache.GetResult, error) {
		if s.cacheSvc.Client == nil {
			return nil, errDisabled{"cache"}
		}
		return s.cacheSvc.Get(ctx, in.Key)
	})
	if err != nil {
		return nil, CacheGetOutput{}, err
	}
	if errResult != nil {
		return errResult, CacheGetOutput{Refusal: ref}, nil
	}
	return nil, CacheGetOutput{Key: res.Key, Value: res.Value, Found: res.Found}, nil
}

type CacheSetInput struct {
	Key        string `json:"key" jsonschema:"cache key"`
	Value      string `json:"value" jsonschema:"value to store"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" jsonschema:"TTL in seconds, 0 for the policy maximum"`
}

type CacheSetOutput struct {
	Key    string `json:"key,omitempty"`
	Stored bool   `json:"stored,omitempty"`
	Refusal
}

func (s *Server) cacheSet(ctx context.Context, req *mcpsdk.CallToolRequest, in CacheSetInput) (*mcpsdk.CallToolResult, CacheSetOutput, error) {
	_, ref, errResult, err := run(s, model.OpCacheSet, in.Key, func() (struct{}, error) {
		if s.cacheSvc.Client == nil {
			return struct{}{}, errDisabled{"cache"}
		}
		return struct{}{}, s.cacheSvc.Set(ctx, in.Key, in.Value, in.TTLSeconds)
	})
	if err != nil {
		return nil, CacheSetOutput{}, err
	}
	if errResult != nil {
		return errResult, CacheSetOutput{Refusal: ref}, nil
	}
	return nil, CacheSetOutput{Key: in.Key, Stored: true}, nil
}

type CacheDelInput struct {
	Key string `json:"key" jsonschema:"cache key"`
}

type CacheDelOutput struct {
	Key     string `json:"key,omitempty"`
	Deleted bool   `json:"deleted"`
	Refusal
}

func (s *Server) cacheDel(ctx context.Context, req *mcpsdk.CallToolRequest, in CacheDelInput) (*mcpsdk.CallToolResult, CacheDelOutput, error) {
	deleted, ref, errResult, err := run(s, model.OpCacheDel, in.Key, func() (bool, error) {
		if s.cacheSvc.Client == nil {
			return false, errDisabled{"cache"}
		}
		return s.cacheSvc.Del(ctx, in.Key)
	})
	if err != nil {
		return nil, CacheDelOutput{}, err
	}
	if errResult != nil {
		return errResult, CacheDelOutput{Refusal: ref}, nil
	}
	return nil, CacheDelOutput{Key: in.Key, Deleted: deleted}, nil
}

type CacheKeysInput struct {
	Prefix  string `json:"prefix,omitempty" jsonschema:"key prefix to match"`
	MaxKeys int    `json:"max_keys,omitempty" jsonschema:"key cap, 0 for the policy default"`
}

type CacheKeysOutput struct {
	Keys      []string `json:"keys,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
	Refusal
}

func (s *Server) cacheKeys(ctx context.Context, req *mcpsdk.CallToolRequest, in CacheKeysInput) (*mcpsdk.CallToolResult, CacheKeysOutput, error) {
	res, ref, errResult, err := run(s, model.OpCacheKeys, in.Prefix, func() (*cache.KeysResult, error) {
		if s.cacheSvc.Client == nil {
			return nil, errDisabled{"cache"}
		}
		return s.cacheSvc.Keys(ctx, in.Prefix, in.MaxKeys)
	})
	if err != nil {
		return nil, CacheKeysOutput{}, err
	}
	if errResult != nil {
		return errResult, CacheKeysOutput{Refusal: ref}, nil
	}
	return nil, CacheKeysOutput{Keys: res.Keys, Truncated: res.Truncated}, nil
}

type SecretSetInput struct {
	Name  string `json:"name" jsonschema:"secret name"`
	Value string `json:"value" jsonschema:"secret value, encrypted at rest"`
}

type SecretSetOutput struct {
	Name   string `json:"name,omitempty"`
	Stored bool   `json:"stored,omitempty"`
	Refusal
}

func (s *Server) secretSet(ctx context.Context, req *mcpsdk.CallToolRequest, in SecretSetInput) (*mcpsdk.CallToolResult, SecretSetOutput, error) {
	_, ref, errResult, err := run(s, model.OpSecretSet, in.Name, func() (struct{}, error) {
		if s.secSvc.Store == nil {
			return struct{}{}, errDisabled{"secrets"}
		}
		return struct{}{}, s.secSvc.Set(ctx, in.Name, in.Value)
	})
	if err != nil {
		return nil, SecretSetOutput{}, err
	}
	if errResult != nil {
		return errResult, SecretSetOutput{Refusal: ref}, nil
	}
	return nil, SecretSetOutput{Name: in.Name, Stored: true}, nil
}

type SecretGetInput struct {
	Name string `json:"name" jsonschema:"secret name"`
}

type SecretGetOutput struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	Refusal
}

func (s *Server) secretGet(ctx context.Context, req *mcpsdk.CallToolRequest, in SecretGetInput) (*mcpsdk.CallToolResult, SecretGetOutput, error) {
	value, ref, errResult, err := run(s, model.OpSecretGet, in.Name, func() (string, error) {
		if s.secSvc.Store == nil {
			return "", errDisabled{"secrets"}
		}
		return s.secSvc.Get(ctx, in.Name)
	})
	if err != nil {
		return nil, SecretGetOutput{}, err
	}
	if errResult != nil {
		return errResult, SecretGetOutput{Refusal: ref}, nil
	}
	return nil, SecretGetOutput{Name: in.Name, Value: value}, nil
}

type SecretListInput struct{}

type SecretListOutput struct {
	Names []string `json:"names,omitempty"`
	Refusal
}

func (s *Server) secretList(ctx context.Context, req *mcpsdk.CallToolRequest, in SecretListInput) (*mcpsdk.CallToolResult, SecretListOutput, error) {
	names, ref, errResult, err := run(s, model.OpSecretList, "", func() ([]string, error) {
		if s.secSvc.Store == nil {
			return nil, errDisabled{"secrets"}
		}
		return s.secSvc.List(ctx)
	})
	if err != nil {
		return nil, SecretListOutput{}, err
	}
	if errResult != nil {
		return errResult, SecretListOutput{Refusal: ref}, nil
	}
	return nil, SecretListOutput{Names: names}, nil
}

type SecretDeleteInput struct {
	Name string `json:"name" jsonschema:"secret name"`
}

type SecretDeleteOutput struct {
	Name    string `json:"name,omitempty"`
	Deleted bool   `json:"deleted"`
	Refusal
}

func (s *Server) secretDelete(ctx context.Context, req *mcpsdk.CallToolRequest, in SecretDeleteInput) (*mcpsdk.CallToolResult, SecretDeleteOutput, error) {
	deleted, ref, errResult, err := run(s, model.OpSecretDelete, in.Name, func() (bool, error) {
		if s.secSvc.Store == nil {
			return false, errDisabled{"secrets"}
		}
		return s.secSvc.Delete(ctx, in.Name)
	})
	if err != nil {
		return nil, SecretDeleteOutput{}, err
	}
	if errResult != nil {
		return errResult, SecretDeleteOutput{Refusal: ref}, nil
	}
	return nil, SecretDeleteOutput{Name: in.Name, Deleted: deleted}, nil
}

type SecretGenerateInput struct {
	Name   string `json:"name" jsonschema:"secret name"`
	Length int    `json:"length,omitempty" jsonschema:"generated length, 0 for the default"`
}

type SecretGenerateOutput struct {
	Name   string `json:"name,omitempty"`
	Value  string `json:"value,omitempty"`
	Stored bool   `json:"stored,omitempty"`
	Refusal
}

func (s *Server) secretGenerate(ctx context.Context, req *mcpsdk.CallToolRequest, in SecretGenerateInput) (*mcpsdk.CallToolResult, SecretGenerateOutput, error) {
	value, ref, errResult, err := run(s, model.OpSecretGenerate, in.Name, func() (string, error) {
		if s.secSvc.Store == nil {
			return "", errDisabled{"secrets"}
		}
		return s.secSvc.Generate(ctx, in.Name, in.Length)
	})
	if err != nil {
		return nil, SecretGenerateOutput{}, err
	}
	if errResult != nil {
		return errResult, SecretGenerateOutput{Refusal: ref}, nil
	}
	// The generated value is returned in this one response and never appears
	// in audit records.
	return nil, SecretGenerateOutput{Name: in.Name, Value: value, Stored: true}, nil
}

type WebFetchInput struct {
	URL            string `json:"url" jsonschema:"http or https URL"`
	Method         string `json:"method,omitempty" jsonschema:"HTTP method, must be allow-listed"`
	MaxBytes       int64  `json:"max_bytes,omitempty" jsonschema:"body cap in bytes, 0 for the policy default"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"timeout in seconds, 0 for the policy default"`
}

type WebFetchOutput struct {
	URL         string `json:"url,omitempty"`
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Refusal
}

func (s *Server) webFetch(ctx context.Context, req *mcpsdk.CallToolRequest, in WebFetchInput) (*mcpsdk.CallToolResult, WebFetchOutput, error) {
	res, ref, errResult, err := run(s, model.OpFetch, in.URL, func() (*fetch.Result, error) {
		return s.fetchSvc.Fetch(ctx, in.URL, in.Method, in.MaxBytes, in.TimeoutSeconds)
	})
	if err != nil {
		return nil, WebFetchOutput{}, err
	}
	if errResult != nil {
		return errResult, WebFetchOutput{Refusal: ref}, nil
	}
	body := res.Body
	if s.scrub {
		body, _ = s.scanner.Scrub(body)
	}
	return nil, WebFetchOutput{
		URL:         res.URL,
		Status:      res.Status,
		Body:        body,
		Truncated:   res.Truncated,
		ContentType: res.ContentType,
	}, nil
}
