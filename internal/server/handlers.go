package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/guard"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/runner"
	"github.com/ppiankov/toolgate/internal/secrets"
	"github.com/ppiankov/toolgate/internal/sqlstore"
)

// maxBodyBytes caps request bodies before JSON decoding.
const maxBodyBytes = 4 << 20

// errorBody is the error envelope for every non-2xx response.
type errorBody struct {
	Kind   string `json:"kind"`
	Class  string `json:"class"`
	Detail string `json:"detail,omitempty"`
	Cap    int64  `json:"cap,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// errDisabled marks a capability whose backend is not configured.
type errDisabled struct{ name string }

func (e errDisabled) Error() string { return e.name + " backend is not configured" }

// opHandler executes one operation. It returns the response payload and the
// resource string recorded in the audit log.
type opHandler func(ctx context.Context, b *bundle, r *http.Request) (any, string, error)

// Handler returns the façade routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/policy/hash", s.auth(s.handlePolicyHash))

	route := func(pattern string, op model.Operation, fn opHandler) {
		mux.HandleFunc(pattern, s.auth(s.op(op, fn)))
	}

	route("POST /v1/check", model.OpCheck, s.handleCheck)
	route("POST /v1/fs/read", model.OpFSRead, s.handleFSRead)
	route("POST /v1/fs/write", model.OpFSWrite, s.handleFSWrite)
	route("POST /v1/fs/list", model.OpFSList, s.handleFSList)
	route("POST /v1/fs/stat", model.OpFSStat, s.handleFSStat)
	route("POST /v1/exec", model.OpExec, s.handleExec)
	route("POST /v1/git", model.OpGit, s.handleGit)
	route("POST /v1/sql/tables", model.OpSQLTables, s.handleSQLTables)
	route("POST /v1/sql/describe", model.OpSQLDescribe, s.handleSQLDescribe)
	route("POST /v1/sql/select", model.OpSQLSelect, s.handleSQLSelect)
	route("POST /v1/sql/insert", model.OpSQLInsert, s.handleSQLInsert)
	route("POST /v1/cache/get", model.OpCacheGet, s.handleCacheGet)
	route("POST /v1/cache/set", model.OpCacheSet, s.handleCacheSet)
	route("POST /v1/cache/del", model.OpCacheDel, s.handleCacheDel)
	route("POST /v1/cache/keys", model.OpCacheKeys, s.handleCacheKeys)
	route("POST /v1/secrets/set", model.OpSecretSet, s.handleSecretSet)
	route("POST /v1/secrets/get", model.OpSecretGet, s.handleSecretGet)
	route("POST /v1/secrets/list", model.OpSecretList, s.handleSecretList)
	route("POST /v1/secrets/delete", model.OpSecretDelete, s.handleSecretDelete)
	route("POST /v1/secrets/generate", model.OpSecretGenerate, s.handleSecretGenerate)
	route("POST /v1/fetch", model.OpFetch, s.handleFetch)

	return mux
}

// auth enforces the bearer token when one is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cur.Load().token
		if token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				writeJSON(w, http.StatusUnauthorized, errorEnvelope{errorBody{
					Kind:  "Unauthorized",
					Class: string(guard.ClassPolicyViolation),
				}})
				return
			}
		}
		next(w, r)
	}
}

// op wraps an operation handler with rate limiting, error mapping, auditing,
// and alerting. Every request leaves exactly one audit record.
func (s *Server) op(op model.Operation, fn opHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := s.cur.Load()
		start := time.Now()

		if retry, ok := s.limiter.Allow(op); !ok {
			rej := guard.RejectCap(guard.KindRateLimited, int64(retry/time.Second)+1,
				"operation %s is rate limited", op)
			w.Header().Set("Retry-After", strconv.FormatInt(rej.Cap, 10))
			s.finish(b, op, string(op), model.DecisionDeny, rej.Kind, rej.Detail, start)
			writeRejection(w, rej)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		resp, resource, err := fn(r.Context(), b, r)
		if resource == "" {
			resource = string(op)
		}

		if err != nil {
			status, body := s.mapError(op, err)
			decision := model.DecisionDeny
			s.finish(b, op, resource, decision, guard.Kind(body.Kind), body.Detail, start)
			writeJSON(w, status, errorEnvelope{body})
			return
		}

		s.finish(b, op, resource, model.DecisionAllow, "", "", start)
		writeJSON(w, http.StatusOK, resp)
	}
}

// mapError turns a handler error into a status and envelope. Rejections keep
// their kind and class; everything else collapses to NotFound or a generic
// upstream failure so internals never leak.
func (s *Server) mapError(op model.Operation, err error) (int, errorBody) {
	if rej, ok := guard.AsRejection(err); ok {
		return rej.Kind.HTTPStatus(), errorBody{
			Kind:   string(rej.Kind),
			Class:  string(rej.Kind.Class()),
			Detail: rej.Detail,
			Cap:    rej.Cap,
		}
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, sqlstore.ErrNotFound) || errors.Is(err, secrets.ErrNotFound) {
		return http.StatusNotFound, errorBody{
			Kind:   "NotFound",
			Class:  "NotFound",
			Detail: "the validated target does not exist",
		}
	}
	var disabled errDisabled
	if errors.As(err, &disabled) {
		return http.StatusServiceUnavailable, errorBody{
			Kind:   "UpstreamFailure",
			Class:  string(guard.ClassUpstreamFailure),
			Detail: disabled.Error(),
		}
	}
	s.log.WithField("operation", op).WithError(err).Error("operation failed")
	return http.StatusInternalServerError, errorBody{
		Kind:  "UpstreamFailure",
		Class: string(guard.ClassUpstreamFailure),
	}
}

// finish records the audit entry and fires alert webhooks for one decision.
func (s *Server) finish(b *bundle, op model.Operation, resource string, decision model.Decision, kind guard.Kind, detail string, start time.Time) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	// Audit details are always scrubbed regardless of the output setting.
	resource, _ = s.scanner.Scrub(resource)
	detail, _ = s.scanner.Scrub(detail)

	if s.auditLog != nil {
		if err := s.auditLog.Record(audit.Entry{
			Timestamp:  ts,
			Source:     string(model.SourceHTTP),
			Operation:  string(op),
			Resource:   resource,
			Decision:   string(decision),
			Kind:       string(kind),
			Detail:     detail,
			PolicyHash: b.pol.Hash,
			DurationMS: time.Since(start).Milliseconds(),
		}); err != nil {
			s.log.WithError(err).Error("audit write failed")
		}
	}
	b.dispatcher.Dispatch(alert.Event{
		Timestamp:  ts,
		Source:     string(model.SourceHTTP),
		Operation:  string(op),
		Resource:   resource,
		Decision:   string(decision),
		Kind:       string(kind),
		Detail:     detail,
		PolicyHash: b.pol.Hash,
	})

	entry := s.log.WithFields(map[string]any{
		"operation": op,
		"decision":  decision,
		"duration":  time.Since(start).Milliseconds(),
	})
	if kind != "" {
		entry = entry.WithField("kind", kind)
	}
	if decision == model.DecisionDeny {
		entry.Warn("request denied")
	} else {
		entry.Info("request allowed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"policy_hash": s.PolicyHash(),
	})
}

func (s *Server) handlePolicyHash(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"policy_hash": s.PolicyHash()})
}

type checkRequest struct {
	Check string `json:"check"`
	Value string `json:"value"`
}

type checkResponse struct {
	Valid      bool     `json:"valid"`
	Normalized string   `json:"normalized,omitempty"`
	Argv       []string `json:"argv,omitempty"`
}

func (s *Server) handleCheck(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[checkRequest](r)
	if err != nil {
		return nil, "", err
	}
	resource := req.Check + ":" + req.Value

	switch req.Check {
	case "path":
		canonical, rej := guard.ValidatePath(req.Value, b.pol.Paths)
		if rej != nil {
			return nil, resource, rej
		}
		return checkResponse{Valid: true, Normalized: canonical}, resource, nil
	case "command":
		argv, rej := guard.ValidateCommand(req.Value, b.pol.Commands)
		if rej != nil {
			return nil, resource, rej
		}
		return checkResponse{Valid: true, Argv: argv}, resource, nil
	case "identifier":
		name, rej := guard.ValidateIdentifier(req.Value, b.pol.Ident)
		if rej != nil {
			return nil, resource, rej
		}
		return checkResponse{Valid: true, Normalized: name}, resource, nil
	case "schema":
		name, rej := guard.ValidateSchemaName(req.Value, b.pol.Ident)
		if rej != nil {
			return nil, resource, rej
		}
		return checkResponse{Valid: true, Normalized: name}, resource, nil
	default:
		return nil, resource, guard.Reject(guard.KindUnknownOperation,
			"check %q is not one of path, command, identifier, schema", req.Check)
	}
}

type fsReadRequest struct {
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes"`
}

func (s *Server) handleFSRead(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[fsReadRequest](r)
	if err != nil {
		return nil, "", err
	}
	res, err := b.fs.Read(req.Path, req.MaxBytes)
	if err != nil {
		return nil, req.Path, err
	}
	return res, res.Path, nil
}

type fsWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleFSWrite(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[fsWriteRequest](r)
	if err != nil {
		return nil, "", err
	}
	res, err := b.fs.Write(req.Path, req.Content)
	if err != nil {
		return nil, req.Path, err
	}
	return res, res.Path, nil
}

type fsListRequest struct {
	Path       string `json:"path"`
	MaxEntries int    `json:"max_entries"`
}

func (s *Server) handleFSList(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[fsListRequest](r)
	if err != nil {
		return nil, "", err
	}
	res, err := b.fs.List(req.Path, req.MaxEntries)
	if err != nil {
		return nil, req.Path, err
	}
	return res, res.Path, nil
}

type fsStatRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFSStat(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[fsStatRequest](r)
	if err != nil {
		return nil, "", err
	}
	res, err := b.fs.Stat(req.Path)
	if err != nil {
		return nil, req.Path, err
	}
	return res, res.Path, nil
}

type execRequest struct {
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Stdin          string `json:"stdin"`
}

func (s *Server) handleExec(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[execRequest](r)
	if err != nil {
		return nil, "", err
	}
	argv, rej := guard.ValidateCommand(req.Command, b.pol.Commands)
	if rej != nil {
		return nil, req.Command, rej
	}
	timeout, rej := b.pol.Limits.ClampTimeout(req.TimeoutSeconds)
	if rej != nil {
		return nil, req.Command, rej
	}

	var stdin io.Reader
	if req.Stdin != "" {
		stdin = strings.NewReader(req.Stdin)
	}
	res, err := runner.Run(ctx, argv, stdin, timeout, b.pol.Limits.MaxOutputBytes)
	if err != nil {
		return nil, req.Command, err
	}
	if b.scrub {
		res.Stdout, _ = s.scanner.Scrub(res.Stdout)
		res.Stderr, _ = s.scanner.Scrub(res.Stderr)
	}
	return res, res.Render(), nil
}

type gitRequest struct {
	Repo           string   `json:"repo"`
	Verb           string   `json:"verb"`
	Args           []string `json:"args"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func (s *Server) handleGit(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[gitRequest](r)
	if err != nil {
		return nil, "", err
	}
	resource := fmt.Sprintf("git %s %s", req.Verb, req.Repo)
	res, err := b.git.Run(ctx, req.Repo, req.Verb, req.Args, req.TimeoutSeconds)
	if err != nil {
		return nil, resource, err
	}
	if b.scrub {
		res.Stdout, _ = s.scanner.Scrub(res.Stdout)
		res.Stderr, _ = s.scanner.Scrub(res.Stderr)
	}
	return res, resource, nil
}

type sqlTablesRequest struct {
	Schema string `json:"schema"`
}

func (s *Server) handleSQLTables(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[sqlTablesRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.sqlSvc.DB == nil {
		return nil, req.Schema, errDisabled{"sql"}
	}
	tables, err := b.sqlSvc.Tables(ctx, req.Schema)
	if err != nil {
		return nil, req.Schema, err
	}
	if tables == nil {
		tables = []string{}
	}
	return map[string]any{"tables": tables}, req.Schema, nil
}

type sqlDescribeRequest struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (s *Server) handleSQLDescribe(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[sqlDescribeRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.sqlSvc.DB == nil {
		return nil, req.Table, errDisabled{"sql"}
	}
	cols, err := b.sqlSvc.Describe(ctx, req.Schema, req.Table)
	if err != nil {
		return nil, req.Table, err
	}
	return map[string]any{"table": req.Table, "columns": cols}, req.Table, nil
}

type sqlSelectRequest struct {
	Schema  string         `json:"schema"`
	Table   string         `json:"table"`
	Columns []string       `json:"columns"`
	Filters map[string]any `json:"filters"`
	Limit   int            `json:"limit"`
}

func (s *Server) handleSQLSelect(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[sqlSelectRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.sqlSvc.DB == nil {
		return nil, req.Table, errDisabled{"sql"}
	}
	res, err := b.sqlSvc.Select(ctx, sqlstore.SelectRequest{
		Schema:  req.Schema,
		Table:   req.Table,
		Columns: req.Columns,
		Filters: req.Filters,
		Limit:   req.Limit,
	})
	if err != nil {
		return nil, req.Table, err
	}
	return res, req.Table, nil
}

type sqlInsertRequest struct {
	Schema string         `json:"schema"`
	Table  string         `json:"table"`
	Values map[string]any `json:"values"`
}

func (s *Server) handleSQLInsert(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[sqlInsertRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.sqlSvc.DB == nil {
		return nil, req.Table, errDisabled{"sql"}
	}
	n, err := b.sqlSvc.Insert(ctx, req.Schema, req.Table, req.Values)
	if err != nil {
		return nil, req.Table, err
	}
	return map[string]any{"table": req.Table, "rows_affected": n}, req.Table, nil
}

type cacheKeyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleCacheGet(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[cacheKeyRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.cacheSvc.Client == nil {
		return nil, req.Key, errDisabled{"cache"}
	}
	res, err := b.cacheSvc.Get(ctx, req.Key)
	if err != nil {
		return nil, req.Key, err
	}
	return res, req.Key, nil
}

type cacheSetRequest struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *Server) handleCacheSet(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[cacheSetRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.cacheSvc.Client == nil {
		return nil, req.Key, errDisabled{"cache"}
	}
	if err := b.cacheSvc.Set(ctx, req.Key, req.Value, req.TTLSeconds); err != nil {
		return nil, req.Key, err
	}
	return map[string]any{"key": req.Key, "stored": true}, req.Key, nil
}

func (s *Server) handleCacheDel(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[cacheKeyRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.cacheSvc.Client == nil {
		return nil, req.Key, errDisabled{"cache"}
	}
	deleted, err := b.cacheSvc.Del(ctx, req.Key)
	if err != nil {
		return nil, req.Key, err
	}
	return map[string]any{"key": req.Key, "deleted": deleted}, req.Key, nil
}

type cacheKeysRequest struct {
	Prefix  string `json:"prefix"`
	MaxKeys int    `json:"max_keys"`
}

func (s *Server) handleCacheKeys(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[cacheKeysRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.cacheSvc.Client == nil {
		return nil, req.Prefix, errDisabled{"cache"}
	}
	res, err := b.cacheSvc.Keys(ctx, req.Prefix, req.MaxKeys)
	if err != nil {
		return nil, req.Prefix, err
	}
	if res.Keys == nil {
		res.Keys = []string{}
	}
	return res, req.Prefix, nil
}

type secretSetRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (s *Server) handleSecretSet(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[secretSetRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.secretSvc.Store == nil {
		return nil, req.Name, errDisabled{"secrets"}
	}
	if err := b.secretSvc.Set(ctx, req.Name, req.Value); err != nil {
		return nil, req.Name, err
	}
	return map[string]any{"name": req.Name, "stored": true}, req.Name, nil
}

type secretNameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleSecretGet(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[secretNameRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.secretSvc.Store == nil {
		return nil, req.Name, errDisabled{"secrets"}
	}
	value, err := b.secretSvc.Get(ctx, req.Name)
	if err != nil {
		return nil, req.Name, err
	}
	return map[string]any{"name": req.Name, "value": value}, req.Name, nil
}

func (s *Server) handleSecretList(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	if b.secretSvc.Store == nil {
		return nil, "", errDisabled{"secrets"}
	}
	names, err := b.secretSvc.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if names == nil {
		names = []string{}
	}
	return map[string]any{"names": names}, "", nil
}

func (s *Server) handleSecretDelete(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[secretNameRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.secretSvc.Store == nil {
		return nil, req.Name, errDisabled{"secrets"}
	}
	deleted, err := b.secretSvc.Delete(ctx, req.Name)
	if err != nil {
		return nil, req.Name, err
	}
	return map[string]any{"name": req.Name, "deleted": deleted}, req.Name, nil
}

type secretGenerateRequest struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

func (s *Server) handleSecretGenerate(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[secretGenerateRequest](r)
	if err != nil {
		return nil, "", err
	}
	if b.secretSvc.Store == nil {
		return nil, req.Name, errDisabled{"secrets"}
	}
	value, err := b.secretSvc.Generate(ctx, req.Name, req.Length)
	if err != nil {
		return nil, req.Name, err
	}
	// The generated value is returned once, never logged.
	return map[string]any{"name": req.Name, "stored": true, "length": len(value)}, req.Name, nil
}

type fetchRequest struct {
	URL            string `json:"url"`
	Method         string `json:"method"`
	MaxBytes       int64  `json:"max_bytes"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (s *Server) handleFetch(ctx context.Context, b *bundle, r *http.Request) (any, string, error) {
	req, err := decode[fetchRequest](r)
	if err != nil {
		return nil, "", err
	}
	res, err := b.fetchSvc.Fetch(ctx, req.URL, req.Method, req.MaxBytes, req.TimeoutSeconds)
	if err != nil {
		return nil, req.URL, err
	}
	if b.scrub {
		res.Body, _ = s.scanner.Scrub(res.Body)
	}
	return res, req.URL, nil
}

// decode parses the JSON request body. A malformed body is a rejection, not
// a bare 400 string.
func decode[T any](r *http.Request) (T, error) {
	var req T
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, guard.Reject(guard.KindMalformedSyntax, "request body unreadable: %v", err)
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, guard.Reject(guard.KindMalformedSyntax, "request body is not valid JSON: %v", err)
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRejection(w http.ResponseWriter, rej *guard.Rejection) {
	writeJSON(w, rej.Kind.HTTPStatus(), errorEnvelope{errorBody{
		Kind:   string(rej.Kind),
		Class:  string(rej.Kind.Class()),
		Detail: rej.Detail,
		Cap:    rej.Cap,
	}})
}
