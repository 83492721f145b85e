// Package mcp exposes the gateway over the Model Context Protocol on stdio.
// The tool surface mirrors the HTTP façade one to one; a policy refusal is an
// IsError tool result carrying the same kind/class envelope, never a protocol
// error.
package mcp

import (
	"context"
	"database/sql"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/cache"
	"github.com/ppiankov/toolgate/internal/fetch"
	"github.com/ppiankov/toolgate/internal/fsio"
	"github.com/ppiankov/toolgate/internal/gitops"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/ratelimit"
	"github.com/ppiankov/toolgate/internal/redact"
	"github.com/ppiankov/toolgate/internal/secrets"
	"github.com/ppiankov/toolgate/internal/sqlstore"
)

// version is reported in the MCP handshake.
const version = "0.1.0"

// Config holds MCP server startup configuration.
type Config struct {
	ConfigPath string
}

// Server wires the capability services behind MCP tools. The policy is fixed
// for the life of the process; an MCP stdio server restarts with its client.
type Server struct {
	mcpServer *mcpsdk.Server
	log       *logrus.Logger
	pol       *policy.Policy
	limiter   *ratelimit.Limiter
	scanner   *redact.Scanner
	scrub     bool

	fs       fsio.Service
	git      gitops.Service
	sqlSvc   sqlstore.Service
	cacheSvc cache.Service
	secSvc   secrets.Service
	fetchSvc fetch.Service

	sqlDB       *sql.DB
	secretStore *secrets.Store
	redisClient *redis.Client
	auditLog    *audit.Log
	dispatcher  *alert.Dispatcher
}

// New loads the configuration, opens the configured backends, and registers
// the tool set.
func New(cfg Config, log *logrus.Logger) (*Server, error) {
	fileCfg, hash, err := policy.LoadConfigWithHash(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	pol, err := policy.Build(fileCfg, hash)
	if err != nil {
		return nil, err
	}

	s := &Server{
		log:        log,
		pol:        pol,
		limiter:    ratelimit.New(pol.RateLimits),
		scanner:    redact.NewScanner(),
		scrub:      fileCfg.Redact.Outputs,
		dispatcher: alert.NewDispatcher(fileCfg.Alerts),
	}

	if fileCfg.SQL.Path != "" {
		s.sqlDB, err = sqlstore.Open(fileCfg.SQL.Path)
		if err != nil {
			return nil, err
		}
	}
	if fileCfg.Secrets.Path != "" {
		db, err := sqlstore.Open(fileCfg.Secrets.Path)
		if err != nil {
			return nil, err
		}
		key, err := secrets.LoadKey(fileCfg.Secrets.KeyFile)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.secretStore, err = secrets.NewStore(db, key)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	if fileCfg.Cache.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.redisClient, err = cache.Connect(ctx, cache.Options{
			Addr:     fileCfg.Cache.Addr,
			Password: fileCfg.Cache.Password,
			DB:       fileCfg.Cache.DB,
		})
		if err != nil {
			return nil, err
		}
	}
	if fileCfg.Audit.Path != "" {
		s.auditLog, err = audit.Open(fileCfg.Audit.Path)
		if err != nil {
			return nil, err
		}
	}

	s.fs = fsio.Service{Paths: pol.Paths, Limits: pol.Limits}
	s.git = gitops.Service{Paths: pol.Paths, Verbs: pol.GitVerbs, Limits: pol.Limits}
	s.sqlSvc = sqlstore.Service{DB: s.sqlDB, Ident: pol.Ident, Limits: pol.Limits}
	s.cacheSvc = cache.Service{Client: s.redisClient, MaxTTL: pol.CacheTTL, Limits: pol.Limits}
	s.secSvc = secrets.Service{Store: s.secretStore, Limits: pol.Limits}
	s.fetchSvc = fetch.Service{
		Methods:      pol.Fetch.Methods,
		AllowPrivate: pol.Fetch.AllowPrivate,
		Blocklist:    pol.Fetch.Blocklist,
		Limits:       pol.Limits,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio. Blocks until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the backends.
func (s *Server) Close() error {
	var firstErr error
	if s.sqlDB != nil {
		firstErr = s.sqlDB.Close()
	}
	if s.secretStore != nil {
		if err := s.secretStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// record writes the audit entry and fires alert webhooks for one decision.
func (s *Server) record(op model.Operation, resource string, decision model.Decision, kind, detail string, start time.Time) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	resource, _ = s.scanner.Scrub(resource)
	detail, _ = s.scanner.Scrub(detail)

	if s.auditLog != nil {
		if err := s.auditLog.Record(audit.Entry{
			Timestamp:  ts,
			Source:     string(model.SourceMCP),
			Operation:  string(op),
			Resource:   resource,
			Decision:   string(decision),
			Kind:       kind,
			Detail:     detail,
			PolicyHash: s.pol.Hash,
			DurationMS: time.Since(start).Milliseconds(),
		}); err != nil {
			s.log.WithError(err).Error("audit write failed")
		}
	}
	s.dispatcher.Dispatch(alert.Event{
		Timestamp:  ts,
		Source:     string(model.SourceMCP),
		Operation:  string(op),
		Resource:   resource,
		Decision:   string(decision),
		Kind:       kind,
		Detail:     detail,
		PolicyHash: s.pol.Hash,
	})
}

// registerTools adds the full tool surface, mirroring the HTTP endpoints.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "fs_read",
		Description: "Read a file inside the sandbox roots. Truncates at max_bytes.",
	}, s.fsRead)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "fs_write",
		Description: "Write a file inside the sandbox roots.",
	}, s.fsWrite)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "fs_list",
		Description: "List a directory inside the sandbox roots.",
	}, s.fsList)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "fs_stat",
		Description: "Stat a file or directory inside the sandbox roots.",
	}, s.fsStat)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "exec_run",
		Description: "Run an allow-listed command. Shell metacharacters are inert; there is no shell.",
	}, s.execRun)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "git_run",
		Description: "Run an allow-listed git verb in a repository inside the sandbox roots.",
	}, s.gitRun)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sql_tables",
		Description: "List tables in the SQL store.",
	}, s.sqlTables)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sql_describe",
		Description: "Describe the columns of a table.",
	}, s.sqlDescribe)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sql_select",
		Description: "Select rows from a table with equality filters. Values are always parameterized.",
	}, s.sqlSelect)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "sql_insert",
		Description: "Insert one row into a table.",
	}, s.sqlInsert)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cache_get",
		Description: "Get a cache value by key.",
	}, s.cacheGet)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cache_set",
		Description: "Set a cache value with a TTL capped by policy.",
	}, s.cacheSet)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cache_del",
		Description: "Delete a cache key.",
	}, s.cacheDel)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "cache_keys",
		Description: "List cache keys by prefix.",
	}, s.cacheKeys)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "secret_set",
		Description: "Store a secret encrypted at rest.",
	}, s.secretSet)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "secret_get",
		Description: "Retrieve a secret value.",
	}, s.secretGet)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "secret_list",
		Description: "List secret names. Values are never listed.",
	}, s.secretList)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "secret_delete",
		Description: "Delete a secret.",
	}, s.secretDelete)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "secret_generate",
		Description: "Generate and store a random secret. The value is returned once.",
	}, s.secretGenerate)
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL through the egress gate. Redirects are re-validated.",
	}, s.webFetch)
}
