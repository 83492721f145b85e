// Package server is the HTTP façade of the gateway: JSON-over-POST handlers
// that validate, rate-limit, execute, audit, and alert on every request. The
// policy-derived state lives in one immutable bundle swapped atomically on
// reload; connection-backed stores are opened once at startup.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/cache"
	"github.com/ppiankov/toolgate/internal/fetch"
	"github.com/ppiankov/toolgate/internal/fsio"
	"github.com/ppiankov/toolgate/internal/gitops"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/ratelimit"
	"github.com/ppiankov/toolgate/internal/redact"
	"github.com/ppiankov/toolgate/internal/secrets"
	"github.com/ppiankov/toolgate/internal/sqlstore"
)

// Config holds server startup configuration.
type Config struct {
	ConfigPath string
	Addr       string // overrides the config file when set
}

// bundle is the policy-derived state for one loaded configuration. Immutable;
// a reload builds a fresh bundle and swaps the pointer.
type bundle struct {
	pol        *policy.Policy
	fs         fsio.Service
	git        gitops.Service
	sqlSvc     sqlstore.Service
	cacheSvc   cache.Service
	secretSvc  secrets.Service
	fetchSvc   fetch.Service
	dispatcher *alert.Dispatcher
	scrub      bool
	token      string
}

// Server wires the capability services behind the HTTP surface.
type Server struct {
	cfg     Config
	log     *logrus.Logger
	limiter *ratelimit.Limiter
	scanner *redact.Scanner

	// Connection-backed stores, fixed at startup. Nil when disabled.
	sqlDB       *sql.DB
	secretStore *secrets.Store
	redisClient *redis.Client
	auditLog    *audit.Log

	cur  atomic.Pointer[bundle]
	http *http.Server
	addr string
}

// New loads the configuration, opens the configured backends, and builds the
// first policy bundle.
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
		cfg:     cfg,
		log:     log,
		limiter: ratelimit.New(pol.RateLimits),
		scanner: redact.NewScanner(),
		addr:    fileCfg.Server.Addr,
	}
	if cfg.Addr != "" {
		s.addr = cfg.Addr
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

	s.cur.Store(s.buildBundle(fileCfg, pol))
	return s, nil
}

// buildBundle derives the per-policy service values over the fixed backends.
func (s *Server) buildBundle(cfg *policy.Config, pol *policy.Policy) *bundle {
	return &bundle{
		pol: pol,
		fs:  fsio.Service{Paths: pol.Paths, Limits: pol.Limits},
		git: gitops.Service{Paths: pol.Paths, Verbs: pol.GitVerbs, Limits: pol.Limits},
		sqlSvc: sqlstore.Service{
			DB:     s.sqlDB,
			Ident:  pol.Ident,
			Limits: pol.Limits,
		},
		cacheSvc: cache.Service{
			Client: s.redisClient,
			MaxTTL: pol.CacheTTL,
			Limits: pol.Limits,
		},
		secretSvc: secrets.Service{Store: s.secretStore, Limits: pol.Limits},
		fetchSvc: fetch.Service{
			Methods:      pol.Fetch.Methods,
			AllowPrivate: pol.Fetch.AllowPrivate,
			Blocklist:    pol.Fetch.Blocklist,
			Limits:       pol.Limits,
		},
		dispatcher: alert.NewDispatcher(cfg.Alerts),
		scrub:      cfg.Redact.Outputs,
		token:      cfg.Server.Token,
	}
}

// Reload rebuilds the policy bundle from the configuration file and swaps it
// in. In-flight requests finish on the bundle they started with. A load or
// compile failure keeps the current bundle.
func (s *Server) Reload() error {
	fileCfg, hash, err := policy.LoadConfigWithHash(s.cfg.ConfigPath)
	if err != nil {
		return err
	}
	pol, err := policy.Build(fileCfg, hash)
	if err != nil {
		return err
	}
	s.limiter.SetLimits(pol.RateLimits)
	s.cur.Store(s.buildBundle(fileCfg, pol))
	s.log.WithField("policy_hash", hash).Info("policy reloaded")
	return nil
}

// PolicyHash returns the hash of the currently loaded policy.
func (s *Server) PolicyHash() string {
	return s.cur.Load().pol.Hash
}

// Start serves HTTP on the configured address. Blocks until Shutdown or a
// listener error.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", s.addr).Info("gateway listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if s.http != nil {
		firstErr = s.http.Shutdown(ctx)
	}
	if s.sqlDB != nil {
		if err := s.sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
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
