package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/cloudo-app/cloudo-go/internal/api"
	"github.com/cloudo-app/cloudo-go/internal/config"
	"github.com/cloudo-app/cloudo-go/internal/registry"
	"github.com/cloudo-app/cloudo-go/internal/session"
	"github.com/cloudo-app/cloudo-go/internal/transfer"
)

// services is the object graph one command invocation works with. Every
// piece is constructed here and passed explicitly; nothing is global.
type services struct {
	session  *session.Session
	accounts *api.Client // unauthenticated: login and register
	client   *api.Client // authenticated by session
	orch     *transfer.Orchestrator
	registry *registry.Registry
	cache    *registry.SQLiteCache // nil when disabled or unavailable
	logger   *slog.Logger
}

// newServices wires the client stack for cfg. A corrupt credential file or
// an unavailable cache degrades to "logged out" or "no cache" with a
// warning; neither stops the command.
func newServices(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*services, error) {
	httpClient := newHTTPClient(cfg)
	userAgent := cfg.Network.UserAgent

	if userAgent == "" {
		userAgent = "cloudo-go/" + version
	}

	accounts := api.NewClient(cfg.Server.BaseURL, httpClient, nil, logger, userAgent)
	store := session.NewFileStore(cfg.TokenPath, cfg.Server.BaseURL, logger)
	sess := session.New(accounts, store, logger)

	if _, err := sess.Restore(); err != nil {
		logger.Warn("ignoring unreadable credential",
			slog.String("path", store.Path()),
			slog.String("error", err.Error()),
		)
	}

	client := api.NewClient(cfg.Server.BaseURL, httpClient, sess, logger, userAgent)

	orch := transfer.NewOrchestrator(client, transfer.Options{
		BandwidthLimit: cfg.BandwidthLimit,
		MaxUploadSize:  cfg.MaxUploadSize,
		ReadRetry:      transfer.RetryPolicy{MaxRetries: uint64(cfg.Network.MaxRetries)},
	}, logger)

	svc := &services{
		session:  sess,
		accounts: accounts,
		client:   client,
		orch:     orch,
		logger:   logger,
	}

	var cache registry.Cache

	if cfg.Cache.Enabled {
		sc, err := registry.OpenCache(ctx, cfg.CachePath, logger)
		if err != nil {
			logger.Warn("snapshot cache unavailable",
				slog.String("path", cfg.CachePath),
				slog.String("error", err.Error()),
			)
		} else {
			svc.cache = sc
			cache = sc
		}
	}

	svc.registry = registry.New(orch, cache, logger)

	if err := svc.registry.Warm(ctx); err != nil {
		logger.Warn("loading cached snapshot", slog.String("error", err.Error()))
	}

	return svc, nil
}

// newHTTPClient bounds connection setup and waiting for response headers.
// There is no overall timeout: large uploads may legitimately take long and
// are bounded by the command context instead.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.DataTimeout,
			MaxIdleConnsPerHost:   cfg.Transfers.ParallelUploads,
		},
	}
}

// Close releases the snapshot cache.
func (s *services) Close() error {
	if s.cache == nil {
		return nil
	}

	return s.cache.Close()
}
