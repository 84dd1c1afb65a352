package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/imunoz/finsight/internal/api"
	"github.com/imunoz/finsight/internal/auth"
	"github.com/imunoz/finsight/internal/chat"
	"github.com/imunoz/finsight/internal/config"
	"github.com/imunoz/finsight/internal/history"
	"github.com/imunoz/finsight/internal/reports"
)

// app wires the client together: config, logger, token slot, session,
// gateway, chat synchronizer, report coordinator and the local archive.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	session *auth.Session
	client  *api.Client
	chat    *chat.Synchronizer
	reports *reports.Coordinator
	archive *history.Store
}

type tokenSourceFunc func() (string, bool)

func (f tokenSourceFunc) Token() (string, bool) { return f() }

// newApp is a variable so tests can substitute a fixture-backed build.
var newApp = func() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg.Log.Level)
	store := auth.NewFileTokenStore(cfg.Storage.DataDir)

	// Session and gateway reference each other: the gateway reads the bearer
	// token from the session, and a 401 from any call resets the session.
	var session *auth.Session
	client := api.New(cfg.API.BaseURL,
		api.WithHTTPClient(httpClient(cfg.API.TimeoutSeconds)),
		api.WithLogger(log),
		api.WithTokenSource(tokenSourceFunc(func() (string, bool) {
			if session == nil {
				return "", false
			}
			return session.Token()
		})),
		api.WithUnauthorizedHook(func() {
			if session != nil {
				session.Invalidate()
				printWarning("session expired; run `finsight login`")
			}
		}),
	)
	session = auth.NewSession(client, store, log)

	// The archive is best-effort: a broken local database never blocks the
	// client.
	var archiver chat.Archiver
	archive, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		log.Warn("opening local archive failed", zap.Error(err))
		archive = nil
	} else {
		archiver = archive
	}

	return &app{
		cfg:     cfg,
		log:     log,
		session: session,
		client:  client,
		chat:    chat.NewSynchronizer(client, archiver, log),
		reports: reports.New(client, cfg.Storage.DownloadDir, log),
		archive: archive,
	}, nil
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("closing archive failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// requireAuth restores the session from the persisted token and fails with a
// hint when nobody is signed in.
func (a *app) requireAuth(ctx context.Context) error {
	if err := a.session.CheckAuth(ctx); err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if !a.session.Authenticated() {
		return fmt.Errorf("not signed in; run `finsight login` first")
	}
	return nil
}

func newLogger(cfgLevel string) *zap.Logger {
	level := zapcore.WarnLevel
	if l, err := zapcore.ParseLevel(cfgLevel); err == nil {
		level = l
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	log, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func httpClient(timeoutSeconds int) *http.Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
