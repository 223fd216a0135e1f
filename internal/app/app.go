// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app builds the client object graph from configuration: storage
// tiers, the HTTP client and the authentication components.
package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/config"
	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/storage"
)

// reloadDebounce collapses the burst of change notifications a single
// multi-key update produces.
const reloadDebounce = 250 * time.Millisecond

// App is a fully wired client.
type App struct {
	Config *config.Config

	// Session is the per-process tier; Local is shared by every process of
	// the profile.
	Session storage.Store
	Local   storage.Store
	Jar     *storage.CookieJar
	Bus     *events.Bus
	Client  *api.Client

	Tokens     *auth.TokenStore
	Security   *auth.SecurityContext
	Refresh    *auth.RefreshCoordinator
	Timer      *auth.SessionTimer
	Controller *auth.Controller

	// Activity is where front ends report user interactions.
	Activity *auth.ActivityFeed

	logger  *log.Logger
	closers []io.Closer

	ctrl        atomic.Pointer[auth.Controller]
	reloadMu    sync.Mutex
	reloadTimer *time.Timer
	closeOnce   sync.Once
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     *log.Logger
	local      storage.Store
	httpClient *http.Client
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLocalStore supplies the durable tier instead of opening the configured
// backend.
func WithLocalStore(s storage.Store) Option {
	return func(o *options) { o.local = s }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New constructs the client described by cfg. The caller must Close it.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Config:   cfg,
		Session:  storage.NewMemoryStore(),
		Activity: auth.NewActivityFeed(),
		logger:   o.logger,
	}

	local := o.local
	if local == nil {
		var err error
		local, err = a.openLocal()
		if err != nil {
			return nil, err
		}
	}
	a.Local = local

	a.Jar = storage.NewCookieJar(local)
	a.Jar.SetLogger(a.logger)
	a.Bus = events.NewBus()
	a.Bus.SetLogger(a.logger)

	clientOpts := []api.Option{
		api.WithCookieJar(a.Jar),
		api.WithTimeout(cfg.Timeout()),
		api.WithLogger(a.logger),
		api.WithRefreshBuffer(cfg.RefreshBuffer()),
		api.WithUserAgent(cfg.API.UserAgent),
	}
	if o.httpClient != nil {
		clientOpts = append([]api.Option{api.WithHTTPClient(o.httpClient)}, clientOpts...)
	}
	client, err := api.NewClient(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.Client = client

	a.Tokens = auth.NewTokenStore(a.Session, a.Jar, client.BaseURL(), a.logger)
	a.Security = auth.NewSecurityContext(client, local, cfg.API.UserAgent, a.logger)
	a.Refresh = auth.NewRefreshCoordinator(client, a.Tokens, a.Security, local, a.logger)
	a.Timer = auth.NewSessionTimer(local, a.Bus, a.logger)
	a.Controller = auth.NewController(auth.Deps{
		Client:   client,
		Tokens:   a.Tokens,
		Security: a.Security,
		Refresh:  a.Refresh,
		Timer:    a.Timer,
		Local:    local,
		Bus:      a.Bus,
		Logger:   a.logger,
	}, auth.Options{
		SessionTimeout: cfg.SessionTimeout(),
		WarningWindow:  cfg.WarningWindow(),
		CheckInterval:  cfg.CheckInterval(),
		ReverifyAfter:  cfg.ReverifyAfter(),
		Retry: &auth.RetryPolicy{
			Retries: cfg.Auth.RateLimitRetries,
			Step:    cfg.RateLimitStep(),
		},
		Activity: []auth.ActivitySource{a.Activity},
	})
	a.ctrl.Store(a.Controller)
	return a, nil
}

func (a *App) openLocal() (storage.Store, error) {
	backend := strings.ToLower(a.Config.Storage.Backend)
	if backend == config.BackendMemory {
		return storage.NewMemoryStore(), nil
	}

	path, err := a.Config.StoragePath()
	if err != nil {
		return nil, err
	}

	switch backend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLiteStore(path, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		s, err := storage.OpenFileStore(path,
			storage.WithFileLogger(a.logger),
			storage.WithReloadHook(a.scheduleSync),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	}
}

// scheduleSync runs syncFromStore once the store has been quiet for
// reloadDebounce.
func (a *App) scheduleSync() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	if a.reloadTimer != nil {
		a.reloadTimer.Stop()
	}
	a.reloadTimer = time.AfterFunc(reloadDebounce, a.syncFromStore)
}

// syncFromStore reconciles this process with a sign-in or sign-out made by
// another process sharing the profile.
func (a *App) syncFromStore() {
	ctrl := a.ctrl.Load()
	if ctrl == nil {
		return
	}
	hasToken := a.Tokens.Resync() != ""
	if hasToken != ctrl.IsAuthenticated() {
		ctrl.HandleVisibilityChange(true)
	}
}

// Close stops background work and closes durable stores. Stored session
// state is kept.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.ctrl.Store(nil)
		a.reloadMu.Lock()
		if a.reloadTimer != nil {
			a.reloadTimer.Stop()
		}
		a.reloadMu.Unlock()

		a.Controller.Close()
		errs = a.closeStores()
	})
	return errors.Join(errs...)
}

func (a *App) closeStores() []error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errs
}
