// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/mockapi"
	"github.com/nexusblog/nexus-client/internal/storage"
)

const (
	testEmail    = "alice@example.com"
	testUsername = "alice"
	testPassword = "correct-horse"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// harness is a fully wired controller talking to a mock backend.
type harness struct {
	backend *mockapi.Server
	server  *httptest.Server

	session *storage.MemoryStore
	local   *storage.MemoryStore
	jar     *storage.CookieJar
	bus     *events.Bus

	client   *api.Client
	tokens   *TokenStore
	security *SecurityContext
	refresh  *RefreshCoordinator
	timer    *SessionTimer
	ctrl     *Controller
}

func newHarness(t *testing.T, backendOpts []mockapi.Option, opts Options) *harness {
	t.Helper()

	backendOpts = append([]mockapi.Option{mockapi.WithLogger(quietLogger())}, backendOpts...)
	backend := mockapi.New(backendOpts...)
	backend.AddUser(testEmail, testUsername, testPassword)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	h := &harness{backend: backend, server: srv}
	h.wire(t, srv.URL, storage.NewMemoryStore(), storage.NewMemoryStore(), opts)
	return h
}

// wire builds the client-side components over the given stores.
func (h *harness) wire(t *testing.T, baseURL string, session, local *storage.MemoryStore, opts Options) {
	t.Helper()

	if opts.Retry == nil {
		opts.Retry = &RetryPolicy{}
	}
	logger := quietLogger()

	h.session = session
	h.local = local
	h.jar = storage.NewCookieJar(local)
	h.jar.SetLogger(logger)
	h.bus = events.NewBus()
	h.bus.SetLogger(logger)

	client, err := api.NewClient(baseURL, api.WithCookieJar(h.jar), api.WithLogger(logger))
	require.NoError(t, err)
	h.client = client

	h.tokens = NewTokenStore(session, h.jar, client.BaseURL(), logger)
	h.security = NewSecurityContext(client, local, "nexus-test", logger)
	h.refresh = NewRefreshCoordinator(client, h.tokens, h.security, local, logger)
	h.timer = NewSessionTimer(local, h.bus, logger)
	h.ctrl = NewController(Deps{
		Client:   client,
		Tokens:   h.tokens,
		Security: h.security,
		Refresh:  h.refresh,
		Timer:    h.timer,
		Local:    local,
		Bus:      h.bus,
		Logger:   logger,
	}, opts)
	t.Cleanup(h.ctrl.Close)
}

func (h *harness) login(t *testing.T) LoginResult {
	t.Helper()
	res, err := h.ctrl.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

// recorder collects events published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus, names ...string) *recorder {
	r := &recorder{}
	for _, name := range names {
		bus.Subscribe(name, func(ev events.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) transitions() []events.AuthStatePayload {
	var out []events.AuthStatePayload
	for _, ev := range r.named(events.AuthStateChanged) {
		out = append(out, ev.Payload.(events.AuthStatePayload))
	}
	return out
}

// jsonServer answers every route in routes with the given status and body,
// and 404 otherwise.
func jsonServer(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := routes[r.Method+" "+r.URL.Path]; ok {
			w.Header().Set("Content-Type", "application/json")
			fn(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msgAndArgs...)
}
