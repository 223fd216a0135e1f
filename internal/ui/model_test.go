// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/nexusblog/nexus-client/internal/app"
	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/config"
	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/mockapi"
	"github.com/nexusblog/nexus-client/internal/ui/components"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

type harness struct {
	backend *mockapi.Server
	url     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := mockapi.New(mockapi.WithLogger(log.New(io.Discard, "", 0)))
	backend.AddUser(testEmail, "alice", testPassword)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return &harness{backend: backend, url: srv.URL}
}

func (h *harness) newApp(t *testing.T, backend, path string) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = h.url
	cfg.Storage.Backend = backend
	cfg.Storage.Path = path
	cfg.Auth.RateLimitRetries = 0
	cfg.UI.Theme = "dark"
	a, err := app.New(cfg, app.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// collect runs cmd and every command it batches, returning the messages.
// Commands that sleep (tea.Tick) must not be passed in.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// deliver feeds the messages cmd produces of the async result types back
// into m.
func deliver(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for _, msg := range collect(cmd) {
		switch msg.(type) {
		case loginResultMsg, verifyResultMsg, logoutDoneMsg, visibilityHandledMsg,
			components.SessionExtendedMsg, components.ExpiredDismissedMsg:
			_, next := m.Update(msg)
			deliver(t, m, next)
		}
	}
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func signIn(t *testing.T, m *Model, email, password string) {
	t.Helper()
	m.email.SetValue(email)
	m.pass.SetValue(password)
	m.setFocus(focusPassword)
	_, cmd := m.Update(key(tea.KeyEnter))
	deliver(t, m, cmd)
}

func TestNew_StartsOnLoginWithoutToken(t *testing.T) {
	h := newHarness(t)
	m := New(h.newApp(t, config.BackendMemory, ""))
	require.Equal(t, ScreenLogin, m.Screen())
	require.Contains(t, m.View(), "Sign in to Nexus")
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)

	signIn(t, m, testEmail, testPassword)

	require.Equal(t, ScreenHome, m.Screen())
	require.True(t, a.Controller.IsAuthenticated())
	require.Empty(t, m.pass.Value())
	require.Contains(t, m.View(), "alice")
}

func TestLogin_WrongPasswordStaysOnForm(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)

	signIn(t, m, testEmail, "nope")

	require.Equal(t, ScreenLogin, m.Screen())
	require.NotEmpty(t, m.errMsg)
	require.False(t, a.Controller.IsAuthenticated())
	require.Empty(t, m.pass.Value())
}

func TestLogin_MissingFieldsRejectedLocally(t *testing.T) {
	h := newHarness(t)
	m := New(h.newApp(t, config.BackendMemory, ""))

	m.setFocus(focusSubmit)
	_, cmd := m.Update(key(tea.KeyEnter))
	require.Nil(t, cmd)
	require.NotEmpty(t, m.errMsg)
	require.False(t, m.busy)
}

func TestLogin_TwoFactor(t *testing.T) {
	h := newHarness(t)
	secret, err := h.backend.EnableTOTP(testEmail)
	require.NoError(t, err)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)

	signIn(t, m, testEmail, testPassword)
	require.Equal(t, ScreenTwoFactor, m.Screen())
	require.NotEmpty(t, m.tempToken)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	m.code.SetValue(code)
	_, cmd := m.Update(key(tea.KeyEnter))
	deliver(t, m, cmd)

	require.Equal(t, ScreenHome, m.Screen())
	require.True(t, a.Controller.IsAuthenticated())
	require.Empty(t, m.tempToken)
}

func TestLogin_TwoFactorEscReturnsToForm(t *testing.T) {
	h := newHarness(t)
	_, err := h.backend.EnableTOTP(testEmail)
	require.NoError(t, err)
	m := New(h.newApp(t, config.BackendMemory, ""))

	signIn(t, m, testEmail, testPassword)
	require.Equal(t, ScreenTwoFactor, m.Screen())

	m.Update(key(tea.KeyEsc))
	require.Equal(t, ScreenLogin, m.Screen())
	require.Empty(t, m.tempToken)
}

func TestLoginForm_FocusCycles(t *testing.T) {
	h := newHarness(t)
	m := New(h.newApp(t, config.BackendMemory, ""))
	require.Equal(t, focusEmail, m.focus)

	m.Update(key(tea.KeyTab))
	require.Equal(t, focusPassword, m.focus)
	m.Update(key(tea.KeyTab))
	require.Equal(t, focusSubmit, m.focus)
	m.Update(key(tea.KeyTab))
	require.Equal(t, focusEmail, m.focus)
	m.Update(key(tea.KeyShiftTab))
	require.Equal(t, focusSubmit, m.focus)

	m.setFocus(focusEmail)
	m.Update(runes("bob"))
	require.Equal(t, "bob", m.email.Value())
}

func TestStoredSession_VerifiedOnStartup(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "state.json")

	first := h.newApp(t, config.BackendFile, path)
	_, err := first.Controller.Login(context.Background(), auth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := h.newApp(t, config.BackendFile, path)
	m := New(second)
	require.Equal(t, ScreenLoading, m.Screen())
	require.Contains(t, m.View(), "Restoring")

	deliver(t, m, m.verifyCmd())
	require.Equal(t, ScreenHome, m.Screen())
	require.True(t, second.Controller.IsAuthenticated())
}

func TestHome_LogoutReturnsToLogin(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)
	signIn(t, m, testEmail, testPassword)
	require.Equal(t, ScreenHome, m.Screen())

	_, cmd := m.Update(runes("l"))
	deliver(t, m, cmd)

	require.Equal(t, ScreenLogin, m.Screen())
	require.False(t, a.Controller.IsAuthenticated())
	require.Empty(t, a.Tokens.Get())
	require.Equal(t, "Signed out", m.notice)
}

func TestSessionWarning_KeyExtends(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)
	signIn(t, m, testEmail, testPassword)

	m.Update(SessionWarningMsg{Remaining: 4 * time.Minute})
	require.True(t, m.overlay.IsVisible())
	require.Contains(t, m.View(), "4:00")

	_, cmd := m.Update(runes("x"))
	require.False(t, m.overlay.IsVisible())
	deliver(t, m, cmd)

	require.Empty(t, m.errMsg)
	require.InDelta(t, float64(a.Config.SessionTimeout()), float64(a.Controller.SessionRemaining()), float64(5*time.Second))
	require.Equal(t, ScreenHome, m.Screen())
}

func TestSessionExpired_DismissShowsLogin(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)
	signIn(t, m, testEmail, testPassword)
	m.email.SetValue(testEmail)

	m.Update(SessionExpiredMsg{})
	require.True(t, m.overlay.IsExpired())
	require.Contains(t, m.View(), "Session Expired")

	_, cmd := m.Update(runes("x"))
	deliver(t, m, cmd)
	require.Equal(t, ScreenLogin, m.Screen())
	require.Equal(t, focusPassword, m.focus)
}

func TestAccountLockout_BlocksSubmit(t *testing.T) {
	h := newHarness(t)
	m := New(h.newApp(t, config.BackendMemory, ""))

	m.Update(AccountLockoutMsg{Until: time.Now().Add(10 * time.Minute), Reason: "Too many failed attempts"})
	require.True(t, m.banner.Active())
	require.Contains(t, m.View(), "Too many failed attempts")

	m.email.SetValue(testEmail)
	m.pass.SetValue(testPassword)
	m.setFocus(focusSubmit)
	_, cmd := m.Update(key(tea.KeyEnter))
	require.Nil(t, cmd)
	require.Contains(t, m.errMsg, "locked")
}

func TestAuthState_AnonymousLeavesHome(t *testing.T) {
	h := newHarness(t)
	m := New(h.newApp(t, config.BackendMemory, ""))
	signIn(t, m, testEmail, testPassword)

	m.Update(AuthStateMsg{From: "authenticated", To: "anonymous"})
	require.Equal(t, ScreenLogin, m.Screen())

	m.Update(AuthStateMsg{From: "anonymous", To: "authenticated"})
	require.Equal(t, ScreenHome, m.Screen())
}

func TestInput_EmitsActivity(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)

	var (
		mu    sync.Mutex
		kinds []auth.ActivityKind
	)
	unsubscribe := a.Activity.OnActivity(func(k auth.ActivityKind) {
		mu.Lock()
		kinds = append(kinds, k)
		mu.Unlock()
	})
	defer unsubscribe()

	m.Update(runes("a"))
	m.Update(tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	m.Update(tea.MouseMsg{Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []auth.ActivityKind{auth.ActivityKeyPress, auth.ActivityScroll, auth.ActivityMouseDown}, kinds)
}

func TestFocus_ReconcilesWithStore(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)
	signIn(t, m, testEmail, testPassword)

	a.Tokens.Clear()
	_, cmd := m.Update(tea.FocusMsg{})
	deliver(t, m, cmd)

	require.False(t, a.Controller.IsAuthenticated())
	require.Equal(t, ScreenLogin, m.Screen())
}

func TestBlur_LeavesSessionAlone(t *testing.T) {
	h := newHarness(t)
	a := h.newApp(t, config.BackendMemory, "")
	m := New(a)
	signIn(t, m, testEmail, testPassword)

	a.Tokens.Clear()
	_, cmd := m.Update(tea.BlurMsg{})
	deliver(t, m, cmd)

	require.True(t, a.Controller.IsAuthenticated())
	require.Equal(t, ScreenHome, m.Screen())
}

func TestBridge_ForwardsEvents(t *testing.T) {
	bus := events.NewBus()
	var got []tea.Msg
	unsubscribe := Bridge(bus, func(msg tea.Msg) { got = append(got, msg) })

	until := time.Now().Add(time.Minute)
	bus.Publish(events.SessionWarning, events.SessionWarningPayload{Remaining: time.Minute})
	bus.Publish(events.SessionExpired, nil)
	bus.Publish(events.AccountLockout, events.AccountLockoutPayload{Until: until, Reason: "locked"})
	bus.Publish(events.AuthStateChanged, events.AuthStatePayload{From: "anonymous", To: "authenticated"})

	require.Equal(t, []tea.Msg{
		SessionWarningMsg{Remaining: time.Minute},
		SessionExpiredMsg{},
		AccountLockoutMsg{Until: until, Reason: "locked"},
		AuthStateMsg{From: "anonymous", To: "authenticated"},
	}, got)

	unsubscribe()
	require.Zero(t, bus.SubscriberCount(events.SessionWarning))
	require.Zero(t, bus.SubscriberCount(events.AuthStateChanged))
}

func TestFormatCountdown(t *testing.T) {
	require.Equal(t, "expired", formatCountdown(0))
	require.Equal(t, "0:45", formatCountdown(45*time.Second))
	require.Equal(t, "29:59", formatCountdown(29*time.Minute+59*time.Second))
	require.Equal(t, "1h05m", formatCountdown(65*time.Minute))
}
