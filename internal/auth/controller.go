// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/storage"
	"github.com/nexusblog/nexus-client/internal/util"
)

// Re-verification defaults.
const (
	// DefaultReverifyAfter is how stale the last verification must be before
	// regaining visibility triggers another.
	DefaultReverifyAfter = time.Minute

	// DefaultVerifyDelay postpones that background verification so the
	// front end can settle first.
	DefaultVerifyDelay = 500 * time.Millisecond
)

// State is the authentication state exposed to the rest of the client.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Credentials are what the user types to sign in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is a new account request.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginResult is the outcome of Login, Register and VerifyLogin2FA. Message
// is set whenever Success is false.
type LoginResult struct {
	Success     bool
	Requires2FA bool
	TempToken   string
	User        *User
	Message     string
	RetryAfter  time.Duration
	Lockout     *LockoutInfo
}

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	SessionTimeout time.Duration
	WarningWindow  time.Duration
	CheckInterval  time.Duration
	ReverifyAfter  time.Duration
	VerifyDelay    time.Duration
	Retry          *RetryPolicy

	// Activity feeds the session timer.
	Activity []ActivitySource
}

// Deps are the collaborators a Controller coordinates.
type Deps struct {
	Client   *api.Client
	Tokens   *TokenStore
	Security *SecurityContext
	Refresh  *RefreshCoordinator
	Timer    *SessionTimer
	Local    storage.Store
	Bus      *events.Bus
	Logger   *log.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the authenticated/anonymous state. It signs users in and
// out, re-verifies cached sessions, and reacts to session expiry and
// unrecoverable 401s.
type Controller struct {
	client   *api.Client
	tokens   *TokenStore
	security *SecurityContext
	refresh  *RefreshCoordinator
	timer    *SessionTimer
	local    storage.Store
	bus      *events.Bus
	lockouts *lockoutStore
	opts     Options
	retry    RetryPolicy

	mu    sync.RWMutex
	state State
	user  *User

	unsubscribe func()
	closeOnce   sync.Once
	closed      chan struct{}
	bgMu        sync.Mutex
	bg          sync.WaitGroup

	now    func() time.Time
	logger *log.Logger
}

// NewController wires a Controller into its collaborators: the API client
// gets the token, header and refresh sources, and session expiry signs the
// user out.
func NewController(deps Deps, opts Options) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if opts.ReverifyAfter <= 0 {
		opts.ReverifyAfter = DefaultReverifyAfter
	}
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = DefaultVerifyDelay
	}
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	c := &Controller{
		client:   deps.Client,
		tokens:   deps.Tokens,
		security: deps.Security,
		refresh:  deps.Refresh,
		timer:    deps.Timer,
		local:    deps.Local,
		bus:      deps.Bus,
		opts:     opts,
		retry:    retry,
		closed:   make(chan struct{}),
		now:      time.Now,
		logger:   logger,
	}
	c.lockouts = &lockoutStore{local: deps.Local, now: func() time.Time { return c.now() }, logger: logger}

	c.client.SetTokenSource(c.tokens)
	c.client.SetHeaderSource(c.security)
	c.client.SetRefresher(c.refresh)
	c.client.SetUnauthorizedHandler(func() { c.purge("UNRECOVERABLE_401") })

	c.unsubscribe = c.bus.Subscribe(events.SessionExpired, func(events.Event) {
		c.goBackground(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			c.Logout(ctx)
		})
	})
	return c
}

// Bus returns the event bus the controller publishes on.
func (c *Controller) Bus() *events.Bus { return c.bus }

// Token returns the current access token, or "".
func (c *Controller) Token() string { return c.tokens.Get() }

// IsAuthenticated reports whether the state is authenticated.
func (c *Controller) IsAuthenticated() bool { return c.State() == StateAuthenticated }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// User returns the signed-in user, or nil.
func (c *Controller) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Lockout returns the lockout in force, if any.
func (c *Controller) Lockout() (LockoutInfo, bool) {
	return c.lockouts.Current()
}

// SessionRemaining returns the time left before the inactivity timeout.
func (c *Controller) SessionRemaining() time.Duration {
	return c.timer.Remaining()
}

// ExtendSession restarts the inactivity cycle, as when the user dismisses a
// session warning.
func (c *Controller) ExtendSession() error {
	return c.timer.Extend(0)
}

// Close stops timers and waits for background work. Stored state is kept.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.bgMu.Lock()
		close(c.closed)
		c.bgMu.Unlock()
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.timer.Stop()
	})
	c.bg.Wait()
}

// =============================================================================
// LOGIN / REGISTER
// =============================================================================

// Login signs in with email and password. Backend refusals, including rate
// limiting and lockout, come back as a LoginResult with a user-facing
// Message alongside the error.
func (c *Controller) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	creds.Email = normalizeEmail(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return LoginResult{Message: UserMessage(ErrMissingCredential)}, ErrMissingCredential
	}
	if info, locked := c.lockouts.Current(); locked {
		err := &LockoutError{Info: info, now: c.now()}
		return LoginResult{Message: UserMessage(err), Lockout: &info}, err
	}

	return c.authenticate(ctx, "LOGIN", api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/login",
		Body:            creds,
		SkipAuthRefresh: true,
	})
}

// Register creates an account and signs in with it.
func (c *Controller) Register(ctx context.Context, reg Registration) (LoginResult, error) {
	reg.Email = normalizeEmail(reg.Email)
	reg.Username = norm.NFKC.String(strings.TrimSpace(reg.Username))
	if reg.Email == "" || reg.Password == "" {
		return LoginResult{Message: UserMessage(ErrMissingCredential)}, ErrMissingCredential
	}

	return c.authenticate(ctx, "REGISTER", api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/register",
		Body:            reg,
		SkipAuthRefresh: true,
	})
}

// authResponse is the login/register/verify-login payload.
type authResponse struct {
	Token                 string          `json:"token"`
	AccessToken           string          `json:"accessToken"`
	User                  json.RawMessage `json:"user"`
	ExpiresIn             *float64        `json:"expiresIn"`
	RefreshTokenExpiresIn *float64        `json:"refreshTokenExpiresIn"`
	Requires2FA           bool            `json:"requires2FA"`
	TempToken             string          `json:"tempToken"`
}

// authenticate runs one credential exchange and, on success, establishes the
// session.
func (c *Controller) authenticate(ctx context.Context, op string, req api.Request) (LoginResult, error) {
	prev := c.transition(StateAuthenticating, nil, false)

	var resp authResponse
	err := c.retry.Do(ctx, func() error {
		resp = authResponse{}
		return c.client.Do(ctx, req, &resp)
	})
	if err != nil {
		c.transition(prev, nil, false)
		return c.authFailure(op, err), err
	}

	if resp.Requires2FA {
		c.transition(prev, nil, false)
		logAuthEvent(c.logger, op+"_2FA_REQUIRED", "")
		return LoginResult{
			Requires2FA: true,
			TempToken:   resp.TempToken,
			Message:     "Enter the code from your authenticator app.",
		}, nil
	}

	user, err := c.establish(ctx, resp)
	if err != nil {
		c.transition(prev, nil, false)
		logAuthEvent(c.logger, op+"_FAILED", fmt.Sprintf("error=%v", err))
		return LoginResult{Message: UserMessage(err)}, err
	}

	logAuthEvent(c.logger, op+"_SUCCEEDED", fmt.Sprintf("user=%s", util.MaskEmail(user.Email)))
	return LoginResult{Success: true, User: user}, nil
}

func (c *Controller) authFailure(op string, err error) LoginResult {
	result := LoginResult{Message: UserMessage(err)}
	apiErr, ok := api.AsError(err)
	if !ok {
		logAuthEvent(c.logger, op+"_FAILED", fmt.Sprintf("error=%v", err))
		return result
	}

	switch apiErr.Kind {
	case api.KindRateLimited:
		result.RetryAfter = apiErr.RetryAfter
		logAuthEvent(c.logger, op+"_RATE_LIMITED", fmt.Sprintf("retry_after=%v", apiErr.RetryAfter))
	case api.KindAccountLocked:
		var reason string
		var d time.Duration
		if apiErr.Lockout != nil {
			reason, d = apiErr.Lockout.Reason, apiErr.Lockout.Duration
		}
		info := c.lockouts.Record(reason, d)
		result.Lockout = &info
		c.bus.Publish(events.AccountLockout, events.AccountLockoutPayload{Until: info.UntilTime(), Reason: info.Reason})
	default:
		logAuthEvent(c.logger, op+"_FAILED", fmt.Sprintf("status=%d kind=%s", apiErr.Status, apiErr.Kind))
	}
	return result
}

// establish stores the credentials from a successful exchange and moves to
// authenticated.
func (c *Controller) establish(ctx context.Context, resp authResponse) (*User, error) {
	tok := resp.Token
	if tok == "" {
		tok = resp.AccessToken
	}
	if tok == "" {
		return nil, fmt.Errorf("%w: no token", ErrMalformedResponse)
	}
	user, err := ParseUser(resp.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	c.tokens.Set(tok)
	c.refresh.RecordTokenExpiry(secondsToDuration(resp.ExpiresIn))
	c.refresh.RecordRefreshTokenExpiry(secondsToDuration(resp.RefreshTokenExpiresIn))
	c.saveUser(user)
	c.markVerified()

	c.security.FetchCsrfToken(ctx)

	c.transition(StateAuthenticated, user, true)
	c.startTimer()
	return user, nil
}

// =============================================================================
// VERIFICATION
// =============================================================================

type meResponse struct {
	User json.RawMessage `json:"user"`
}

// VerifyUser confirms the cached session with the backend and refreshes the
// cached user. Only a 401 that a token refresh cannot fix signs the user
// out; rate limiting, missing endpoints, server and network failures keep
// the cached session. The returned error describes why verification did
// not complete; it does not by itself mean the session ended.
func (c *Controller) VerifyUser(ctx context.Context) error {
	token := c.tokens.Get()
	cached := c.cachedUser()
	if token == "" || cached == nil {
		c.transition(StateAnonymous, nil, false)
		return nil
	}
	if c.State() != StateAuthenticated {
		c.transition(StateAuthenticating, cached, false)
	}

	fresh, err := c.fetchMe(ctx)
	if errors.Is(err, api.ErrAuthInvalid) {
		if _, rerr := c.refresh.RefreshAccessToken(ctx); rerr != nil {
			if api.KindOf(rerr).IsTransient() {
				c.keepCached(cached, rerr)
			} else {
				c.purge("VERIFY_REFRESH_FAILED")
			}
			return fmt.Errorf("verify user: %w", rerr)
		}
		fresh, err = c.fetchMe(ctx)
		if errors.Is(err, api.ErrAuthInvalid) {
			c.purge("VERIFY_REJECTED_AFTER_REFRESH")
			return fmt.Errorf("verify user: %w", err)
		}
	}

	if err != nil {
		c.keepCached(cached, err)
		return fmt.Errorf("verify user: %w", err)
	}

	merged := MergeUser(cached, fresh, c.pendingBookmarks())
	c.saveUser(merged)
	c.markVerified()
	c.transition(StateAuthenticated, merged, true)
	c.startTimer()
	logAuthEvent(c.logger, "VERIFY_SUCCEEDED", fmt.Sprintf("user=%s", util.MaskEmail(merged.Email)))
	return nil
}

func (c *Controller) fetchMe(ctx context.Context) (*User, error) {
	var resp meResponse
	err := c.retry.Do(ctx, func() error {
		resp = meResponse{}
		return c.client.Do(ctx, api.Request{
			Method:          http.MethodGet,
			Path:            "/auth/me",
			SkipAuthRefresh: true,
		}, &resp)
	})
	if err != nil {
		return nil, err
	}
	user, err := ParseUser(resp.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return user, nil
}

// keepCached stays signed in with the cached user after a verification
// failure that says nothing about the session's validity.
func (c *Controller) keepCached(cached *User, err error) {
	c.transition(StateAuthenticated, cached, true)
	c.startTimer()

	switch api.KindOf(err) {
	case api.KindRateLimited:
		logAuthEvent(c.logger, "VERIFY_RATE_LIMITED", "keeping cached session")
	case api.KindNotFound:
		logAuthEvent(c.logger, "VERIFY_ENDPOINT_MISSING", "keeping cached session")
	case api.KindServer, api.KindNetwork:
		logAuthEvent(c.logger, "VERIFY_UNAVAILABLE", fmt.Sprintf("keeping cached session error=%v", err))
	default:
		logAuthEvent(c.logger, "VERIFY_FAILED", fmt.Sprintf("keeping cached session error=%v", err))
	}
}

// HandleVisibilityChange reacts to the front end being hidden or shown. On
// becoming visible the token is re-read from durable storage and the state
// reconciled with it immediately; a background verification follows when
// the last one is older than ReverifyAfter.
func (c *Controller) HandleVisibilityChange(visible bool) {
	if !visible {
		return
	}

	token := c.tokens.Resync()
	cached := c.cachedUser()
	state := c.State()

	switch {
	case token == "" && state == StateAuthenticated:
		c.purge("TOKEN_MISSING_ON_RESUME")
		return
	case token == "" || cached == nil:
		return
	case state != StateAuthenticated:
		c.transition(StateAuthenticated, cached, true)
		c.startTimer()
		logAuthEvent(c.logger, "SESSION_RESTORED", fmt.Sprintf("user=%s", util.MaskEmail(cached.Email)))
	}

	if last, ok := storage.GetInt64(c.local, storage.KeyLastAuthCheck); ok && c.now().Sub(time.UnixMilli(last)) <= c.opts.ReverifyAfter {
		return
	}
	c.goBackground(func() {
		t := time.NewTimer(c.opts.VerifyDelay)
		defer t.Stop()
		select {
		case <-c.closed:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := c.VerifyUser(ctx); err != nil {
			logAuthEvent(c.logger, "BACKGROUND_VERIFY_FAILED", fmt.Sprintf("error=%v", err))
		}
	})
}

// =============================================================================
// LOGOUT
// =============================================================================

// Logout tells the backend to end the session, then clears all local
// session state whether or not the backend call succeeded.
func (c *Controller) Logout(ctx context.Context) {
	err := c.client.Do(ctx, api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/logout",
		SkipAuthRefresh: true,
	}, nil)
	if err != nil {
		logAuthEvent(c.logger, "LOGOUT_SERVER_FAILED", fmt.Sprintf("error=%v", err))
	}
	c.purge("LOGOUT")
}

// purge clears every tier of session state and moves to anonymous. The
// lockout record is not touched.
func (c *Controller) purge(reason string) {
	c.tokens.Clear()
	c.refresh.ClearExpiry()
	c.security.ClearCsrf()
	c.timer.Clear()
	if err := storage.RemoveAll(c.local, storage.KeyUser, storage.KeyLastAuthCheck); err != nil {
		logAuthEvent(c.logger, "SESSION_PURGE_FAILED", fmt.Sprintf("error=%v", err))
	}
	c.transition(StateAnonymous, nil, true)
	logAuthEvent(c.logger, "SESSION_ENDED", "reason="+reason)
}

// =============================================================================
// ACCOUNT
// =============================================================================

// ChangePassword changes the password. The session continues; a rotated
// token in the response replaces the current one.
func (c *Controller) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return ErrMissingCredential
	}
	if current == next {
		return ErrSamePassword
	}

	var resp authResponse
	err := c.client.Post(ctx, "/auth/change-password", map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, &resp)
	if err != nil {
		logAuthEvent(c.logger, "PASSWORD_CHANGE_FAILED", fmt.Sprintf("kind=%s", api.KindOf(err)))
		return fmt.Errorf("change password: %w", err)
	}

	if tok := firstNonEmpty(resp.Token, resp.AccessToken); tok != "" {
		c.tokens.Set(tok)
		c.refresh.RecordTokenExpiry(secondsToDuration(resp.ExpiresIn))
	}
	logAuthEvent(c.logger, "PASSWORD_CHANGED", "")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// transition sets the state (and, when setUser is true, the user) and
// publishes auth-state-changed if the state changed. It returns the
// previous state.
func (c *Controller) transition(to State, user *User, setUser bool) State {
	c.mu.Lock()
	from := c.state
	c.state = to
	if setUser || to == StateAnonymous {
		c.user = user
	}
	c.mu.Unlock()

	if from != to {
		c.bus.Publish(events.AuthStateChanged, events.AuthStatePayload{From: from.String(), To: to.String()})
	}
	return from
}

func (c *Controller) startTimer() {
	if c.timer.Active() {
		return
	}
	c.timer.Init(SessionOptions{
		Timeout:       c.opts.SessionTimeout,
		WarningWindow: c.opts.WarningWindow,
		CheckInterval: c.opts.CheckInterval,
		Sources:       c.opts.Activity,
	})
}

func (c *Controller) cachedUser() *User {
	raw, ok := c.local.Get(storage.KeyUser)
	if !ok {
		return nil
	}
	user, err := ParseUser([]byte(raw))
	if err != nil {
		logAuthEvent(c.logger, "CACHED_USER_CORRUPT", fmt.Sprintf("error=%v", err))
		return nil
	}
	return user
}

func (c *Controller) saveUser(user *User) {
	if err := storage.SetJSON(c.local, storage.KeyUser, user); err != nil {
		logAuthEvent(c.logger, "USER_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
}

func (c *Controller) markVerified() {
	if err := storage.SetInt64(c.local, storage.KeyLastAuthCheck, c.now().UnixMilli()); err != nil {
		logAuthEvent(c.logger, "AUTH_CHECK_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
}

func (c *Controller) pendingBookmarks() []json.RawMessage {
	var ids []json.RawMessage
	if _, err := storage.GetJSON(c.local, storage.KeyPendingBookmarks, &ids); err != nil {
		logAuthEvent(c.logger, "PENDING_BOOKMARKS_CORRUPT", fmt.Sprintf("error=%v", err))
		return nil
	}
	return ids
}

// goBackground runs fn unless the controller is closed.
func (c *Controller) goBackground(fn func()) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	select {
	case <-c.closed:
		return
	default:
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
}

func normalizeEmail(email string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(email)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
