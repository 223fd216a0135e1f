// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Backend defaults.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultCsrfTTL    = 30 * time.Minute

	// RefreshCookieName is the HttpOnly cookie carrying the refresh token.
	RefreshCookieName = "nexus_refresh"

	twoFactorChallengeTTL = 5 * time.Minute
	totpIssuer            = "Nexus"
)

// account is a registered user.
type account struct {
	ID           int64
	Username     string
	Email        string
	Role         string
	Avatar       string
	CreatedAt    time.Time
	Bookmarks    []int64
	PasswordHash []byte

	TOTPSecret    string
	PendingSecret string
}

type refreshSession struct {
	email     string
	expiresAt time.Time
}

type challenge struct {
	email     string
	expiresAt time.Time
}

type fault struct {
	status int
	times  int
}

// Server is the mock backend. All state is in memory and guarded by mu.
type Server struct {
	engine *gin.Engine
	tokens *tokenIssuer
	lock   *LockoutManager

	accessTTL    time.Duration
	refreshTTL   time.Duration
	refreshDelay time.Duration
	csrfRequired bool
	omit         map[string]bool
	limit        rate.Limit
	burst        int

	mu         sync.Mutex
	nextID     int64
	accounts   map[string]*account // by email
	sessions   map[string]refreshSession
	csrf       map[string]time.Time
	challenges map[string]challenge
	limiters   map[string]*rate.Limiter
	faults     map[string]*fault
	calls      map[string]int

	now    func() time.Time
	logger *log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithRefreshTTL sets the refresh cookie lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) { s.refreshTTL = d }
}

// WithRefreshDelay makes /auth/refresh wait before answering, so concurrent
// refreshes overlap.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) { s.refreshDelay = d }
}

// WithLockout sets the failed-login threshold and lockout length.
func WithLockout(maxAttempts int, d time.Duration) Option {
	return func(s *Server) { s.lock = NewLockoutManager(maxAttempts, d, s.logger) }
}

// WithRateLimit limits login and register calls per client address.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		s.limit = r
		s.burst = burst
	}
}

// WithCSRFRequired rejects state-changing account calls without a valid
// X-CSRF-Token.
func WithCSRFRequired() Option {
	return func(s *Server) { s.csrfRequired = true }
}

// WithOmittedUserFields drops fields from /auth/me responses, like older
// backend versions do.
func WithOmittedUserFields(fields ...string) Option {
	return func(s *Server) {
		for _, f := range fields {
			s.omit[f] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSecret sets the JWT signing key.
func WithSecret(secret string) Option {
	return func(s *Server) { s.tokens.secret = []byte(secret) }
}

// New creates a Server with no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		omit:       make(map[string]bool),
		limit:      rate.Inf,
		nextID:     1,
		accounts:   make(map[string]*account),
		sessions:   make(map[string]refreshSession),
		csrf:       make(map[string]time.Time),
		challenges: make(map[string]challenge),
		limiters:   make(map[string]*rate.Limiter),
		faults:     make(map[string]*fault),
		calls:      make(map[string]int),
		now:        time.Now,
		logger:     log.Default(),
	}
	s.tokens = &tokenIssuer{secret: []byte(randomToken(32)), now: func() time.Time { return s.now() }}
	for _, opt := range opts {
		opt(s)
	}
	if s.lock == nil {
		s.lock = NewLockoutManager(DefaultMaxAttempts, DefaultLockoutDuration, s.logger)
	}
	s.lock.now = func() time.Time { return s.now() }
	s.lock.logger = s.logger
	s.tokens.ttl = s.accessTTL

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.countAndInject())
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, username, password string) int64 {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(email, username, hash).ID
}

func (s *Server) addAccountLocked(email, username string, hash []byte) *account {
	acct := &account{
		ID:           s.nextID,
		Username:     username,
		Email:        strings.ToLower(email),
		Role:         "author",
		Avatar:       "https://avatars.nexus.test/" + username + ".png",
		CreatedAt:    s.now().UTC().Truncate(time.Second),
		PasswordHash: hash,
	}
	s.nextID++
	s.accounts[acct.Email] = acct
	return acct
}

// SetBookmarks replaces an account's bookmarks.
func (s *Server) SetBookmarks(email string, ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[strings.ToLower(email)]; ok {
		acct.Bookmarks = append([]int64(nil), ids...)
	}
}

// EnableTOTP turns on two-factor login for an account and returns the secret.
func (s *Server) EnableTOTP(email string) (string, error) {
	key, err := generateTOTPKey(email)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return "", fmt.Errorf("no account %s", email)
	}
	acct.TOTPSecret = key.Secret()
	return acct.TOTPSecret, nil
}

// RevokeAllSessions invalidates every refresh token.
func (s *Server) RevokeAllSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]refreshSession)
}

// Fail makes the next times calls to path answer status. times <= 0 fails
// until Fail is called again with a positive count or ClearFaults.
func (s *Server) Fail(path string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = &fault{status: status, times: times}
}

// ClearFaults removes all injected failures.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*fault)
}

// Calls returns how many requests path has received.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// countAndInject counts every request and answers with an injected failure
// when one is pending for the path.
func (s *Server) countAndInject() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		s.mu.Lock()
		s.calls[path]++
		f, ok := s.faults[path]
		status := 0
		if ok {
			status = f.status
			if f.times > 0 {
				f.times--
				if f.times == 0 {
					delete(s.faults, path)
				}
			}
		}
		s.mu.Unlock()

		if status == 0 {
			c.Next()
			return
		}

		switch status {
		case http.StatusTooManyRequests:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(status, gin.H{"error": "Too many requests", "retryAfter": 1})
		case http.StatusLocked:
			c.AbortWithStatusJSON(status, gin.H{
				"error":   "Account locked",
				"lockout": gin.H{"reason": "injected lockout", "duration": 60},
			})
		default:
			c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
		}
	}
}

// rateLimit applies the per-client limiter.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limit == rate.Inf {
			c.Next()
			return
		}
		s.mu.Lock()
		lim, ok := s.limiters[c.ClientIP()]
		if !ok {
			lim = rate.NewLimiter(s.limit, s.burst)
			s.limiters[c.ClientIP()] = lim
		}
		s.mu.Unlock()

		if !lim.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "retryAfter": 1})
			return
		}
		c.Next()
	}
}

// requireAuth validates the bearer access token.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		claims, err := s.tokens.parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		s.mu.Lock()
		var acct *account
		for _, a := range s.accounts {
			if a.ID == claims.UserID {
				acct = a
				break
			}
		}
		s.mu.Unlock()
		if acct == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.Set("email", acct.Email)
		c.Next()
	}
}

// requireCSRF checks X-CSRF-Token when CSRF is enforced.
func (s *Server) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.csrfRequired {
			c.Next()
			return
		}
		tok := c.GetHeader("X-CSRF-Token")
		s.mu.Lock()
		exp, ok := s.csrf[tok]
		s.mu.Unlock()
		if tok == "" || !ok || !s.now().Before(exp) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF token invalid or missing"})
			return
		}
		c.Next()
	}
}
