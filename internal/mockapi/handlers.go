// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

func (s *Server) routes() {
	g := s.engine.Group("/auth")

	g.POST("/login", s.rateLimit(), s.login)
	g.POST("/register", s.rateLimit(), s.register)
	g.POST("/refresh", s.refresh)
	g.GET("/csrf-token", s.csrfToken)
	g.POST("/logout", s.logout)
	g.POST("/2fa/verify-login", s.rateLimit(), s.verifyLogin2FA)

	authed := g.Group("", s.requireAuth())
	authed.GET("/me", s.me)
	authed.GET("/2fa/status", s.twoFactorStatus)

	mutating := authed.Group("", s.requireCSRF())
	mutating.POST("/change-password", s.changePassword)
	mutating.POST("/2fa/setup", s.twoFactorSetup)
	mutating.POST("/2fa/verify", s.twoFactorVerify)
	mutating.POST("/2fa/disable", s.twoFactorDisable)
}

func generateTOTPKey(email string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{Issuer: totpIssuer, AccountName: email})
}

// userJSON renders an account the way the backend does. omitted fields are
// dropped.
func userJSON(a *account, omit map[string]bool) gin.H {
	bookmarks := a.Bookmarks
	if bookmarks == nil {
		bookmarks = []int64{}
	}
	u := gin.H{
		"id":              a.ID,
		"username":        a.Username,
		"email":           a.Email,
		"role":            a.Role,
		"avatar":          a.Avatar,
		"createdAt":       a.CreatedAt.Format(time.RFC3339),
		"bookmarkedPosts": bookmarks,
	}
	for f := range omit {
		delete(u, f)
	}
	return u
}

// =============================================================================
// SESSION ISSUANCE
// =============================================================================

// issueSession answers a successful credential exchange: an access token in
// the body and a fresh refresh token in an HttpOnly cookie.
func (s *Server) issueSession(c *gin.Context, acct *account) {
	access, exp, err := s.tokens.issue(acct.ID, acct.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	s.setRefreshCookie(c, acct.Email)

	s.mu.Lock()
	user := userJSON(acct, nil)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"token":                 access,
		"user":                  user,
		"expiresIn":             int(exp.Sub(s.now()).Round(time.Second) / time.Second),
		"refreshTokenExpiresIn": int(s.refreshTTL / time.Second),
	})
}

func (s *Server) setRefreshCookie(c *gin.Context, email string) {
	refresh := randomToken(32)
	s.mu.Lock()
	s.sessions[refresh] = refreshSession{email: email, expiresAt: s.now().Add(s.refreshTTL)}
	s.mu.Unlock()

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, refresh, int(s.refreshTTL/time.Second), "/", "", c.Request.TLS != nil, true)
}

func (s *Server) lockedResponse(c *gin.Context, email string) {
	remaining := s.lock.TimeRemaining(email)
	c.Header("Retry-After", strconv.Itoa(int(remaining.Round(time.Second)/time.Second)))
	c.JSON(http.StatusLocked, gin.H{
		"error": "Account locked",
		"lockout": gin.H{
			"reason":   s.lock.Reason(),
			"duration": int(remaining.Round(time.Second) / time.Second),
		},
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if s.lock.IsLocked(email) {
		s.lockedResponse(c, email)
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[email]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(req.Password)) != nil {
		_ = s.lock.RecordAttempt(email, false)
		if s.lock.IsLocked(email) {
			s.lockedResponse(c, email)
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	_ = s.lock.RecordAttempt(email, true)

	s.mu.Lock()
	secret := acct.TOTPSecret
	s.mu.Unlock()
	if secret != "" {
		temp := randomToken(24)
		s.mu.Lock()
		s.challenges[temp] = challenge{email: email, expiresAt: s.now().Add(twoFactorChallengeTTL)}
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"requires2FA": true, "tempToken": temp})
		return
	}

	s.issueSession(c, acct)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and a valid email are required"})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store password"})
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	acct := s.addAccountLocked(email, req.Username, hash)
	s.mu.Unlock()

	s.issueSession(c, acct)
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[c.GetString("email")]
	c.JSON(http.StatusOK, gin.H{"user": userJSON(acct, s.omit)})
}

func (s *Server) refresh(c *gin.Context) {
	if s.refreshDelay > 0 {
		time.Sleep(s.refreshDelay)
	}

	old, err := c.Cookie(RefreshCookieName)
	if err != nil || old == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token missing"})
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[old]
	if ok {
		delete(s.sessions, old)
	}
	var acct *account
	if ok {
		acct = s.accounts[sess.email]
	}
	s.mu.Unlock()

	if !ok || !s.now().Before(sess.expiresAt) || acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token invalid or expired"})
		return
	}

	access, exp, err := s.tokens.issue(acct.ID, acct.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	s.setRefreshCookie(c, acct.Email)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": access,
		"expiresIn":   int(exp.Sub(s.now()).Round(time.Second) / time.Second),
	})
}

func (s *Server) csrfToken(c *gin.Context) {
	tok := randomToken(24)
	s.mu.Lock()
	s.csrf[tok] = s.now().Add(DefaultCsrfTTL)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"csrfToken": tok})
}

func (s *Server) logout(c *gin.Context) {
	if tok, err := c.Cookie(RefreshCookieName); err == nil && tok != "" {
		s.mu.Lock()
		delete(s.sessions, tok)
		s.mu.Unlock()
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 8 characters"})
		return
	}

	s.mu.Lock()
	acct := s.accounts[c.GetString("email")]
	s.mu.Unlock()

	if bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(req.CurrentPassword)) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current password is incorrect"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store password"})
		return
	}

	s.mu.Lock()
	acct.PasswordHash = hash
	s.mu.Unlock()

	access, exp, err := s.tokens.issue(acct.ID, acct.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     access,
		"expiresIn": int(exp.Sub(s.now()).Round(time.Second) / time.Second),
	})
}

func (s *Server) twoFactorStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[c.GetString("email")]
	c.JSON(http.StatusOK, gin.H{"enabled": acct.TOTPSecret != ""})
}

func (s *Server) twoFactorSetup(c *gin.Context) {
	email := c.GetString("email")
	key, err := generateTOTPKey(email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create secret"})
		return
	}
	s.mu.Lock()
	s.accounts[email].PendingSecret = key.Secret()
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"secret": key.Secret(), "otpauthUrl": key.URL()})
}

type codeRequest struct {
	Code      string `json:"code"`
	TempToken string `json:"tempToken"`
}

func (s *Server) twoFactorVerify(c *gin.Context) {
	var req codeRequest
	_ = c.ShouldBindJSON(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[c.GetString("email")]
	if acct.PendingSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor setup has not been started"})
		return
	}
	if !totp.Validate(req.Code, acct.PendingSecret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification code"})
		return
	}
	acct.TOTPSecret, acct.PendingSecret = acct.PendingSecret, ""
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) twoFactorDisable(c *gin.Context) {
	var req codeRequest
	_ = c.ShouldBindJSON(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accounts[c.GetString("email")]
	if acct.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "two-factor authentication is not enabled"})
		return
	}
	if !totp.Validate(req.Code, acct.TOTPSecret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification code"})
		return
	}
	acct.TOTPSecret = ""
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) verifyLogin2FA(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TempToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and tempToken are required"})
		return
	}

	s.mu.Lock()
	ch, ok := s.challenges[req.TempToken]
	var acct *account
	if ok {
		acct = s.accounts[ch.email]
	}
	s.mu.Unlock()

	if !ok || !s.now().Before(ch.expiresAt) || acct == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "two-factor challenge expired"})
		return
	}
	if !totp.Validate(req.Code, acct.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		return
	}

	s.mu.Lock()
	delete(s.challenges, req.TempToken)
	s.mu.Unlock()
	s.issueSession(c, acct)
}
