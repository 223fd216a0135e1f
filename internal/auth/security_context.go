// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/storage"
)

// CsrfTokenTTL is how long a fetched CSRF token is reused.
const CsrfTokenTTL = 30 * time.Minute

// Security header names.
const (
	HeaderCsrfToken        = "X-CSRF-Token"
	HeaderRequestID        = "X-Request-ID"
	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderUserAgent        = "X-User-Agent"
	HeaderPlatform         = "X-Platform"
)

// =============================================================================
// SECURITY CONTEXT
// =============================================================================

// SecurityContext caches the CSRF token and builds the security headers sent
// with every API request. Reading the token never triggers a fetch.
type SecurityContext struct {
	client *api.Client
	local  storage.Store

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	userAgent string
	platform  string

	now    func() time.Time
	logger *log.Logger
}

// NewSecurityContext creates a SecurityContext. A CSRF token still valid in
// local storage is picked up.
func NewSecurityContext(client *api.Client, local storage.Store, userAgent string, logger *log.Logger) *SecurityContext {
	if logger == nil {
		logger = log.Default()
	}
	sc := &SecurityContext{
		client:    client,
		local:     local,
		userAgent: userAgent,
		platform:  runtime.GOOS + "/" + runtime.GOARCH,
		now:       time.Now,
		logger:    logger,
	}
	if tok, ok := local.Get(storage.KeyCsrfToken); ok {
		if exp, ok := storage.GetInt64(local, storage.KeyCsrfTokenExpiry); ok {
			sc.token = tok
			sc.expiresAt = time.UnixMilli(exp)
		}
	}
	return sc
}

// CsrfToken returns the cached token, or "" when none is cached or it has
// expired.
func (s *SecurityContext) CsrfToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || !s.now().Before(s.expiresAt) {
		return ""
	}
	return s.token
}

type csrfResponse struct {
	CsrfToken string `json:"csrfToken"`
	Token     string `json:"token"`
}

// FetchCsrfToken asks the backend for a new CSRF token and caches it for
// CsrfTokenTTL. Failures are logged and yield "".
func (s *SecurityContext) FetchCsrfToken(ctx context.Context) string {
	var resp csrfResponse
	err := s.client.Do(ctx, api.Request{
		Method:          http.MethodGet,
		Path:            "/auth/csrf-token",
		SkipAuthRefresh: true,
	}, &resp)
	if err != nil {
		logAuthEvent(s.logger, "CSRF_FETCH_FAILED", fmt.Sprintf("error=%v", err))
		return ""
	}

	tok := resp.CsrfToken
	if tok == "" {
		tok = resp.Token
	}
	if tok == "" {
		logAuthEvent(s.logger, "CSRF_FETCH_FAILED", "error=empty token in response")
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok
	s.expiresAt = s.now().Add(CsrfTokenTTL)
	if err := s.local.Set(storage.KeyCsrfToken, tok); err != nil {
		logAuthEvent(s.logger, "CSRF_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	} else if err := storage.SetInt64(s.local, storage.KeyCsrfTokenExpiry, s.expiresAt.UnixMilli()); err != nil {
		logAuthEvent(s.logger, "CSRF_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
	return tok
}

// ClearCsrf drops the cached token.
func (s *SecurityContext) ClearCsrf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
	if err := storage.RemoveAll(s.local, storage.KeyCsrfToken, storage.KeyCsrfTokenExpiry); err != nil {
		logAuthEvent(s.logger, "CSRF_CLEAR_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// SecurityHeaders returns the headers for one outgoing request. Every call
// yields a fresh X-Request-ID.
func (s *SecurityContext) SecurityHeaders() http.Header {
	h := http.Header{}
	if tok := s.CsrfToken(); tok != "" {
		h.Set(HeaderCsrfToken, tok)
	}
	h.Set(HeaderRequestTimestamp, strconv.FormatInt(s.now().UnixMilli(), 10))
	h.Set(HeaderRequestID, uuid.NewString())
	if s.userAgent != "" {
		h.Set(HeaderUserAgent, s.userAgent)
	}
	h.Set(HeaderPlatform, s.platform)
	return h
}
