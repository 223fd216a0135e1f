// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nexusblog/nexus-client/internal/storage"
	"github.com/nexusblog/nexus-client/internal/util"
)

// TokenCookieLifetime is the expiry of the access-token cookie.
const TokenCookieLifetime = 7 * 24 * time.Hour

// =============================================================================
// TOKEN STORE
// =============================================================================

// TokenStore keeps the access token in three tiers: process memory, the
// session store and a cookie. Memory may be lost (for example while the
// front end is suspended), so reads fall through to the other tiers.
//
// Every write is best-effort per tier. A tier that fails is logged and the
// others are still written.
type TokenStore struct {
	mu     sync.Mutex
	memory string

	session storage.Store
	jar     *storage.CookieJar
	origin  *url.URL

	now    func() time.Time
	logger *log.Logger
}

// NewTokenStore creates a TokenStore. origin is the API base URL the cookie
// is scoped to; it is marked Secure when origin uses https.
func NewTokenStore(session storage.Store, jar *storage.CookieJar, origin *url.URL, logger *log.Logger) *TokenStore {
	if logger == nil {
		logger = log.Default()
	}
	return &TokenStore{
		session: session,
		jar:     jar,
		origin:  origin,
		now:     time.Now,
		logger:  logger,
	}
}

// Set stores token in every tier.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = token
	s.writeCookie(token, s.now().Add(TokenCookieLifetime))
	if err := s.session.Set(storage.KeyAuthToken, token); err != nil {
		logAuthEvent(s.logger, "TOKEN_SESSION_WRITE_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// Get returns the access token, or "" when no tier holds one. A token found
// outside memory is cached back into memory.
func (s *TokenStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked()
}

// Token implements api.TokenSource.
func (s *TokenStore) Token() string { return s.Get() }

// Clear removes the token from every tier.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = ""
	s.writeCookie("", time.Unix(0, 0))
	if err := s.session.Remove(storage.KeyAuthToken); err != nil {
		logAuthEvent(s.logger, "TOKEN_SESSION_CLEAR_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// Resync drops the memory tier and reads the token again from the durable
// tiers. Used when a front end becomes visible again.
func (s *TokenStore) Resync() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = ""
	return s.getLocked()
}

func (s *TokenStore) getLocked() string {
	if s.memory != "" {
		return s.memory
	}
	if tok, ok := s.session.Get(storage.KeyAuthToken); ok && tok != "" {
		s.memory = tok
		return tok
	}
	if tok := s.readCookie(); tok != "" {
		s.memory = tok
		return tok
	}
	return ""
}

func (s *TokenStore) writeCookie(token string, expires time.Time) {
	if s.jar == nil || s.origin == nil {
		return
	}
	s.jar.SetCookies(s.origin, []*http.Cookie{{
		Name:     storage.KeyAuthToken,
		Value:    url.QueryEscape(token),
		Path:     "/",
		Expires:  expires,
		Secure:   s.origin.Scheme == "https",
		SameSite: http.SameSiteStrictMode,
	}})
}

// readCookie never fails: an undecodable cookie is logged and reported absent.
func (s *TokenStore) readCookie() string {
	if s.jar == nil || s.origin == nil {
		return ""
	}
	raw, ok := s.jar.Value(s.origin, storage.KeyAuthToken)
	if !ok || raw == "" {
		return ""
	}
	tok, err := url.QueryUnescape(raw)
	if err != nil {
		logAuthEvent(s.logger, "TOKEN_COOKIE_DECODE_FAILED", fmt.Sprintf("value=%s error=%v", util.MaskSecret(raw), err))
		return ""
	}
	return tok
}
