// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/storage"
	"github.com/nexusblog/nexus-client/internal/util"
)

const (
	// DefaultTokenLifetime is assumed when the backend omits expiresIn.
	DefaultTokenLifetime = time.Hour

	// DefaultExpiryBuffer is how close to expiry a token counts as expired.
	DefaultExpiryBuffer = 5 * time.Minute
)

// ErrEmptyToken is returned when a refresh response carries no token.
var ErrEmptyToken = errors.New("refresh response did not include an access token")

// =============================================================================
// REFRESH COORDINATOR
// =============================================================================

// RefreshCoordinator tracks token expiry and mints new access tokens using
// the HttpOnly refresh cookie. Concurrent refreshes share one request.
type RefreshCoordinator struct {
	client   *api.Client
	tokens   *TokenStore
	security *SecurityContext
	local    storage.Store

	group singleflight.Group

	// mu serializes expiry bookkeeping writes.
	mu sync.Mutex

	now    func() time.Time
	logger *log.Logger
}

// NewRefreshCoordinator creates a RefreshCoordinator.
func NewRefreshCoordinator(client *api.Client, tokens *TokenStore, security *SecurityContext, local storage.Store, logger *log.Logger) *RefreshCoordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshCoordinator{
		client:   client,
		tokens:   tokens,
		security: security,
		local:    local,
		now:      time.Now,
		logger:   logger,
	}
}

// IsAccessTokenExpired reports whether no expiry is recorded or the token
// expires within buffer.
func (r *RefreshCoordinator) IsAccessTokenExpired(buffer time.Duration) bool {
	exp, ok := r.TokenExpiry()
	if !ok {
		return true
	}
	return !r.now().Before(exp.Add(-buffer))
}

// TokenExpiry returns the recorded access-token expiry.
func (r *RefreshCoordinator) TokenExpiry() (time.Time, bool) {
	ms, ok := storage.GetInt64(r.local, storage.KeyTokenExpiry)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// RefreshTokenExpiry returns the recorded refresh-token expiry.
func (r *RefreshCoordinator) RefreshTokenExpiry() (time.Time, bool) {
	ms, ok := storage.GetInt64(r.local, storage.KeyRefreshTokenExpiry)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// RecordTokenExpiry stores the access-token expiry as now+lifetime, using
// DefaultTokenLifetime when lifetime is not positive.
func (r *RefreshCoordinator) RecordTokenExpiry(lifetime time.Duration) time.Time {
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	exp := r.now().Add(lifetime)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := storage.SetInt64(r.local, storage.KeyTokenExpiry, exp.UnixMilli()); err != nil {
		logAuthEvent(r.logger, "TOKEN_EXPIRY_WRITE_FAILED", fmt.Sprintf("error=%v", err))
	}
	return exp
}

// RecordRefreshTokenExpiry stores when the refresh cookie expires. The value
// is informational only.
func (r *RefreshCoordinator) RecordRefreshTokenExpiry(lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := storage.SetInt64(r.local, storage.KeyRefreshTokenExpiry, r.now().Add(lifetime).UnixMilli()); err != nil {
		logAuthEvent(r.logger, "REFRESH_EXPIRY_WRITE_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// ClearExpiry removes all expiry bookkeeping.
func (r *RefreshCoordinator) ClearExpiry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := storage.RemoveAll(r.local, storage.KeyTokenExpiry, storage.KeyRefreshTokenExpiry); err != nil {
		logAuthEvent(r.logger, "TOKEN_EXPIRY_CLEAR_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// refreshResponse accepts both field names the backend has used.
type refreshResponse struct {
	AccessToken           string   `json:"accessToken"`
	Token                 string   `json:"token"`
	ExpiresIn             *float64 `json:"expiresIn"`
	RefreshTokenExpiresIn *float64 `json:"refreshTokenExpiresIn"`
}

// RefreshAccessToken obtains a new access token. While a refresh is in flight
// every caller shares its result, so at most one request is outstanding.
//
// The request runs detached from ctx: a caller giving up does not cancel the
// refresh other callers are waiting on. ctx only bounds this caller's wait.
//
// A 401 or 403 means the refresh cookie is no longer valid; the access token,
// expiry bookkeeping and CSRF cache are cleared before the error is returned.
// Other failures leave stored state untouched.
func (r *RefreshCoordinator) RefreshAccessToken(ctx context.Context) (string, error) {
	ch := r.group.DoChan("refresh", func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *RefreshCoordinator) refresh(ctx context.Context) (string, error) {
	var resp refreshResponse
	err := r.client.Do(ctx, api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/refresh",
		SkipAuthRefresh: true,
	}, &resp)
	if err != nil {
		switch api.KindOf(err) {
		case api.KindAuthInvalid, api.KindForbidden:
			r.tokens.Clear()
			r.ClearExpiry()
			r.security.ClearCsrf()
			logAuthEvent(r.logger, "TOKEN_REFRESH_REJECTED", fmt.Sprintf("status=%d", api.StatusOf(err)))
		default:
			logAuthEvent(r.logger, "TOKEN_REFRESH_FAILED", fmt.Sprintf("error=%v", err))
		}
		return "", fmt.Errorf("token refresh: %w", err)
	}

	tok := resp.AccessToken
	if tok == "" {
		tok = resp.Token
	}
	if tok == "" {
		logAuthEvent(r.logger, "TOKEN_REFRESH_FAILED", "error=empty token")
		return "", ErrEmptyToken
	}

	r.tokens.Set(tok)
	exp := r.RecordTokenExpiry(secondsToDuration(resp.ExpiresIn))
	if resp.RefreshTokenExpiresIn != nil {
		r.RecordRefreshTokenExpiry(secondsToDuration(resp.RefreshTokenExpiresIn))
	}

	logAuthEvent(r.logger, "TOKEN_REFRESHED", fmt.Sprintf("token=%s expires=%s", util.MaskSecret(tok), exp.UTC().Format(time.RFC3339)))
	return tok, nil
}

// maxTokenLifetime caps lifetimes reported by the server.
const maxTokenLifetime = 366 * 24 * time.Hour

func secondsToDuration(secs *float64) time.Duration {
	if secs == nil || !(*secs > 0) {
		return 0
	}
	if *secs >= maxTokenLifetime.Seconds() {
		return maxTokenLifetime
	}
	return time.Duration(*secs * float64(time.Second))
}
