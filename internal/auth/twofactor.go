// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pquerna/otp"

	"github.com/nexusblog/nexus-client/internal/api"
)

// TwoFactorSetup is what the backend returns when 2FA enrollment begins.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauthUrl"`
	QRCode      string   `json:"qrCode,omitempty"`
	BackupCodes []string `json:"backupCodes,omitempty"`

	// Issuer and Account are parsed from OTPAuthURL.
	Issuer  string `json:"-"`
	Account string `json:"-"`
	Digits  int    `json:"-"`
	Period  uint64 `json:"-"`
}

// normalizeCode strips separators users type ("123 456", "123-456") and
// checks the result is six digits.
func normalizeCode(code string) (string, error) {
	code = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(code))
	if len(code) != 6 {
		return "", ErrInvalidCode
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

// TwoFactorStatus reports whether 2FA is enabled for the signed-in user.
func (c *Controller) TwoFactorStatus(ctx context.Context) (bool, error) {
	var resp struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.client.Get(ctx, "/auth/2fa/status", &resp); err != nil {
		return false, fmt.Errorf("2fa status: %w", err)
	}
	return resp.Enabled, nil
}

// SetupTwoFactor starts enrollment. The otpauth URL is validated so a broken
// enrollment is caught before the user scans it.
func (c *Controller) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := c.client.Post(ctx, "/auth/2fa/setup", nil, &setup); err != nil {
		return nil, fmt.Errorf("2fa setup: %w", err)
	}
	if setup.OTPAuthURL == "" {
		return &setup, nil
	}

	key, err := otp.NewKeyFromURL(setup.OTPAuthURL)
	if err != nil {
		return nil, fmt.Errorf("2fa setup: %w: %v", ErrMalformedResponse, err)
	}
	if key.Type() != "totp" {
		return nil, fmt.Errorf("2fa setup: %w: unsupported key type %q", ErrMalformedResponse, key.Type())
	}
	setup.Issuer = key.Issuer()
	setup.Account = key.AccountName()
	setup.Digits = key.Digits().Length()
	setup.Period = key.Period()
	if setup.Secret == "" {
		setup.Secret = key.Secret()
	}
	logAuthEvent(c.logger, "TWO_FACTOR_SETUP_STARTED", fmt.Sprintf("issuer=%q", setup.Issuer))
	return &setup, nil
}

// VerifyTwoFactor confirms enrollment with a code from the authenticator.
func (c *Controller) VerifyTwoFactor(ctx context.Context, code string) error {
	code, err := normalizeCode(code)
	if err != nil {
		return err
	}
	if err := c.client.Post(ctx, "/auth/2fa/verify", map[string]string{"code": code}, nil); err != nil {
		return fmt.Errorf("2fa verify: %w", err)
	}
	logAuthEvent(c.logger, "TWO_FACTOR_ENABLED", "")
	return nil
}

// DisableTwoFactor turns 2FA off; a current code is required.
func (c *Controller) DisableTwoFactor(ctx context.Context, code string) error {
	code, err := normalizeCode(code)
	if err != nil {
		return err
	}
	if err := c.client.Post(ctx, "/auth/2fa/disable", map[string]string{"code": code}, nil); err != nil {
		return fmt.Errorf("2fa disable: %w", err)
	}
	logAuthEvent(c.logger, "TWO_FACTOR_DISABLED", "")
	return nil
}

// VerifyLogin2FA completes a login that Login answered with Requires2FA.
func (c *Controller) VerifyLogin2FA(ctx context.Context, code, tempToken string) (LoginResult, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return LoginResult{Message: UserMessage(err)}, err
	}
	if tempToken == "" {
		return LoginResult{Message: UserMessage(ErrMissingTempToken)}, ErrMissingTempToken
	}
	return c.authenticate(ctx, "TWO_FACTOR_LOGIN", api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/2fa/verify-login",
		Body:            map[string]string{"code": code, "tempToken": tempToken},
		SkipAuthRefresh: true,
	})
}
