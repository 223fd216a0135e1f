// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes for nexus commands.
//
// Handlers always return errors; Run displays them once and maps them to an
// exit code.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/nexusblog/nexus-client/internal/api"
	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/config"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the user is not signed in or was refused
	ExitAuthError = 4
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitLockedError indicates the account is locked or rate limited
	ExitLockedError = 6
	// ExitServerError indicates the backend failed
	ExitServerError = 7
)

// ErrNotSignedIn is returned by commands that need a session when there is
// none.
var ErrNotSignedIn = errors.New("not signed in (run 'nexus login')")

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// UsageError reports invalid command usage.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage != "" {
		return fmt.Sprintf("%s\nUsage: %s", e.Message, e.Usage)
	}
	return e.Message
}

// ConfigError wraps a configuration failure.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR DISPLAY HELPERS
// =============================================================================

// DisplayError displays an error in a consistent format. Errors from the
// auth and api packages are shown as their user-facing message.
func DisplayError(err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("[ERROR]"), displayMessage(err))
}

// DisplayErrorJSON outputs an error as JSON on stdout.
func DisplayErrorJSON(err error) {
	output := map[string]interface{}{
		"success":    false,
		"error":      displayMessage(err),
		"error_type": errorType(err),
		"exit_code":  GetExitCode(err),
	}
	if apiErr, ok := api.AsError(err); ok {
		output["status"] = apiErr.Status
		if apiErr.RetryAfter > 0 {
			output["retry_after_secs"] = int(apiErr.RetryAfter.Seconds())
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}

// displayMessage uses the normalized auth message for errors the auth and
// api packages produce, and the raw text for everything else.
func displayMessage(err error) string {
	var lockErr *auth.LockoutError
	if _, ok := api.AsError(err); ok || errors.As(err, &lockErr) {
		return auth.UserMessage(err)
	}
	for _, sentinel := range []error{auth.ErrMissingCredential, auth.ErrInvalidCode, auth.ErrMissingTempToken, auth.ErrSamePassword} {
		if errors.Is(err, sentinel) {
			return auth.UserMessage(err)
		}
	}
	return err.Error()
}

func errorType(err error) string {
	var usageErr *UsageError
	var cfgErr *ConfigError
	var lockErr *auth.LockoutError
	switch {
	case errors.As(err, &usageErr):
		return "usage_error"
	case errors.As(err, &cfgErr):
		return "config_error"
	case errors.Is(err, ErrNotSignedIn):
		return "not_signed_in"
	case errors.As(err, &lockErr):
		return "account_locked"
	}
	if _, ok := api.AsError(err); ok {
		return api.KindOf(err).String()
	}
	return "generic_error"
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}
	var cfgErr *ConfigError
	var validateErrs config.ValidateErrors
	if errors.As(err, &cfgErr) || errors.As(err, &validateErrs) {
		return ExitConfigError
	}
	if errors.Is(err, ErrNotSignedIn) || errors.Is(err, auth.ErrMissingCredential) {
		return ExitAuthError
	}
	if errors.Is(err, auth.ErrLockedOut) {
		return ExitLockedError
	}
	if errors.Is(err, auth.ErrInvalidCode) || errors.Is(err, auth.ErrSamePassword) {
		return ExitUsageError
	}

	apiErr, ok := api.AsError(err)
	if !ok {
		return ExitGeneralError
	}
	switch apiErr.Kind {
	case api.KindAuthInvalid, api.KindForbidden:
		return ExitAuthError
	case api.KindNetwork:
		return ExitNetworkError
	case api.KindRateLimited, api.KindAccountLocked:
		return ExitLockedError
	case api.KindServer:
		return ExitServerError
	case api.KindValidation:
		return ExitUsageError
	}
	return ExitGeneralError
}
