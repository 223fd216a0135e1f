// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for scripting.
//
// Every command accepts --json and then prints exactly one JSONResponse on
// stdout.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nexusblog/nexus-client/internal/auth"
)

// JSONResponse is the response envelope for all CLI commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := displayMessage(err)
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
func (r *JSONResponse) Print() error {
	return r.Write(os.Stdout)
}

// Write outputs the JSON response to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// UserData is the JSON view of the signed-in user.
type UserData struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Role            string   `json:"role,omitempty"`
	Avatar          string   `json:"avatar,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	BookmarkedPosts []string `json:"bookmarked_posts"`
}

func newUserData(u *auth.User) *UserData {
	if u == nil {
		return nil
	}
	bookmarks := u.BookmarkedPosts
	if bookmarks == nil {
		bookmarks = []string{}
	}
	return &UserData{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		Avatar:          u.Avatar,
		CreatedAt:       u.CreatedAt,
		BookmarkedPosts: bookmarks,
	}
}

// LoginData is returned by login and register.
type LoginData struct {
	User        *UserData `json:"user,omitempty"`
	Requires2FA bool      `json:"requires_2fa,omitempty"`
}

// StatusData is returned by the status command.
type StatusData struct {
	APIURL         string       `json:"api_url"`
	Storage        string       `json:"storage"`
	StoragePath    string       `json:"storage_path,omitempty"`
	State          string       `json:"state"`
	User           *UserData    `json:"user,omitempty"`
	Verified       bool         `json:"verified"`
	VerifyError    string       `json:"verify_error,omitempty"`
	TokenExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	RefreshExpires *time.Time   `json:"refresh_expires_at,omitempty"`
	SessionTimeout int          `json:"session_timeout_secs"`
	SessionLeft    int          `json:"session_remaining_secs,omitempty"`
	Lockout        *LockoutData `json:"lockout,omitempty"`
}

// LockoutData describes an active lockout.
type LockoutData struct {
	Until       time.Time `json:"until"`
	Reason      string    `json:"reason"`
	RemainingMs int64     `json:"remaining_ms"`
}

// TwoFactorData is returned by the 2fa command.
type TwoFactorData struct {
	Enabled     bool     `json:"enabled"`
	Secret      string   `json:"secret,omitempty"`
	OTPAuthURL  string   `json:"otpauth_url,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	Account     string   `json:"account,omitempty"`
	BackupCodes []string `json:"backup_codes,omitempty"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
