// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nexusblog/nexus-client/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete client configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	Session SessionConfig `toml:"session" json:"session"`
	Auth    AuthConfig    `toml:"auth" json:"auth"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
	UserAgent   string `toml:"user_agent" json:"user_agent"`
}

// SessionConfig tunes the inactivity timer and re-verification.
type SessionConfig struct {
	TimeoutSecs       int `toml:"timeout_secs" json:"timeout_secs"`
	WarningSecs       int `toml:"warning_secs" json:"warning_secs"`
	CheckIntervalSecs int `toml:"check_interval_secs" json:"check_interval_secs"`
	ReverifyAfterSecs int `toml:"reverify_after_secs" json:"reverify_after_secs"`
}

// AuthConfig tunes token refresh and rate-limit retries.
type AuthConfig struct {
	RefreshBufferSecs int `toml:"refresh_buffer_secs" json:"refresh_buffer_secs"`
	RateLimitRetries  int `toml:"rate_limit_retries" json:"rate_limit_retries"`
	RateLimitStepMs   int `toml:"rate_limit_step_ms" json:"rate_limit_step_ms"`
}

// StorageConfig selects where durable client state lives.
type StorageConfig struct {
	// Backend is "file", "sqlite" or "memory".
	Backend string `toml:"backend" json:"backend"`

	// Path is the store location. Empty selects a file in the config
	// directory.
	Path string `toml:"path" json:"path"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	Theme string `toml:"theme" json:"theme"`
}

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:     "http://127.0.0.1:5000/api",
			TimeoutSecs: 30,
			UserAgent:   "nexus-client",
		},
		Session: SessionConfig{
			TimeoutSecs:       1800, // 30 minutes
			WarningSecs:       300,
			CheckIntervalSecs: 60,
			ReverifyAfterSecs: 60,
		},
		Auth: AuthConfig{
			RefreshBufferSecs: 300,
			RateLimitRetries:  2,
			RateLimitStepMs:   1000,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory, ~/.nexus unless NEXUS_HOME
// is set.
func ConfigDir() (string, error) {
	if dir := os.Getenv("NEXUS_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nexus"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StoragePath returns the durable store location for the configured backend.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if strings.EqualFold(c.Storage.Backend, BackendSQLite) {
		return filepath.Join(dir, "state.db"), nil
	}
	return filepath.Join(dir, "state.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.nexus/config.toml, or config.json when there is no TOML
// file, applies NEXUS_* overrides and validates the result. With no file the
// defaults are used.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(tomlPath); statErr == nil {
		return LoadFromPath(tomlPath)
	}

	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(jsonPath); statErr == nil {
		return LoadFromPath(jsonPath)
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads a TOML or JSON file (by extension), applies NEXUS_*
// overrides and validates.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults replaces zero values that are never meaningful.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = defaults.API.UserAgent
	}
	if cfg.Session.TimeoutSecs == 0 {
		cfg.Session.TimeoutSecs = defaults.Session.TimeoutSecs
	}
	if cfg.Session.WarningSecs == 0 {
		cfg.Session.WarningSecs = defaults.Session.WarningSecs
	}
	if cfg.Session.CheckIntervalSecs == 0 {
		cfg.Session.CheckIntervalSecs = defaults.Session.CheckIntervalSecs
	}
	if cfg.Session.ReverifyAfterSecs == 0 {
		cfg.Session.ReverifyAfterSecs = defaults.Session.ReverifyAfterSecs
	}
	if cfg.Auth.RefreshBufferSecs == 0 {
		cfg.Auth.RefreshBufferSecs = defaults.Auth.RefreshBufferSecs
	}
	if cfg.Auth.RateLimitStepMs == 0 {
		cfg.Auth.RateLimitStepMs = defaults.Auth.RateLimitStepMs
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML atomically writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# nexus client configuration\n")
	buf.WriteString("# Generated by nexus - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON atomically writes cfg as JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every setting and returns ValidateErrors listing all
// problems, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	u, err := url.Parse(c.API.BaseURL)
	switch {
	case err != nil:
		add("api.base_url", "invalid URL: %v", err)
	case u.Scheme != "http" && u.Scheme != "https":
		add("api.base_url", "scheme must be http or https, got '%s'", u.Scheme)
	case u.Host == "":
		add("api.base_url", "missing host")
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 300 {
		add("api.timeout_secs", "must be between 1 and 300, got %d", c.API.TimeoutSecs)
	}

	if c.Session.TimeoutSecs < 60 {
		add("session.timeout_secs", "must be at least 60, got %d", c.Session.TimeoutSecs)
	}
	if c.Session.WarningSecs < 1 || c.Session.WarningSecs >= c.Session.TimeoutSecs {
		add("session.warning_secs", "must be positive and less than session.timeout_secs (%d), got %d", c.Session.TimeoutSecs, c.Session.WarningSecs)
	}
	if c.Session.CheckIntervalSecs < 1 {
		add("session.check_interval_secs", "must be positive, got %d", c.Session.CheckIntervalSecs)
	}
	if c.Session.ReverifyAfterSecs < 0 {
		add("session.reverify_after_secs", "must not be negative, got %d", c.Session.ReverifyAfterSecs)
	}

	if c.Auth.RefreshBufferSecs < 0 {
		add("auth.refresh_buffer_secs", "must not be negative, got %d", c.Auth.RefreshBufferSecs)
	}
	if c.Auth.RateLimitRetries < 0 || c.Auth.RateLimitRetries > 10 {
		add("auth.rate_limit_retries", "must be between 0 and 10, got %d", c.Auth.RateLimitRetries)
	}
	if c.Auth.RateLimitStepMs < 0 {
		add("auth.rate_limit_step_ms", "must not be negative, got %d", c.Auth.RateLimitStepMs)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, memory", c.Storage.Backend)
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variables over the loaded values:
//   - NEXUS_API_URL: api.base_url
//   - NEXUS_SESSION_TIMEOUT: session.timeout_secs
//   - NEXUS_SESSION_WARNING: session.warning_secs
//   - NEXUS_STORAGE: storage.backend
//   - NEXUS_STORAGE_PATH: storage.path
//   - NEXUS_THEME: ui.theme
//
// Unparseable numbers are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NEXUS_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if n, ok := envInt("NEXUS_SESSION_TIMEOUT"); ok {
		c.Session.TimeoutSecs = n
	}
	if n, ok := envInt("NEXUS_SESSION_WARNING"); ok {
		c.Session.WarningSecs = n
	}
	if v := os.Getenv("NEXUS_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("NEXUS_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("NEXUS_THEME"); v != "" {
		c.UI.Theme = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// =============================================================================
// DURATIONS
// =============================================================================

// Timeout returns the HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// SessionTimeout returns the inactivity timeout.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSecs) * time.Second
}

// WarningWindow returns how long before expiry the warning fires.
func (c *Config) WarningWindow() time.Duration {
	return time.Duration(c.Session.WarningSecs) * time.Second
}

// CheckInterval returns the period of the backup inactivity check.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Session.CheckIntervalSecs) * time.Second
}

// ReverifyAfter returns how stale a verification must be before regaining
// focus triggers another.
func (c *Config) ReverifyAfter() time.Duration {
	return time.Duration(c.Session.ReverifyAfterSecs) * time.Second
}

// RefreshBuffer returns how close to expiry a token is refreshed.
func (c *Config) RefreshBuffer() time.Duration {
	return time.Duration(c.Auth.RefreshBufferSecs) * time.Second
}

// RateLimitStep returns the linear back-off step for 429 retries.
func (c *Config) RateLimitStep() time.Duration {
	return time.Duration(c.Auth.RateLimitStepMs) * time.Millisecond
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value by dotted key (e.g., "session.timeout_secs").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a value by dotted key. String values are converted to the
// field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts snake_case or kebab-case to the Go field name.
// Acronym fields (API, UI, URL) match case-insensitively.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets field from value, parsing strings as needed.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			field.SetBool(strVal == "1" || strings.EqualFold(strVal, "true") || strings.EqualFold(strVal, "yes"))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns every configuration key in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"api.base_url",
		"api.timeout_secs",
		"api.user_agent",
		"session.timeout_secs",
		"session.warning_secs",
		"session.check_interval_secs",
		"session.reverify_after_secs",
		"auth.refresh_buffer_secs",
		"auth.rate_limit_retries",
		"auth.rate_limit_step_ms",
		"storage.backend",
		"storage.path",
		"ui.theme",
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// GLOBAL CONFIG INSTANCE
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process-wide configuration, loading it on first use.
// A config that fails to load falls back to the defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
