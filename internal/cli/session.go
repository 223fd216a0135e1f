// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Building the client for a command and restoring its session.

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nexusblog/nexus-client/internal/app"
	"github.com/nexusblog/nexus-client/internal/config"
)

// commandTimeout bounds a single non-interactive command.
const commandTimeout = 2 * time.Minute

// loadConfig reads the configuration selected by the global flags.
func loadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if args.APIURL != "" {
		cfg.API.BaseURL = args.APIURL
		if err := cfg.Validate(); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// session is an opened client plus the resources tied to it.
type session struct {
	*app.App
	logFile io.Closer
}

func (s *session) Close() {
	_ = s.App.Close()
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// openSession loads config and wires the client. Session events go to
// stderr with --verbose and to ~/.nexus/audit.log otherwise.
func openSession(args Args) (*session, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	logger, closer := openLogger(args)
	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &session{App: a, logFile: closer}, nil
}

func openLogger(args Args) (*log.Logger, io.Closer) {
	if args.Verbose {
		return log.New(os.Stderr, "", 0), nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return log.New(io.Discard, "", 0), nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return log.New(io.Discard, "", 0), nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return log.New(io.Discard, "", 0), nil
	}
	return log.New(f, "", 0), f
}

// requireSession restores the stored session and confirms it with the
// backend. A backend that cannot be reached leaves the cached session in
// place; a rejected one ends it.
func requireSession(ctx context.Context, s *session) error {
	if s.Tokens.Get() == "" {
		return ErrNotSignedIn
	}
	if err := s.Controller.VerifyUser(ctx); err != nil && !s.Controller.IsAuthenticated() {
		return fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	if !s.Controller.IsAuthenticated() {
		return ErrNotSignedIn
	}
	if s.Security.CsrfToken() == "" {
		s.Security.FetchCsrfToken(ctx)
	}
	return nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}
