// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main runs the in-memory Nexus API backend for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nexusblog/nexus-client/internal/cli"
	"github.com/nexusblog/nexus-client/internal/mockapi"
)

const usage = `nexus-mockapi - in-memory Nexus API for development

Usage: nexus-mockapi [OPTIONS]

Options:
  --addr ADDR             Listen address (default: 127.0.0.1:5000)
  --prefix PATH           Path the API is mounted under (default: /api)
  --user EMAIL:PASSWORD   Seed an account (default: demo@nexus.dev:demo-pass)
  --access-ttl DURATION   Access token lifetime (default: 15m)
  --refresh-ttl DURATION  Refresh token lifetime (default: 168h)
  --lockout N             Failed logins before lockout (default: 5)
  --rate N                Auth requests per second per client (default: unlimited)
  --csrf                  Require X-CSRF-Token on state-changing routes
  --totp                  Enable 2FA for the seeded account and print its secret
  --debug                 Gin debug logging
  --help, -h              Show this help`

func main() {
	args := cli.NewArgParser(os.Args[1:])
	if args.BoolFlag("help") || args.BoolFlag("h") {
		fmt.Println(usage)
		return
	}
	if err := run(args); err != nil {
		log.Fatalf("nexus-mockapi: %v", err)
	}
}

func run(args *cli.ArgParser) error {
	if !args.BoolFlag("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := log.New(os.Stderr, "", 0)

	opts := []mockapi.Option{mockapi.WithLogger(logger)}
	if v := args.Flag("access-ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid --access-ttl: %w", err)
		}
		opts = append(opts, mockapi.WithAccessTTL(d))
	}
	if v := args.Flag("refresh-ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid --refresh-ttl: %w", err)
		}
		opts = append(opts, mockapi.WithRefreshTTL(d))
	}
	if args.HasFlag("lockout") {
		n, err := cli.ParseIntWithValidation(args.Flag("lockout"), "--lockout")
		if err != nil {
			return err
		}
		opts = append(opts, mockapi.WithLockout(n, 15*time.Minute))
	}
	if args.HasFlag("rate") {
		n, err := cli.ParseIntWithValidation(args.Flag("rate"), "--rate")
		if err != nil {
			return err
		}
		opts = append(opts, mockapi.WithRateLimit(rate.Limit(n), n))
	}
	if args.BoolFlag("csrf") {
		opts = append(opts, mockapi.WithCSRFRequired())
	}

	backend := mockapi.New(opts...)

	email, password, ok := strings.Cut(args.FlagOrDefault("user", "demo@nexus.dev:demo-pass"), ":")
	if !ok || email == "" || password == "" {
		return errors.New("--user must be EMAIL:PASSWORD")
	}
	username, _, _ := strings.Cut(email, "@")
	backend.AddUser(email, username, password)
	if args.BoolFlag("totp") {
		secret, err := backend.EnableTOTP(email)
		if err != nil {
			return err
		}
		logger.Printf("2FA secret for %s: %s", email, secret)
	}

	prefix := strings.TrimRight(args.FlagOrDefault("prefix", "/api"), "/")
	var handler http.Handler = backend.Handler()
	if prefix != "" {
		mux := http.NewServeMux()
		mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))
		handler = mux
	}

	srv := &http.Server{
		Addr:              args.FlagOrDefault("addr", "127.0.0.1:5000"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on http://%s%s (seeded %s)", srv.Addr, prefix, email)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
