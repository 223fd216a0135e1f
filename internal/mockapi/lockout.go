// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockapi

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Lockout defaults.
const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// ErrLocked is returned when an account is locked out.
var ErrLocked = errors.New("account locked")

// =============================================================================
// ATTEMPT RECORD
// =============================================================================

// attemptRecord tracks consecutive failed logins for one account.
type attemptRecord struct {
	count        int
	firstAttempt time.Time
	lastAttempt  time.Time
	lockedUntil  time.Time
	lockoutCount int
}

func (a *attemptRecord) locked(now time.Time) bool {
	return !a.lockedUntil.IsZero() && now.Before(a.lockedUntil)
}

// =============================================================================
// LOCKOUT MANAGER
// =============================================================================

// LockoutManager locks an account after too many consecutive failed logins.
type LockoutManager struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord

	maxAttempts     int
	lockoutDuration time.Duration

	now    func() time.Time
	logger *log.Logger
}

// NewLockoutManager creates a LockoutManager. Non-positive arguments select
// the defaults.
func NewLockoutManager(maxAttempts int, duration time.Duration, logger *log.Logger) *LockoutManager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LockoutManager{
		attempts:        make(map[string]*attemptRecord),
		maxAttempts:     maxAttempts,
		lockoutDuration: duration,
		now:             time.Now,
		logger:          logger,
	}
}

// RecordAttempt records a login attempt. A success resets the counter; a
// failure may start a lockout. ErrLocked is returned while locked.
func (l *LockoutManager) RecordAttempt(identifier string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	record, exists := l.attempts[identifier]
	if !exists {
		record = &attemptRecord{firstAttempt: now}
		l.attempts[identifier] = record
	}

	if record.locked(now) {
		l.logger.Printf("AUTH_ATTEMPT_BLOCKED | id=%s remaining=%v", identifier, record.lockedUntil.Sub(now))
		return ErrLocked
	}
	if !record.lockedUntil.IsZero() {
		record.lockedUntil = time.Time{}
		record.count = 0
	}

	record.lastAttempt = now
	if success {
		record.count = 0
		record.firstAttempt = time.Time{}
		return nil
	}

	if record.firstAttempt.IsZero() {
		record.firstAttempt = now
	}
	record.count++
	if record.count >= l.maxAttempts {
		record.lockedUntil = now.Add(l.lockoutDuration)
		record.lockoutCount++
		l.logger.Printf("AUTH_LOCKOUT | id=%s until=%s lockout_number=%d",
			identifier, record.lockedUntil.Format(time.RFC3339), record.lockoutCount)
	}
	return nil
}

// IsLocked reports whether identifier is locked out.
func (l *LockoutManager) IsLocked(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.attempts[identifier]
	return ok && record.locked(l.now())
}

// TimeRemaining returns how long identifier stays locked, or 0.
func (l *LockoutManager) TimeRemaining(identifier string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.attempts[identifier]
	if !ok || !record.locked(l.now()) {
		return 0
	}
	return record.lockedUntil.Sub(l.now())
}

// Reason describes the current lockout for the response body.
func (l *LockoutManager) Reason() string {
	return fmt.Sprintf("%d failed login attempts", l.maxAttempts)
}

// Reset forgets identifier.
func (l *LockoutManager) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, identifier)
}
