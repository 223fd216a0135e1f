// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nexusblog/nexus-client/internal/storage"
)

// DefaultLockoutDuration is assumed when a 423 carries no duration.
const DefaultLockoutDuration = 15 * time.Minute

// LockoutInfo is a server-imposed login lockout, persisted until it ends.
type LockoutInfo struct {
	Until  int64  `json:"until"` // epoch ms
	Reason string `json:"reason"`
}

// UntilTime returns Until as a time.Time.
func (l LockoutInfo) UntilTime() time.Time {
	return time.UnixMilli(l.Until)
}

// Active reports whether the lockout is still in force at now.
func (l LockoutInfo) Active(now time.Time) bool {
	return now.Before(l.UntilTime())
}

// Remaining returns the time left at now, or 0.
func (l LockoutInfo) Remaining(now time.Time) time.Duration {
	if d := l.UntilTime().Sub(now); d > 0 {
		return d
	}
	return 0
}

// lockoutStore persists LockoutInfo in local storage. Nothing removes it
// except reading it after it has ended.
type lockoutStore struct {
	mu     sync.Mutex
	local  storage.Store
	now    func() time.Time
	logger *log.Logger
}

// Current returns the lockout in force, pruning an ended one.
func (s *lockoutStore) Current() (LockoutInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var info LockoutInfo
	found, err := storage.GetJSON(s.local, storage.KeyAccountLockout, &info)
	if !found {
		return LockoutInfo{}, false
	}
	if err != nil {
		logAuthEvent(s.logger, "LOCKOUT_RECORD_UNREADABLE", fmt.Sprintf("error=%v", err))
		return LockoutInfo{}, false
	}
	if !info.Active(s.now()) {
		if err := s.local.Remove(storage.KeyAccountLockout); err != nil {
			logAuthEvent(s.logger, "LOCKOUT_PRUNE_FAILED", fmt.Sprintf("error=%v", err))
		} else {
			logAuthEvent(s.logger, "LOCKOUT_ENDED", fmt.Sprintf("reason=%q", info.Reason))
		}
		return LockoutInfo{}, false
	}
	return info, true
}

// Record persists a lockout lasting d from now.
func (s *lockoutStore) Record(reason string, d time.Duration) LockoutInfo {
	if d <= 0 {
		d = DefaultLockoutDuration
	}
	info := LockoutInfo{Until: s.now().Add(d).UnixMilli(), Reason: reason}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := storage.SetJSON(s.local, storage.KeyAccountLockout, info); err != nil {
		logAuthEvent(s.logger, "LOCKOUT_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
	logAuthEvent(s.logger, "ACCOUNT_LOCKED", fmt.Sprintf("reason=%q duration=%v", reason, d))
	return info
}
