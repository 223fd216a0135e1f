// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events provides the publish/subscribe channel the session manager
// uses to notify front ends.
package events

import (
	"log"
	"sync"
	"time"
)

// Event names published by the session manager.
const (
	// SessionWarning fires once per inactivity cycle shortly before expiry.
	// Payload: SessionWarningPayload.
	SessionWarning = "session-warning"

	// SessionExpired fires when the inactivity timeout elapses. No payload.
	SessionExpired = "session-expired"

	// AccountLockout fires when the backend locks the account.
	// Payload: AccountLockoutPayload.
	AccountLockout = "account-lockout"

	// AuthStateChanged fires on every authentication state transition.
	// Payload: AuthStatePayload.
	AuthStateChanged = "auth-state-changed"
)

// Event is a single notification.
type Event struct {
	Name    string
	Payload any
	At      time.Time
}

// SessionWarningPayload carries the remaining time before expiry.
type SessionWarningPayload struct {
	Remaining time.Duration
}

// AccountLockoutPayload describes a server-imposed lockout.
type AccountLockoutPayload struct {
	Until  time.Time
	Reason string
}

// AuthStatePayload describes a state transition.
type AuthStatePayload struct {
	From string
	To   string
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous, in-process event bus. Handlers run on the publishing
// goroutine, in subscription order, outside the bus lock, so a handler may
// subscribe, unsubscribe or publish.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
	logger *log.Logger
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: log.Default(),
	}
}

// SetLogger replaces the logger used to report handler panics.
func (b *Bus) SetLogger(logger *log.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Subscribe registers handler for name and returns a function that removes
// it. The returned function is idempotent.
func (b *Bus) Subscribe(name string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[name]
			for i, s := range list {
				if s.id == id {
					b.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[name]) == 0 {
				delete(b.subs, name)
			}
		})
	}
}

// Publish delivers an event to every current subscriber of name. A panicking
// handler is logged and does not prevent delivery to the others.
func (b *Bus) Publish(name string, payload any) {
	b.mu.RLock()
	list := make([]subscription, len(b.subs[name]))
	copy(list, b.subs[name])
	b.mu.RUnlock()

	ev := Event{Name: name, Payload: payload, At: time.Now()}
	for _, s := range list {
		b.deliver(s.handler, ev)
	}
}

// SubscriberCount returns the number of handlers registered for name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("EVENT_HANDLER_PANIC | event=%s panic=%v", ev.Name, r)
		}
	}()
	h(ev)
}
