// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/events"
)

// =============================================================================
// SESSION EVENTS
// =============================================================================

// SessionWarningMsg is delivered when the session-warning event fires.
type SessionWarningMsg struct {
	Remaining time.Duration
}

// SessionExpiredMsg is delivered when the session-expired event fires.
type SessionExpiredMsg struct{}

// AccountLockoutMsg is delivered when the account-lockout event fires.
type AccountLockoutMsg struct {
	Until  time.Time
	Reason string
}

// AuthStateMsg is delivered on every authentication state transition.
type AuthStateMsg struct {
	From string
	To   string
}

// Bridge forwards session events from bus to send, typically
// (*tea.Program).Send. The returned function detaches every subscription.
func Bridge(bus *events.Bus, send func(tea.Msg)) (unsubscribe func()) {
	unsubs := []func(){
		bus.Subscribe(events.SessionWarning, func(ev events.Event) {
			p, _ := ev.Payload.(events.SessionWarningPayload)
			send(SessionWarningMsg{Remaining: p.Remaining})
		}),
		bus.Subscribe(events.SessionExpired, func(events.Event) {
			send(SessionExpiredMsg{})
		}),
		bus.Subscribe(events.AccountLockout, func(ev events.Event) {
			p, _ := ev.Payload.(events.AccountLockoutPayload)
			send(AccountLockoutMsg{Until: p.Until, Reason: p.Reason})
		}),
		bus.Subscribe(events.AuthStateChanged, func(ev events.Event) {
			p, _ := ev.Payload.(events.AuthStatePayload)
			send(AuthStateMsg{From: p.From, To: p.To})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// =============================================================================
// ASYNC RESULTS
// =============================================================================

type tickMsg time.Time

type loginResultMsg struct {
	res auth.LoginResult
	err error
}

type verifyResultMsg struct {
	err error
}

type logoutDoneMsg struct{}

type visibilityHandledMsg struct{}
