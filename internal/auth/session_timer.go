// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/storage"
)

// Session timeout defaults.
const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultWarningWindow  = 5 * time.Minute
	DefaultCheckInterval  = time.Minute

	// activityPersistInterval throttles lastActivity writes to local storage.
	activityPersistInterval = time.Second
)

// ErrNoSession is returned by Extend when no session is being timed.
var ErrNoSession = errors.New("no active session")

// =============================================================================
// ACTIVITY
// =============================================================================

// ActivityKind names a user interaction that counts as activity.
type ActivityKind string

// Activity kinds the timer listens for.
const (
	ActivityMouseDown  ActivityKind = "mousedown"
	ActivityMouseMove  ActivityKind = "mousemove"
	ActivityKeyPress   ActivityKind = "keypress"
	ActivityScroll     ActivityKind = "scroll"
	ActivityTouchStart ActivityKind = "touchstart"
	ActivityClick      ActivityKind = "click"
)

// ActivityKinds lists every kind that resets the inactivity cycle.
var ActivityKinds = []ActivityKind{
	ActivityMouseDown,
	ActivityMouseMove,
	ActivityKeyPress,
	ActivityScroll,
	ActivityTouchStart,
	ActivityClick,
}

func isActivityKind(kind ActivityKind) bool {
	for _, k := range ActivityKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ActivitySource delivers user interactions. Listeners must return quickly;
// the returned function detaches the listener.
type ActivitySource interface {
	OnActivity(fn func(ActivityKind)) (unsubscribe func())
}

// ActivityFeed is an ActivitySource front ends push interactions into.
type ActivityFeed struct {
	mu        sync.RWMutex
	listeners map[int]func(ActivityKind)
	nextID    int
}

// NewActivityFeed creates an empty feed.
func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{listeners: make(map[int]func(ActivityKind))}
}

// OnActivity implements ActivitySource.
func (f *ActivityFeed) OnActivity(fn func(ActivityKind)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Emit delivers kind to every listener.
func (f *ActivityFeed) Emit(kind ActivityKind) {
	f.mu.RLock()
	fns := make([]func(ActivityKind), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// =============================================================================
// SESSION TIMER
// =============================================================================

// SessionOptions configures one timed session.
type SessionOptions struct {
	// Timeout is the inactivity period after which the session expires.
	Timeout time.Duration

	// WarningWindow is how long before expiry the warning fires.
	WarningWindow time.Duration

	// CheckInterval is the period of the backup inactivity check that
	// catches timers delayed by system sleep.
	CheckInterval time.Duration

	OnWarning func(remaining time.Duration)
	OnExpired func()

	Sources []ActivitySource
}

func (o *SessionOptions) normalize() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultSessionTimeout
	}
	if o.WarningWindow <= 0 {
		o.WarningWindow = DefaultWarningWindow
	}
	if o.WarningWindow >= o.Timeout {
		o.WarningWindow = o.Timeout / 2
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
}

// SessionTimer expires a session after a period of inactivity, warning once
// per inactivity cycle shortly before.
//
// States: active, warned (warning issued, expiry pending) and expired. Any
// activity, or Extend, returns a warned session to active.
//
// One timer is armed for the next deadline: the warning at
// Timeout-WarningWindow of inactivity, then expiry at Timeout. When it fires
// it re-measures inactivity, so activity never needs to reset it. A ticker
// re-runs the same check every CheckInterval. Inactivity is measured from the
// later of this process's last activity and the one in local storage, so
// activity in another process sharing the store keeps this session alive.
type SessionTimer struct {
	local storage.Store
	bus   *events.Bus

	mu            sync.Mutex
	opts          SessionOptions
	active        bool
	generation    uint64
	lastActivity  time.Time
	warningIssued bool
	timer         *time.Timer
	stopCheck     chan struct{}
	unsubscribe   []func()

	persist rate.Sometimes

	now    func() time.Time
	logger *log.Logger
}

// NewSessionTimer creates an idle SessionTimer. bus may be nil.
func NewSessionTimer(local storage.Store, bus *events.Bus, logger *log.Logger) *SessionTimer {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionTimer{
		local:   local,
		bus:     bus,
		persist: rate.Sometimes{Interval: activityPersistInterval},
		now:     time.Now,
		logger:  logger,
	}
}

// Init starts timing a session, replacing any session already being timed.
func (t *SessionTimer) Init(opts SessionOptions) {
	opts.normalize()
	t.Stop()

	t.mu.Lock()
	t.opts = opts
	t.active = true
	t.generation++
	gen := t.generation
	t.lastActivity = t.now()
	t.warningIssued = false
	t.persistConfigLocked()
	t.persistActivityLocked()
	t.armLocked(gen, opts.Timeout-opts.WarningWindow)

	stop := make(chan struct{})
	t.stopCheck = stop
	t.mu.Unlock()

	go t.runCheck(gen, opts.CheckInterval, stop)

	var unsubs []func()
	for _, src := range opts.Sources {
		unsubs = append(unsubs, src.OnActivity(t.RecordActivity))
	}
	t.mu.Lock()
	if t.generation == gen {
		t.unsubscribe = unsubs
		unsubs = nil
	}
	t.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}

	logAuthEvent(t.logger, "SESSION_TIMER_STARTED", fmt.Sprintf("timeout=%v warning=%v", opts.Timeout, opts.WarningWindow))
}

// RecordActivity notes a user interaction. Kinds outside ActivityKinds are
// ignored.
func (t *SessionTimer) RecordActivity(kind ActivityKind) {
	if !isActivityKind(kind) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.lastActivity = t.now()
	t.warningIssued = false
	t.persist.Do(t.persistActivityLocked)
}

// Extend restarts the inactivity cycle. A positive timeout also replaces the
// configured timeout.
func (t *SessionTimer) Extend(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrNoSession
	}
	if timeout > 0 {
		t.opts.Timeout = timeout
		t.opts.normalize()
		t.persistConfigLocked()
	}
	t.generation++
	gen := t.generation
	t.lastActivity = t.now()
	t.warningIssued = false
	t.persistActivityLocked()

	// The check loop belongs to the previous generation; restart it.
	if t.stopCheck != nil {
		close(t.stopCheck)
	}
	stop := make(chan struct{})
	t.stopCheck = stop
	go t.runCheck(gen, t.opts.CheckInterval, stop)

	t.armLocked(gen, t.opts.Timeout-t.opts.WarningWindow)
	logAuthEvent(t.logger, "SESSION_EXTENDED", fmt.Sprintf("timeout=%v", t.opts.Timeout))
	return nil
}

// Clear stops all timers, detaches activity listeners and removes the
// persisted session keys. It is safe to call at any time, repeatedly.
func (t *SessionTimer) Clear() {
	t.Stop()
	if err := storage.RemoveAll(t.local, storage.KeySessionTimeout, storage.KeySessionWarning, storage.KeyLastActivity); err != nil {
		logAuthEvent(t.logger, "SESSION_CLEAR_FAILED", fmt.Sprintf("error=%v", err))
	}
}

// Active reports whether a session is being timed.
func (t *SessionTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// WarningIssued reports whether the current cycle's warning has fired.
func (t *SessionTimer) WarningIssued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.warningIssued
}

// Remaining returns the time left before expiry, or 0 when inactive.
func (t *SessionTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return 0
	}
	if r := t.opts.Timeout - t.idleLocked(); r > 0 {
		return r
	}
	return 0
}

// Stop cancels timers and listeners, leaving the persisted session keys in
// place for other processes sharing the store.
func (t *SessionTimer) Stop() {
	t.mu.Lock()
	t.active = false
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.stopCheck != nil {
		close(t.stopCheck)
		t.stopCheck = nil
	}
	unsubs := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

func (t *SessionTimer) runCheck(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.evaluate(gen)
		}
	}
}

// armLocked schedules evaluate after d. Caller must hold t.mu.
func (t *SessionTimer) armLocked(gen uint64, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() { t.evaluate(gen) })
}

// evaluate is the single decision point shared by the deadline timer and the
// periodic check.
func (t *SessionTimer) evaluate(gen uint64) {
	t.mu.Lock()
	if !t.active || t.generation != gen {
		t.mu.Unlock()
		return
	}

	idle := t.idleLocked()
	warnAt := t.opts.Timeout - t.opts.WarningWindow

	switch {
	case idle >= t.opts.Timeout:
		onExpired := t.opts.OnExpired
		t.mu.Unlock()
		t.expire(gen, idle, onExpired)

	case idle >= warnAt:
		remaining := t.opts.Timeout - idle
		t.armLocked(gen, remaining)
		if t.warningIssued {
			t.mu.Unlock()
			return
		}
		t.warningIssued = true
		onWarning := t.opts.OnWarning
		t.mu.Unlock()

		logAuthEvent(t.logger, "SESSION_WARNING", fmt.Sprintf("expires_in=%v", remaining.Round(time.Second)))
		if t.bus != nil {
			t.bus.Publish(events.SessionWarning, events.SessionWarningPayload{Remaining: remaining})
		}
		if onWarning != nil {
			onWarning(remaining)
		}

	default:
		t.armLocked(gen, warnAt-idle)
		t.mu.Unlock()
	}
}

func (t *SessionTimer) expire(gen uint64, idle time.Duration, onExpired func()) {
	t.mu.Lock()
	if t.generation != gen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.Clear()
	logAuthEvent(t.logger, "SESSION_EXPIRED", fmt.Sprintf("idle=%v", idle.Round(time.Second)))
	if t.bus != nil {
		t.bus.Publish(events.SessionExpired, nil)
	}
	if onExpired != nil {
		onExpired()
	}
}

// idleLocked measures inactivity from the latest known activity.
func (t *SessionTimer) idleLocked() time.Duration {
	last := t.lastActivity
	if ms, ok := storage.GetInt64(t.local, storage.KeyLastActivity); ok {
		if shared := time.UnixMilli(ms); shared.After(last) {
			last = shared
		}
	}
	return t.now().Sub(last)
}

func (t *SessionTimer) persistConfigLocked() {
	if err := storage.SetInt64(t.local, storage.KeySessionTimeout, t.opts.Timeout.Milliseconds()); err != nil {
		logAuthEvent(t.logger, "SESSION_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
	if err := storage.SetInt64(t.local, storage.KeySessionWarning, t.opts.WarningWindow.Milliseconds()); err != nil {
		logAuthEvent(t.logger, "SESSION_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
}

func (t *SessionTimer) persistActivityLocked() {
	if err := storage.SetInt64(t.local, storage.KeyLastActivity, t.lastActivity.UnixMilli()); err != nil {
		logAuthEvent(t.logger, "SESSION_PERSIST_FAILED", fmt.Sprintf("error=%v", err))
	}
}
