// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusblog/nexus-client/internal/events"
	"github.com/nexusblog/nexus-client/internal/storage"
)

func newTestTimer(t *testing.T) (*SessionTimer, *storage.MemoryStore, *events.Bus) {
	t.Helper()
	local := storage.NewMemoryStore()
	bus := events.NewBus()
	timer := NewSessionTimer(local, bus, quietLogger())
	t.Cleanup(timer.Stop)
	return timer, local, bus
}

func TestSessionTimerWarnsThenExpires(t *testing.T) {
	timer, local, bus := newTestTimer(t)
	rec := record(bus, events.SessionWarning, events.SessionExpired)

	var warned, expired atomic.Int32
	var warnedAt, expiredAt atomic.Int64
	start := time.Now()
	timer.Init(SessionOptions{
		Timeout:       300 * time.Millisecond,
		WarningWindow: 150 * time.Millisecond,
		CheckInterval: time.Hour,
		OnWarning: func(remaining time.Duration) {
			warned.Add(1)
			warnedAt.Store(int64(time.Since(start)))
		},
		OnExpired: func() {
			expired.Add(1)
			expiredAt.Store(int64(time.Since(start)))
		},
	})

	eventually(t, func() bool { return expired.Load() == 1 })
	require.EqualValues(t, 1, warned.Load(), "one warning per cycle")
	require.GreaterOrEqual(t, time.Duration(warnedAt.Load()), 150*time.Millisecond)
	require.Less(t, time.Duration(warnedAt.Load()), time.Duration(expiredAt.Load()))
	require.GreaterOrEqual(t, time.Duration(expiredAt.Load()), 300*time.Millisecond)

	require.Len(t, rec.named(events.SessionWarning), 1)
	require.Len(t, rec.named(events.SessionExpired), 1)
	payload := rec.named(events.SessionWarning)[0].Payload.(events.SessionWarningPayload)
	require.Greater(t, payload.Remaining, time.Duration(0))
	require.LessOrEqual(t, payload.Remaining, 150*time.Millisecond)

	require.False(t, timer.Active())
	for _, key := range []string{storage.KeySessionTimeout, storage.KeySessionWarning, storage.KeyLastActivity} {
		_, ok := local.Get(key)
		require.False(t, ok, key)
	}
}

func TestSessionTimerActivityDefersExpiry(t *testing.T) {
	timer, _, _ := newTestTimer(t)
	feed := NewActivityFeed()

	var expired atomic.Int32
	timer.Init(SessionOptions{
		Timeout:       300 * time.Millisecond,
		WarningWindow: 100 * time.Millisecond,
		CheckInterval: time.Hour,
		OnExpired:     func() { expired.Add(1) },
		Sources:       []ActivitySource{feed},
	})

	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		feed.Emit(ActivityKeyPress)
		time.Sleep(50 * time.Millisecond)
	}
	require.EqualValues(t, 0, expired.Load(), "steady activity keeps the session alive")
	require.True(t, timer.Active())
	require.False(t, timer.WarningIssued())

	eventually(t, func() bool { return expired.Load() == 1 })
}

func TestSessionTimerActivityAfterWarningStartsNewCycle(t *testing.T) {
	timer, _, _ := newTestTimer(t)

	var warned atomic.Int32
	timer.Init(SessionOptions{
		Timeout:       400 * time.Millisecond,
		WarningWindow: 300 * time.Millisecond,
		CheckInterval: time.Hour,
		OnWarning:     func(time.Duration) { warned.Add(1) },
	})

	eventually(t, func() bool { return warned.Load() == 1 })
	require.True(t, timer.WarningIssued())

	timer.RecordActivity(ActivityClick)
	require.False(t, timer.WarningIssued())

	eventually(t, func() bool { return warned.Load() == 2 }, "the next cycle warns again")
}

func TestSessionTimerIgnoresUnknownActivity(t *testing.T) {
	timer, _, _ := newTestTimer(t)
	timer.Init(SessionOptions{Timeout: time.Hour, WarningWindow: time.Minute, CheckInterval: time.Hour})

	before := timer.Remaining()
	time.Sleep(20 * time.Millisecond)
	timer.RecordActivity(ActivityKind("resize"))
	require.Less(t, timer.Remaining(), before)
}

func TestSessionTimerExtend(t *testing.T) {
	timer, local, _ := newTestTimer(t)
	require.ErrorIs(t, timer.Extend(time.Minute), ErrNoSession)

	var expired atomic.Int32
	timer.Init(SessionOptions{
		Timeout:       200 * time.Millisecond,
		WarningWindow: 100 * time.Millisecond,
		CheckInterval: time.Hour,
		OnExpired:     func() { expired.Add(1) },
	})

	require.NoError(t, timer.Extend(time.Hour))
	v, ok := storage.GetInt64(local, storage.KeySessionTimeout)
	require.True(t, ok)
	require.Equal(t, time.Hour.Milliseconds(), v)

	time.Sleep(400 * time.Millisecond)
	require.EqualValues(t, 0, expired.Load())
	require.Greater(t, timer.Remaining(), 59*time.Minute)
}

func TestSessionTimerCountsSharedActivity(t *testing.T) {
	timer, local, _ := newTestTimer(t)

	var expired atomic.Int32
	timer.Init(SessionOptions{
		Timeout:       300 * time.Millisecond,
		WarningWindow: 100 * time.Millisecond,
		CheckInterval: 50 * time.Millisecond,
		OnExpired:     func() { expired.Add(1) },
	})

	// Another process sharing the store keeps reporting activity.
	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, storage.SetInt64(local, storage.KeyLastActivity, time.Now().UnixMilli()))
		time.Sleep(40 * time.Millisecond)
	}
	require.EqualValues(t, 0, expired.Load())
	require.True(t, timer.Active())
}

func TestSessionTimerStopKeepsPersistedKeys(t *testing.T) {
	timer, local, _ := newTestTimer(t)
	timer.Init(SessionOptions{Timeout: time.Hour, WarningWindow: time.Minute, CheckInterval: time.Hour})

	timer.Stop()
	require.False(t, timer.Active())
	require.Zero(t, timer.Remaining())
	_, ok := local.Get(storage.KeyLastActivity)
	require.True(t, ok)

	timer.Clear()
	timer.Clear()
	_, ok = local.Get(storage.KeyLastActivity)
	require.False(t, ok)
}

func TestSessionTimerInitReplacesSession(t *testing.T) {
	timer, _, _ := newTestTimer(t)
	feed := NewActivityFeed()

	var first atomic.Int32
	timer.Init(SessionOptions{
		Timeout:       100 * time.Millisecond,
		WarningWindow: 50 * time.Millisecond,
		CheckInterval: time.Hour,
		OnExpired:     func() { first.Add(1) },
		Sources:       []ActivitySource{feed},
	})
	timer.Init(SessionOptions{Timeout: time.Hour, WarningWindow: time.Minute, CheckInterval: time.Hour})

	time.Sleep(250 * time.Millisecond)
	require.EqualValues(t, 0, first.Load(), "callbacks of a replaced session never fire")
	require.True(t, timer.Active())

	feed.mu.RLock()
	defer feed.mu.RUnlock()
	require.Empty(t, feed.listeners, "sources of a replaced session are detached")
}

func TestSessionOptionsNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   SessionOptions
		want SessionOptions
	}{
		{
			name: "defaults",
			want: SessionOptions{Timeout: DefaultSessionTimeout, WarningWindow: DefaultWarningWindow, CheckInterval: DefaultCheckInterval},
		},
		{
			name: "warning not shorter than timeout",
			in:   SessionOptions{Timeout: 4 * time.Minute, WarningWindow: 5 * time.Minute, CheckInterval: time.Second},
			want: SessionOptions{Timeout: 4 * time.Minute, WarningWindow: 2 * time.Minute, CheckInterval: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.normalize()
			require.Equal(t, tt.want.Timeout, got.Timeout)
			require.Equal(t, tt.want.WarningWindow, got.WarningWindow)
			require.Equal(t, tt.want.CheckInterval, got.CheckInterval)
		})
	}
}
