// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSessionTimeoutOverlay_WarningDismissExtends(t *testing.T) {
	o := NewSessionTimeoutOverlay()
	require.False(t, o.IsVisible())
	require.Empty(t, o.View())

	o.Show(90 * time.Second)
	require.True(t, o.IsVisible())
	require.False(t, o.IsExpired())
	require.Contains(t, o.View(), "1:30")

	o, cmd := o.Update(keyMsg("x"))
	require.False(t, o.IsVisible())
	require.NotNil(t, cmd)
	require.IsType(t, SessionExtendedMsg{}, cmd())
}

func TestSessionTimeoutOverlay_ExpiredDismiss(t *testing.T) {
	o := NewSessionTimeoutOverlay()
	o.ShowExpired()
	require.True(t, o.IsExpired())
	require.Contains(t, o.View(), "Session Expired")

	o, cmd := o.Update(keyMsg("a"))
	require.False(t, o.IsVisible())
	require.IsType(t, ExpiredDismissedMsg{}, cmd())
}

func TestSessionTimeoutOverlay_CountdownNeverExpires(t *testing.T) {
	o := NewSessionTimeoutOverlay()
	o.Show(5 * time.Second)
	o.UpdateTime(-time.Second)
	require.False(t, o.IsExpired())
	require.Equal(t, time.Duration(0), o.TimeRemaining())
}

func TestSessionTimeoutOverlay_HiddenIgnoresKeys(t *testing.T) {
	o := NewSessionTimeoutOverlay()
	_, cmd := o.Update(keyMsg("x"))
	require.Nil(t, cmd)
}

func TestLockoutBanner(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewLockoutBanner()
	b.now = func() time.Time { return now }

	require.False(t, b.Active())
	require.Equal(t, 0, b.Height())
	require.Empty(t, b.View())

	b.Set(now.Add(2*time.Minute+30*time.Second), "Too many failed attempts")
	require.True(t, b.Active())
	require.Equal(t, 1, b.Height())
	view := b.View()
	require.Contains(t, view, "Too many failed attempts")
	require.Contains(t, view, "2:30")

	now = now.Add(3 * time.Minute)
	require.False(t, b.Active())
	require.Empty(t, b.View())

	b.Set(now.Add(time.Minute), "")
	b.Clear()
	require.False(t, b.Active())
}

func TestFormatTimeRemaining(t *testing.T) {
	require.Equal(t, "0:00", formatTimeRemaining(-time.Second))
	require.Equal(t, "0:59", formatTimeRemaining(59*time.Second))
	require.Equal(t, "5:00", formatTimeRemaining(5*time.Minute))
	require.True(t, strings.HasPrefix(formatTimeRemaining(61*time.Minute), "61:"))
}

func TestSessionTimeoutOverlay_ShowWithNoTimeLeftIsExpired(t *testing.T) {
	o := NewSessionTimeoutOverlay()
	o.Show(0)
	require.True(t, o.IsExpired())
	require.Contains(t, o.View(), "Session Expired")
}
