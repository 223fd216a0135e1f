// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTheme_Modes(t *testing.T) {
	dark := NewTheme("Dark")
	require.Equal(t, ModeDark, dark.Mode)
	require.True(t, dark.IsDark)

	light := NewTheme(" light ")
	require.Equal(t, ModeLight, light.Mode)
	require.False(t, light.IsDark)

	require.Equal(t, ModeAuto, NewTheme("solarized").Mode)
}

func TestTheme_FormWidth(t *testing.T) {
	th := NewTheme(ModeDark)

	th.SetSize(200, 50)
	require.Equal(t, 56, th.FormWidth())

	th.SetSize(50, 20)
	require.Equal(t, 42, th.FormWidth())

	th.SetSize(10, 5)
	require.Equal(t, 32, th.FormWidth())
}

func TestRenderHelpers_IncludeIndicators(t *testing.T) {
	require.True(t, strings.Contains(RenderSuccess("signed in"), StatusIndicators.Success))
	require.True(t, strings.Contains(RenderError("locked"), StatusIndicators.Error))
	require.True(t, strings.Contains(RenderWarning("expiring"), StatusIndicators.Warning))
	require.True(t, strings.Contains(RenderInfo("verifying"), StatusIndicators.Info))
}
