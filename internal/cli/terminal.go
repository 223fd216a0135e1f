// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the nexus CLI.
//
// Passwords are read without echo only when stdin is a terminal, and colors
// are used only when stdout is one. NO_COLOR and FORCE_COLOR override the
// color decision.

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// defaultWidth is assumed when stdout is not a terminal.
const defaultWidth = 80

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func stdoutIsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// colorProfile returns the profile commands render with.
func colorProfile() termenv.Profile {
	return profileFor(os.Getenv, stdoutIsTTY(), termenv.ColorProfile)
}

// profileFor decides the profile. See https://no-color.org/ for NO_COLOR.
// FORCE_COLOR on a pipe gets 256 colors, since there is no terminal to ask.
func profileFor(getenv func(string) string, tty bool, detect func() termenv.Profile) termenv.Profile {
	switch {
	case getenv("NO_COLOR") != "":
		return termenv.Ascii
	case tty:
		return detect()
	case getenv("FORCE_COLOR") != "":
		return termenv.ANSI256
	default:
		return termenv.Ascii
	}
}

// requireTerminal fails unless both stdin and stdout are terminals.
func requireTerminal(what string) error {
	if IsTTY() && stdoutIsTTY() {
		return nil
	}
	return &UsageError{
		Message: what + " needs an interactive terminal",
		Usage:   "nexus login | nexus status",
	}
}
