// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/nexusblog/nexus-client/internal/ui"
)

// HandleTUI handles "nexus" with no command, and "nexus tui". Session events
// always go to the audit log here; stderr belongs to the terminal UI.
func HandleTUI(args Args) error {
	if err := requireTerminal("the terminal UI"); err != nil {
		return err
	}

	args.Verbose = false
	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	return ui.Run(s.App)
}
