// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for nexus.
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdLogin
	CmdRegister
	CmdLogout
	CmdWhoami
	CmdStatus
	CmdPassword
	CmdTwoFactor
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON       bool
	Quiet      bool
	Verbose    bool
	ConfigPath string
	APIURL     string

	// Command-specific
	Command    string
	Subcommand string

	// Raw args (remaining after global flag parsing)
	Raw []string
}

const usageText = `nexus - command-line client for the Nexus blog platform

Usage:
  nexus                        Start the terminal UI (default)
  nexus login [EMAIL]          Sign in (prompts for the password)
    --code CODE                Two-factor code, if the account requires one
    --password-stdin           Read the password from stdin
  nexus register               Create an account
    --username NAME --email EMAIL
  nexus logout                 Sign out and clear the local session
  nexus whoami                 Show the signed-in user
  nexus status, s              Show session, token and lockout state
  nexus password               Change the account password
  nexus 2fa [status|setup|enable CODE|disable CODE]
                               Manage two-factor authentication
  nexus config [show|get KEY|set KEY VALUE|keys|path|reset]
                               Inspect or edit ~/.nexus/config.toml
  nexus version                Show version
  nexus help                   Show this help

Global flags:
  --json                       Machine-readable output
  --config PATH                Use this config file
  --api-url URL                Override api.base_url
  -q, --quiet                  Less output
  -v, --verbose                Log session events to stderr

Environment:
  NEXUS_HOME                   Config and state directory (default: ~/.nexus)
  NEXUS_API_URL                Backend base URL
  NEXUS_STORAGE                file, sqlite or memory
  NO_COLOR                     Disable colors

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("nexus version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name) and returns the command
// and its args.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Command = cmd
	parsedArgs.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		parsedArgs.Subcommand = strings.ToLower(remaining[0])
	}

	switch cmd {
	case "tui", "ui":
		return CmdTUI, parsedArgs
	case "login", "signin":
		return CmdLogin, parsedArgs
	case "register", "signup":
		return CmdRegister, parsedArgs
	case "logout", "signout":
		return CmdLogout, parsedArgs
	case "whoami", "me":
		return CmdWhoami, parsedArgs
	case "status", "s":
		return CmdStatus, parsedArgs
	case "password", "passwd":
		return CmdPassword, parsedArgs
	case "2fa", "twofactor", "totp":
		return CmdTwoFactor, parsedArgs
	case "config":
		return CmdConfig, parsedArgs
	case "version", "--version":
		return CmdVersion, parsedArgs
	case "help", "-h", "--help":
		return CmdHelp, parsedArgs
	default:
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--config", "--api-url":
			if i+1 < len(args) {
				i++
				if arg == "--config" {
					parsedArgs.ConfigPath = args[i]
				} else {
					parsedArgs.APIURL = args[i]
				}
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--api-url="):
				parsedArgs.APIURL = strings.TrimPrefix(arg, "--api-url=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd and returns the process exit code.
func Run(cmd Command, args Args) int {
	var err error
	switch cmd {
	case CmdTUI:
		err = HandleTUI(args)
	case CmdLogin:
		err = HandleLogin(args)
	case CmdRegister:
		err = HandleRegister(args)
	case CmdLogout:
		err = HandleLogout(args)
	case CmdWhoami:
		err = HandleWhoami(args)
	case CmdStatus:
		err = HandleStatus(args)
	case CmdPassword:
		err = HandlePassword(args)
	case CmdTwoFactor:
		err = HandleTwoFactor(args)
	case CmdConfig:
		err = HandleConfig(args)
	case CmdVersion:
		HandleVersion(args)
	case CmdHelp:
		PrintUsage()
	default:
		err = &UsageError{Message: fmt.Sprintf("unknown command %q", args.Command), Usage: "nexus help"}
	}

	if err != nil {
		DisplayError(err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// HandleVersion handles the "version" command with JSON output support.
func HandleVersion(args Args) {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		_ = NewJSONResponse("version", data).Print()
		return
	}
	PrintVersion()
}
