// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// twofactor_cmd.go - Two-factor authentication management.
//
// Usage:
//
//	nexus 2fa status
//	nexus 2fa setup          Start enrollment and print the secret
//	nexus 2fa enable CODE    Finish enrollment with a code from the app
//	nexus 2fa disable CODE
package cli

import (
	"context"
	"fmt"

	"github.com/nexusblog/nexus-client/internal/app"
)

// HandleTwoFactor handles "nexus 2fa".
func HandleTwoFactor(args Args) error {
	p := NewArgParser(args.Raw)
	sub := p.Subcommand()
	if sub == "" {
		sub = "status"
	}
	switch sub {
	case "status", "setup", "enable", "verify", "disable":
	default:
		return &UsageError{Message: fmt.Sprintf("unknown 2fa subcommand %q", sub), Usage: "nexus 2fa [status|setup|enable CODE|disable CODE]"}
	}

	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := requireSession(ctx, s); err != nil {
		return err
	}

	data, err := runTwoFactor(ctx, s.App, sub, p.Positional(1))
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("2fa "+sub, data).Print()
	}
	printTwoFactor(sub, data)
	return nil
}

func runTwoFactor(ctx context.Context, a *app.App, sub, code string) (TwoFactorData, error) {
	ctrl := a.Controller
	switch sub {
	case "setup":
		setup, err := ctrl.SetupTwoFactor(ctx)
		if err != nil {
			return TwoFactorData{}, err
		}
		return TwoFactorData{
			Secret:      setup.Secret,
			OTPAuthURL:  setup.OTPAuthURL,
			Issuer:      setup.Issuer,
			Account:     setup.Account,
			BackupCodes: setup.BackupCodes,
		}, nil

	case "enable", "verify", "disable":
		var err error
		if code == "" {
			if code, err = promptInput("Two-factor code: "); err != nil {
				return TwoFactorData{}, err
			}
		}
		if sub == "disable" {
			err = ctrl.DisableTwoFactor(ctx, code)
		} else {
			err = ctrl.VerifyTwoFactor(ctx, code)
		}
		if err != nil {
			return TwoFactorData{}, err
		}
		return TwoFactorData{Enabled: sub != "disable"}, nil

	default:
		enabled, err := ctrl.TwoFactorStatus(ctx)
		if err != nil {
			return TwoFactorData{}, err
		}
		return TwoFactorData{Enabled: enabled}, nil
	}
}

func printTwoFactor(sub string, data TwoFactorData) {
	switch sub {
	case "setup":
		fmt.Println(TitleStyle.Render("Two-factor enrollment"))
		fmt.Printf("  %s%s\n", RenderLabel("Issuer:"), ValueStyle.Render(data.Issuer))
		fmt.Printf("  %s%s\n", RenderLabel("Account:"), ValueStyle.Render(data.Account))
		fmt.Printf("  %s%s\n", RenderLabel("Secret:"), HighlightStyle.Render(data.Secret))
		fmt.Printf("  %s%s\n", RenderLabel("URL:"), DimStyle.Render(data.OTPAuthURL))
		for i, c := range data.BackupCodes {
			if i == 0 {
				fmt.Println(SectionStyle.Render("Backup codes"))
			}
			fmt.Printf("  %s\n", c)
		}
		fmt.Println()
		fmt.Println(InfoStyle.Render("Add the secret to your authenticator app, then run: nexus 2fa enable CODE"))
	case "enable", "verify":
		fmt.Printf("%s Two-factor authentication enabled\n", SuccessStyle.Render("[OK]"))
	case "disable":
		fmt.Printf("%s Two-factor authentication disabled\n", SuccessStyle.Render("[OK]"))
	default:
		fmt.Printf("  %s%s\n", RenderLabel("Two-factor:"), RenderStatus(enabledStatus(data.Enabled)))
	}
}

func enabledStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
