// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - The "nexus status" command.
//
// Shows the configured backend, the stored session, token lifetimes and any
// lockout in force. The stored session is re-verified with the backend; a
// backend that cannot be reached is reported, not treated as a sign-out.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/nexusblog/nexus-client/internal/app"
	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/config"
)

// HandleStatus handles "nexus status".
func HandleStatus(args Args) error {
	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	data := collectStatus(ctx, s.App)
	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}
	printStatus(data)
	return nil
}

func collectStatus(ctx context.Context, a *app.App) StatusData {
	now := time.Now()
	data := StatusData{
		APIURL:         a.Config.API.BaseURL,
		Storage:        a.Config.Storage.Backend,
		SessionTimeout: a.Config.Session.TimeoutSecs,
	}
	if a.Config.Storage.Backend != config.BackendMemory {
		data.StoragePath, _ = a.Config.StoragePath()
	}

	if info, locked := a.Controller.Lockout(); locked {
		data.Lockout = &LockoutData{
			Until:       info.UntilTime(),
			Reason:      info.Reason,
			RemainingMs: info.Remaining(now).Milliseconds(),
		}
	}

	if a.Tokens.Get() != "" {
		if err := a.Controller.VerifyUser(ctx); err != nil {
			data.VerifyError = displayMessage(err)
		} else {
			data.Verified = a.Controller.IsAuthenticated()
		}
	}

	data.State = a.Controller.State().String()
	if a.Controller.State() == auth.StateAuthenticated {
		data.User = newUserData(a.Controller.User())
		data.SessionLeft = int(a.Controller.SessionRemaining().Seconds())
		if exp, ok := a.Refresh.TokenExpiry(); ok {
			data.TokenExpiresAt = &exp
		}
		if exp, ok := a.Refresh.RefreshTokenExpiry(); ok {
			data.RefreshExpires = &exp
		}
	}
	return data
}

func printStatus(data StatusData) {
	fmt.Println(TitleStyle.Render("Nexus Status"))
	fmt.Println(RenderRule(50))

	fmt.Println(SectionStyle.Render("Backend"))
	fmt.Printf("  %s%s\n", RenderLabel("API:"), ValueStyle.Render(data.APIURL))
	storage := data.Storage
	if data.StoragePath != "" {
		storage += " (" + data.StoragePath + ")"
	}
	fmt.Printf("  %s%s\n", RenderLabel("Storage:"), ValueStyle.Render(storage))

	fmt.Println(SectionStyle.Render("Session"))
	switch {
	case data.User != nil:
		status := "verified"
		if !data.Verified {
			status = "unverified"
		}
		fmt.Printf("  %s%s %s\n", RenderLabel("Signed in as:"), RenderStatus(status), HighlightStyle.Render(data.User.Username))
		fmt.Printf("  %s%s\n", RenderLabel("Email:"), ValueStyle.Render(data.User.Email))
	default:
		fmt.Printf("  %s%s\n", RenderLabel("Signed in:"), DimStyle.Render("no"))
	}
	if data.VerifyError != "" {
		fmt.Printf("  %s%s\n", RenderLabel("Verification:"), WarningStyle.Render(data.VerifyError))
	}
	if data.TokenExpiresAt != nil {
		fmt.Printf("  %s%s\n", RenderLabel("Token expires:"), ValueStyle.Render(formatUntil(*data.TokenExpiresAt)))
	}
	if data.RefreshExpires != nil {
		fmt.Printf("  %s%s\n", RenderLabel("Refresh expires:"), ValueStyle.Render(formatUntil(*data.RefreshExpires)))
	}
	if data.User != nil {
		fmt.Printf("  %s%s of %s\n", RenderLabel("Idle timeout:"),
			ValueStyle.Render(formatDuration(time.Duration(data.SessionLeft)*time.Second)),
			DimStyle.Render(formatDuration(time.Duration(data.SessionTimeout)*time.Second)))
	}

	if data.Lockout != nil {
		fmt.Println(SectionStyle.Render("Lockout"))
		fmt.Printf("  %s%s\n", RenderLabel("Locked:"), RenderStatus("locked")+" "+ErrorStyle.Render(data.Lockout.Reason))
		fmt.Printf("  %s%s\n", RenderLabel("Remaining:"),
			ValueStyle.Render(formatDuration(time.Duration(data.Lockout.RemainingMs)*time.Millisecond)))
	}
	fmt.Println()
}

func formatUntil(t time.Time) string {
	d := time.Until(t)
	if d <= 0 {
		return "expired"
	}
	return "in " + formatDuration(d) + " (" + t.Local().Format("2006-01-02 15:04") + ")"
}

// formatDuration formats a time.Duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
