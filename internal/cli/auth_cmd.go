// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth_cmd.go - Sign-in, registration, sign-out and account commands.
//
// Usage:
//
//	nexus login [EMAIL] [--code CODE] [--password-stdin]
//	nexus register [--username NAME] [--email EMAIL] [--password-stdin]
//	nexus logout
//	nexus whoami
//	nexus password
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexusblog/nexus-client/internal/app"
	"github.com/nexusblog/nexus-client/internal/auth"
)

// =============================================================================
// LOGIN
// =============================================================================

// HandleLogin handles "nexus login".
func HandleLogin(args Args) error {
	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	data, err := runLogin(ctx, s.App, NewArgParser(args.Raw))
	if err != nil {
		return err
	}
	return printSignedIn(args, "login", data)
}

func runLogin(ctx context.Context, a *app.App, p *ArgParser) (LoginData, error) {
	email := p.Positional(0)
	if email == "" {
		email = p.Flag("email")
	}
	fromStdin := p.HasFlag("password-stdin")
	if email == "" && fromStdin {
		// "--password-stdin EMAIL" parses EMAIL as the flag's value.
		email = p.Flag("password-stdin")
	}

	if info, locked := a.Controller.Lockout(); locked {
		return LoginData{}, &auth.LockoutError{Info: info}
	}

	var err error
	if email == "" {
		if email, err = promptInput("Email: "); err != nil {
			return LoginData{}, err
		}
	}
	password, err := readPassword(fromStdin, "Password: ")
	if err != nil {
		return LoginData{}, err
	}

	res, err := a.Controller.Login(ctx, auth.Credentials{Email: email, Password: password})
	if err != nil {
		return LoginData{}, err
	}

	if res.Requires2FA {
		code := p.Flag("code")
		if code == "" {
			if code, err = promptInput("Two-factor code: "); err != nil {
				return LoginData{}, err
			}
		}
		res, err = a.Controller.VerifyLogin2FA(ctx, code, res.TempToken)
		if err != nil {
			return LoginData{}, err
		}
	}

	if !res.Success {
		return LoginData{}, errors.New(res.Message)
	}
	return LoginData{User: newUserData(res.User)}, nil
}

// readPassword reads a password from a piped stdin line or a prompt.
func readPassword(fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		saved := interactive
		interactive = func() bool { return false }
		defer func() { interactive = saved }()
		return promptPassword("")
	}
	return promptPassword(prompt)
}

// =============================================================================
// REGISTER
// =============================================================================

// HandleRegister handles "nexus register".
func HandleRegister(args Args) error {
	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	data, err := runRegister(ctx, s.App, NewArgParser(args.Raw))
	if err != nil {
		return err
	}
	return printSignedIn(args, "register", data)
}

func runRegister(ctx context.Context, a *app.App, p *ArgParser) (LoginData, error) {
	reg := auth.Registration{
		Username: p.Flag("username"),
		Email:    p.Flag("email"),
		Name:     p.Flag("name"),
	}

	var err error
	if reg.Username == "" {
		if reg.Username, err = promptInput("Username: "); err != nil {
			return LoginData{}, err
		}
	}
	if reg.Email == "" {
		if reg.Email, err = promptInput("Email: "); err != nil {
			return LoginData{}, err
		}
	}
	if p.HasFlag("password-stdin") {
		reg.Password, err = readPassword(true, "")
	} else {
		reg.Password, err = promptNewPassword("Password: ")
	}
	if err != nil {
		return LoginData{}, err
	}

	res, err := a.Controller.Register(ctx, reg)
	if err != nil {
		return LoginData{}, err
	}
	if !res.Success {
		return LoginData{}, errors.New(res.Message)
	}
	return LoginData{User: newUserData(res.User)}, nil
}

func printSignedIn(args Args, command string, data LoginData) error {
	if args.JSON {
		return NewJSONResponse(command, data).Print()
	}
	if args.Quiet {
		return nil
	}
	name := "you"
	if data.User != nil && data.User.Username != "" {
		name = data.User.Username
	}
	fmt.Printf("%s Signed in as %s\n", SuccessStyle.Render("[OK]"), HighlightStyle.Render(name))
	return nil
}

// =============================================================================
// LOGOUT
// =============================================================================

// HandleLogout handles "nexus logout". Local session state is cleared even
// when the backend cannot be reached.
func HandleLogout(args Args) error {
	s, err := openSession(args)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := commandContext()
	defer cancel()

	wasSignedIn := s.Tokens.Get() != ""
	s.Controller.Logout(ctx)

	if args.JSON {
		return NewJSONResponse("logout", map[string]bool{"was_signed_in": wasSignedIn}).Print()
	}
	if !args.Quiet {
		if wasSignedIn {
			fmt.Printf("%s Signed out\n", SuccessStyle.Render("[OK]"))
		} else {
			fmt.Println(DimStyle.Render("Not signed in; local session state cleared"))
		}
	}
	return nil
}

// =============================================================================
// WHOAMI
// =============================================================================

// HandleWhoami handles "nexus whoami".
func HandleWhoami(args Args) error {
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
	user := newUserData(s.Controller.User())

	if args.JSON {
		return NewJSONResponse("whoami", user).Print()
	}
	fmt.Println(TitleStyle.Render(s.Controller.User().DisplayName()))
	printUser(user)
	return nil
}

func printUser(u *UserData) {
	if u == nil {
		return
	}
	fmt.Printf("  %s%s\n", RenderLabel("ID:"), ValueStyle.Render(u.ID))
	fmt.Printf("  %s%s\n", RenderLabel("Username:"), ValueStyle.Render(u.Username))
	fmt.Printf("  %s%s\n", RenderLabel("Email:"), ValueStyle.Render(u.Email))
	if u.Role != "" {
		fmt.Printf("  %s%s\n", RenderLabel("Role:"), ValueStyle.Render(u.Role))
	}
	if u.CreatedAt != "" {
		fmt.Printf("  %s%s\n", RenderLabel("Member since:"), ValueStyle.Render(u.CreatedAt))
	}
	fmt.Printf("  %s%s\n", RenderLabel("Bookmarks:"), ValueStyle.Render(fmt.Sprint(len(u.BookmarkedPosts))))
}

// =============================================================================
// PASSWORD
// =============================================================================

// HandlePassword handles "nexus password".
func HandlePassword(args Args) error {
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
	if err := runPasswordChange(ctx, s.App); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("password", map[string]bool{"changed": true}).Print()
	}
	if !args.Quiet {
		fmt.Printf("%s Password changed\n", SuccessStyle.Render("[OK]"))
	}
	return nil
}

func runPasswordChange(ctx context.Context, a *app.App) error {
	current, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := promptNewPassword("New password: ")
	if err != nil {
		return err
	}
	return a.Controller.ChangePassword(ctx, current, next)
}
