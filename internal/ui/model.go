// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the bubbletea front end of the nexus client: a sign-in form,
// a two-factor prompt and a session status view. Terminal focus changes are
// reported to the session controller as visibility changes, and every key
// or mouse event counts as user activity.
package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nexusblog/nexus-client/internal/app"
	"github.com/nexusblog/nexus-client/internal/auth"
	"github.com/nexusblog/nexus-client/internal/ui/components"
	"github.com/nexusblog/nexus-client/internal/ui/styles"
)

// requestTimeout bounds one backend call made from the UI.
const requestTimeout = 30 * time.Second

// Screen identifies what the model is showing.
type Screen int

const (
	ScreenLoading Screen = iota // Restoring a stored session
	ScreenLogin                 // Email and password form
	ScreenTwoFactor             // Second-factor code
	ScreenHome                  // Signed-in status view
)

// String returns a string representation of the Screen.
func (s Screen) String() string {
	switch s {
	case ScreenLoading:
		return "loading"
	case ScreenLogin:
		return "login"
	case ScreenTwoFactor:
		return "2fa"
	case ScreenHome:
		return "home"
	default:
		return "unknown"
	}
}

// Login form focus positions.
const (
	focusEmail = iota
	focusPassword
	focusSubmit
	focusCount
)

// Model is the root bubbletea model.
type Model struct {
	app   *app.App
	ctrl  *auth.Controller
	theme *styles.Theme

	screen Screen
	email  textinput.Model
	pass   textinput.Model
	code   textinput.Model
	focus  int

	tempToken string
	busy      bool
	spinner   spinner.Model
	errMsg    string
	notice    string

	overlay components.SessionTimeoutOverlay
	banner  components.LockoutBanner

	width  int
	height int
}

// New creates the model for a.
func New(a *app.App) *Model {
	theme := styles.NewTheme(a.Config.UI.Theme)

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = theme.Info

	m := &Model{
		app:     a,
		ctrl:    a.Controller,
		theme:   theme,
		email:   newInput(theme, "you@example.com", 254),
		pass:    newInput(theme, "password", 1024),
		code:    newInput(theme, "123456", 16),
		spinner: sp,
		overlay: components.NewSessionTimeoutOverlay(),
		banner:  components.NewLockoutBanner(),
	}
	m.pass.EchoMode = textinput.EchoPassword
	m.pass.EchoCharacter = '*'

	if info, locked := m.ctrl.Lockout(); locked {
		m.banner.Set(info.UntilTime(), info.Reason)
	}
	switch {
	case m.ctrl.IsAuthenticated():
		m.screen = ScreenHome
	case m.ctrl.Token() != "":
		m.screen = ScreenLoading
		m.busy = true
	default:
		m.screen = ScreenLogin
	}
	m.setFocus(focusEmail)
	return m
}

func newInput(theme *styles.Theme, placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 40
	ti.Prompt = "> "
	ti.PromptStyle = theme.Prompt
	ti.PlaceholderStyle = theme.Placeholder
	return ti
}

// Screen returns the current screen.
func (m *Model) Screen() Screen { return m.screen }

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the countdown tick and, when a token is stored, verifies it.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick(), textinput.Blink}
	if m.screen == ScreenLoading {
		cmds = append(cmds, m.verifyCmd(), m.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.overlay.SetSize(msg.Width, msg.Height)
		m.banner.SetWidth(msg.Width)
		return m, nil

	case tea.FocusMsg:
		return m, m.visibilityCmd(true)

	case tea.BlurMsg:
		return m, m.visibilityCmd(false)

	case tea.MouseMsg:
		m.app.Activity.Emit(mouseActivity(msg))
		return m, nil

	case tea.KeyMsg:
		m.app.Activity.Emit(auth.ActivityKeyPress)
		return m.handleKey(msg)

	case tickMsg:
		if m.overlay.IsVisible() && !m.overlay.IsExpired() {
			m.overlay.UpdateTime(m.ctrl.SessionRemaining())
		}
		return m, tick()

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SessionWarningMsg:
		m.overlay.Show(msg.Remaining)
		return m, nil

	case SessionExpiredMsg:
		m.overlay.ShowExpired()
		return m, nil

	case components.SessionExtendedMsg:
		if err := m.ctrl.ExtendSession(); err != nil {
			m.errMsg = auth.UserMessage(err)
		}
		return m, nil

	case components.ExpiredDismissedMsg:
		m.showLogin()
		return m, textinput.Blink

	case AccountLockoutMsg:
		m.banner.Set(msg.Until, msg.Reason)
		return m, nil

	case AuthStateMsg:
		return m.handleAuthState(msg)

	case loginResultMsg:
		return m.handleLoginResult(msg)

	case verifyResultMsg:
		m.busy = false
		if m.ctrl.IsAuthenticated() {
			m.screen = ScreenHome
			if msg.err != nil {
				m.notice = "Could not reach the server; showing your saved session"
			}
			return m, nil
		}
		m.showLogin()
		if msg.err != nil {
			m.errMsg = auth.UserMessage(msg.err)
		}
		return m, textinput.Blink

	case logoutDoneMsg:
		m.busy = false
		m.showLogin()
		m.notice = "Signed out"
		return m, textinput.Blink

	case visibilityHandledMsg:
		if m.screen == ScreenHome && !m.ctrl.IsAuthenticated() {
			m.showLogin()
		} else if m.screen != ScreenHome && m.ctrl.IsAuthenticated() {
			m.screen = ScreenHome
		}
		return m, nil
	}

	return m, m.updateInputs(msg)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.overlay.IsVisible() {
		var cmd tea.Cmd
		m.overlay, cmd = m.overlay.Update(msg)
		return m, cmd
	}

	switch m.screen {
	case ScreenLogin:
		return m.handleLoginKey(msg)
	case ScreenTwoFactor:
		return m.handleTwoFactorKey(msg)
	case ScreenHome:
		return m.handleHomeKey(msg)
	}
	return m, nil
}

func (m *Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		return m, m.setFocus((m.focus + 1) % focusCount)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.setFocus((m.focus + focusCount - 1) % focusCount)
	case tea.KeyEnter:
		if m.focus == focusEmail {
			return m, m.setFocus(focusPassword)
		}
		return m, m.submitLogin()
	case tea.KeyEsc:
		return m, tea.Quit
	}
	return m, m.updateInputs(msg)
}

func (m *Model) handleTwoFactorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m, m.submitCode()
	case tea.KeyEsc:
		m.tempToken = ""
		m.code.Reset()
		m.showLogin()
		return m, textinput.Blink
	}
	return m, m.updateInputs(msg)
}

func (m *Model) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch strings.ToLower(msg.String()) {
	case "q", "esc":
		return m, tea.Quit
	case "l":
		m.busy = true
		return m, tea.Batch(m.logoutCmd(), m.spinner.Tick)
	case "r":
		m.busy = true
		m.notice = ""
		return m, tea.Batch(m.verifyCmd(), m.spinner.Tick)
	case "e":
		if err := m.ctrl.ExtendSession(); err != nil {
			m.errMsg = auth.UserMessage(err)
		} else {
			m.notice = "Session extended"
		}
	}
	return m, nil
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	m.email.Blur()
	m.pass.Blur()
	switch i {
	case focusEmail:
		return m.email.Focus()
	case focusPassword:
		return m.pass.Focus()
	}
	return nil
}

func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin:
		switch m.focus {
		case focusEmail:
			m.email, cmd = m.email.Update(msg)
		case focusPassword:
			m.pass, cmd = m.pass.Update(msg)
		}
	case ScreenTwoFactor:
		m.code, cmd = m.code.Update(msg)
	}
	return cmd
}

// =============================================================================
// SIGN-IN FLOW
// =============================================================================

func (m *Model) submitLogin() tea.Cmd {
	if m.busy {
		return nil
	}
	if m.banner.Active() {
		m.errMsg = "Sign-in is locked. Try again when the countdown ends."
		return nil
	}
	email, password := strings.TrimSpace(m.email.Value()), m.pass.Value()
	if email == "" || password == "" {
		m.errMsg = auth.UserMessage(auth.ErrMissingCredential)
		return nil
	}

	m.busy = true
	m.errMsg, m.notice = "", ""
	ctrl := m.ctrl
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := ctrl.Login(ctx, auth.Credentials{Email: email, Password: password})
		return loginResultMsg{res: res, err: err}
	})
}

func (m *Model) submitCode() tea.Cmd {
	if m.busy {
		return nil
	}
	code, token := m.code.Value(), m.tempToken
	m.busy = true
	m.errMsg = ""
	ctrl := m.ctrl
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := ctrl.VerifyLogin2FA(ctx, code, token)
		return loginResultMsg{res: res, err: err}
	})
}

func (m *Model) handleLoginResult(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	res := msg.res

	if res.Lockout != nil {
		m.banner.Set(res.Lockout.UntilTime(), res.Lockout.Reason)
	}

	switch {
	case res.Requires2FA:
		m.tempToken = res.TempToken
		m.pass.Reset()
		m.code.Reset()
		m.screen = ScreenTwoFactor
		return m, m.code.Focus()

	case msg.err != nil || !res.Success:
		m.errMsg = res.Message
		if m.errMsg == "" {
			m.errMsg = auth.UserMessage(msg.err)
		}
		if m.screen == ScreenTwoFactor {
			m.code.Reset()
		} else {
			m.pass.Reset()
		}
		return m, nil
	}

	m.tempToken = ""
	m.pass.Reset()
	m.code.Reset()
	m.errMsg = ""
	m.screen = ScreenHome
	return m, nil
}

func (m *Model) handleAuthState(msg AuthStateMsg) (tea.Model, tea.Cmd) {
	switch msg.To {
	case auth.StateAuthenticated.String():
		if m.screen != ScreenHome {
			m.busy = false
			m.tempToken = ""
			m.screen = ScreenHome
		}
	case auth.StateAnonymous.String():
		if m.screen == ScreenHome || m.screen == ScreenLoading {
			m.busy = false
			m.showLogin()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m *Model) showLogin() {
	m.screen = ScreenLogin
	m.pass.Reset()
	m.setFocus(focusEmail)
	if m.email.Value() != "" {
		m.setFocus(focusPassword)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) verifyCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return verifyResultMsg{err: ctrl.VerifyUser(ctx)}
	}
}

func (m *Model) logoutCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ctrl.Logout(ctx)
		return logoutDoneMsg{}
	}
}

func (m *Model) visibilityCmd(visible bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.HandleVisibilityChange(visible)
		return visibilityHandledMsg{}
	}
}

func mouseActivity(msg tea.MouseMsg) auth.ActivityKind {
	switch {
	case tea.MouseEvent(msg).IsWheel():
		return auth.ActivityScroll
	case msg.Action == tea.MouseActionMotion:
		return auth.ActivityMouseMove
	default:
		return auth.ActivityMouseDown
	}
}
