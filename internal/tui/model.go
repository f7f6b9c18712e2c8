// Package tui is the terminal front end: a connection indicator, the
// visible toasts newest first, and the notification toggles.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/tasknotify/internal/app"
	"github.com/dukerupert/tasknotify/internal/model"
	"github.com/dukerupert/tasknotify/internal/router"
	"github.com/dukerupert/tasknotify/internal/stream"
	"github.com/dukerupert/tasknotify/internal/toast"
)

const (
	refreshInterval = 250 * time.Millisecond
	actionTimeout   = 15 * time.Second
)

// Service is what the view drives.
type Service interface {
	Status() stream.Status
	Toasts() []toast.Entry
	Dismiss(id int64)
	ClearToasts()
	Settings() (model.NotificationSettings, error)
	Permission() model.PermissionState
	LastNotification() (model.NotificationEvent, bool)
	Retry() error
	Foreground(ctx context.Context)
	SetToastEnabled(ctx context.Context, on bool) error
	SetBrowserEnabled(ctx context.Context, on bool) error
}

type tickMsg struct{}

// resultMsg reports the outcome of a background action.
type resultMsg struct {
	text string
	err  error
}

// Model is the root Bubble Tea model.
type Model struct {
	svc      Service
	keys     KeyMap
	help     help.Model
	width    int
	height   int
	showHelp bool

	// confirming is set while asking whether to allow desktop notifications.
	confirming bool

	status      stream.Status
	toasts      []toast.Entry
	cursor      int
	settings    model.NotificationSettings
	settingsErr error
	permission  model.PermissionState
	last        *model.NotificationEvent
	flash       string
	flashErr    bool
}

// New creates the model.
func New(svc Service) Model {
	m := Model{
		svc:    svc,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		width:  80,
		height: 24,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// refresh copies a snapshot of the service state into the model.
func (m *Model) refresh() {
	m.status = m.svc.Status()
	m.toasts = m.svc.Toasts()
	m.settings, m.settingsErr = m.svc.Settings()
	m.permission = m.svc.Permission()
	if ev, ok := m.svc.LastNotification(); ok {
		m.last = &ev
	} else {
		m.last = nil
	}
	if m.cursor >= len(m.toasts) {
		m.cursor = max(len(m.toasts)-1, 0)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.FocusMsg:
		svc := m.svc
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			svc.Foreground(ctx)
			return tickMsg{}
		}

	case resultMsg:
		m.flash = msg.text
		m.flashErr = msg.err != nil
		if msg.err != nil {
			m.flash = describe(msg.err)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirming {
		switch {
		case key.Matches(msg, m.keys.Confirm):
			m.confirming = false
			return m, m.action("desktop notifications on", func(ctx context.Context) error {
				return m.svc.SetBrowserEnabled(ctx, true)
			})
		case key.Matches(msg, m.keys.Cancel):
			m.confirming = false
			m.flash = "desktop notifications left off"
			m.flashErr = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.toasts)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if e, ok := m.selected(); ok && e.OnClick != nil {
			e.OnClick()
			m.svc.Dismiss(e.ID)
			m.refresh()
		}

	case key.Matches(msg, m.keys.Dismiss):
		if e, ok := m.selected(); ok {
			m.svc.Dismiss(e.ID)
			m.refresh()
		}

	case key.Matches(msg, m.keys.ClearAll):
		m.svc.ClearToasts()
		m.refresh()

	case key.Matches(msg, m.keys.Retry):
		return m, m.action("reconnecting", func(context.Context) error {
			return m.svc.Retry()
		})

	case key.Matches(msg, m.keys.ToggleToast):
		on := !m.settings.ToastEnabled
		return m, m.action(onOff("toasts", on), func(ctx context.Context) error {
			return m.svc.SetToastEnabled(ctx, on)
		})

	case key.Matches(msg, m.keys.ToggleBrowser):
		if m.settings.BrowserEnabled {
			return m, m.action("desktop notifications off", func(ctx context.Context) error {
				return m.svc.SetBrowserEnabled(ctx, false)
			})
		}
		if m.permission == model.PermissionDefault {
			m.confirming = true
			return m, nil
		}
		return m, m.action("desktop notifications on", func(ctx context.Context) error {
			return m.svc.SetBrowserEnabled(ctx, true)
		})
	}
	return m, nil
}

// selected returns the toast under the cursor. The cursor indexes the
// newest-first display order.
func (m Model) selected() (toast.Entry, bool) {
	if len(m.toasts) == 0 {
		return toast.Entry{}, false
	}
	return m.toasts[len(m.toasts)-1-m.cursor], true
}

func (m Model) action(done string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return resultMsg{text: done, err: fn(ctx)}
	}
}

func onOff(what string, on bool) string {
	if on {
		return what + " on"
	}
	return what + " off"
}

func describe(err error) string {
	switch {
	case errors.Is(err, app.ErrQuietHours):
		return "quiet hours: desktop notifications can't be enabled right now"
	case errors.Is(err, app.ErrPermissionDenied):
		return "desktop notification permission denied"
	case errors.Is(err, stream.ErrNoSession):
		return "login required: run `tasknotify login <session-id>`"
	}
	return err.Error()
}

// Indicator renders the connection state for the header.
func Indicator(s stream.Status) string {
	switch s.State {
	case model.ConnOpen:
		return "● connected"
	case model.ConnConnecting:
		return "◌ connecting"
	case model.ConnReconnecting:
		return fmt.Sprintf("↻ reconnecting %d/%d", s.Attempt, s.MaxAttempts)
	case model.ConnError:
		if errors.Is(s.Err, stream.ErrNoSession) {
			return "✕ login required"
		}
		return "! connection error"
	case model.ConnClosed:
		if errors.Is(s.Err, stream.ErrMaxAttempts) {
			return "✕ disconnected, press r to retry"
		}
		return "○ disconnected"
	}
	return "○ idle"
}

func (m Model) View() string {
	var b strings.Builder

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		headerStyle.Render("tasknotify"),
		" ",
		connStyle(m.status.State).Render(Indicator(m.status)),
	)
	b.WriteString(header + "\n\n")

	if m.last != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("last: %s · %s", router.Title(m.last.Type), m.last.Message)))
		b.WriteString("\n\n")
	}

	if len(m.toasts) == 0 {
		b.WriteString(mutedStyle.Render("No notifications."))
		b.WriteString("\n")
	}
	for i := len(m.toasts) - 1; i >= 0; i-- {
		e := m.toasts[i]
		selected := len(m.toasts)-1-i == m.cursor
		body := lipgloss.NewStyle().Bold(true).Render(e.Title) + "\n" + e.Message
		b.WriteString(toastStyle(e.Type, selected).Width(max(m.width-4, 20)).Render(body))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.settingsErr != nil {
		b.WriteString(errorStyle.Render("settings: " + m.settingsErr.Error()))
		b.WriteString("\n")
	}
	if m.confirming {
		b.WriteString(errorStyle.Render("Allow tasknotify to show desktop notifications? [y/n]"))
		b.WriteString("\n")
	} else if m.flash != "" {
		style := mutedStyle
		if m.flashErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.flash))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Render(fmt.Sprintf("toasts %s · desktop %s (%s)",
		onOffWord(m.settings.ToastEnabled), onOffWord(m.settings.BrowserEnabled), m.permission)))
	b.WriteString("\n")

	m.help.ShowAll = m.showHelp
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func onOffWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
