package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/livescribe/core"
	"github.com/koscakluka/livescribe/core/audio"
	"github.com/koscakluka/livescribe/core/speechtotext"
	"github.com/muesli/reflow/wordwrap"
)

type sessionController interface {
	Start(ctx context.Context, opts ...orchestration.StartOption) error
	Stop() error
}

type sessionStatus int

const (
	statusIdle sessionStatus = iota
	statusConnecting
	statusListening
	statusStopping
)

func (s sessionStatus) String() string {
	switch s {
	case statusConnecting:
		return "connecting"
	case statusListening:
		return "listening"
	case statusStopping:
		return "stopping"
	default:
		return "idle"
	}
}

type (
	transcriptMsg  struct{ text string }
	sessionErrMsg  struct{ err error }
	startedMsg     struct{ err error }
	stoppedMsg     struct{ err error }
	sessionEndMsg  struct{}
	captureDoneMsg struct{}
)

type keyMap struct {
	Toggle key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Toggle, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "s"), key.WithHelp("space/s", "start/stop")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

type model struct {
	ctx        context.Context
	controller sessionController
	updates    chan tea.Msg
	startOpts  []orchestration.StartOption

	status     sessionStatus
	transcript string
	errors     []string
	quitting   bool

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	ready    bool
}

// newModel wires the session callbacks to the program through updates.
// extra start options are appended after the UI's own.
func newModel(ctx context.Context, controller sessionController, updates chan tea.Msg, extra ...orchestration.StartOption) model {
	opts := []orchestration.StartOption{
		orchestration.WithTranscriptCallback(func(text string) {
			publish(ctx, updates, transcriptMsg{text: text}, true)
		}),
		orchestration.WithErrorCallback(func(err error) {
			publish(ctx, updates, sessionErrMsg{err: err}, false)
		}),
	}

	return model{
		ctx:        ctx,
		controller: controller,
		updates:    updates,
		startOpts:  append(opts, extra...),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:       help.New(),
	}
}

// publish delivers msg to the program. Transcript updates carry the whole
// text, so one may be dropped when the program lags behind.
func publish(ctx context.Context, updates chan<- tea.Msg, msg tea.Msg, droppable bool) {
	if droppable {
		select {
		case updates <- msg:
		default:
		}
		return
	}

	select {
	case updates <- msg:
	case <-ctx.Done():
	}
}

func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), m.spinner.Tick)
}

func (m model) startSession() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.controller.Start(m.ctx, m.startOpts...)}
	}
}

func (m model) stopSession() tea.Cmd {
	return func() tea.Msg {
		return stoppedMsg{err: m.controller.Stop()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			if m.status == statusListening || m.status == statusConnecting {
				m.status = statusStopping
				return m, m.stopSession()
			}
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			switch m.status {
			case statusIdle:
				m.status = statusConnecting
				m.errors = nil
				cmds = append(cmds, m.startSession())
			case statusListening:
				m.status = statusStopping
				cmds = append(cmds, m.stopSession())
			}
		}

	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		footerHeight := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refreshContent()

	case startedMsg:
		if msg.err != nil {
			m.status = statusIdle
			m.errors = append(m.errors, describeError(msg.err))
		} else {
			m.status = statusListening
			m.transcript = ""
		}
		m.refreshContent()
		if m.quitting {
			return m, m.stopSession()
		}

	case stoppedMsg:
		m.status = statusIdle
		if msg.err != nil {
			m.errors = append(m.errors, describeError(msg.err))
			m.refreshContent()
		}
		if m.quitting {
			return m, tea.Quit
		}

	case transcriptMsg:
		m.transcript = msg.text
		m.refreshContent()
		cmds = append(cmds, waitForUpdate(m.updates))

	case sessionErrMsg:
		m.errors = append(m.errors, describeError(msg.err))
		m.refreshContent()
		cmds = append(cmds, waitForUpdate(m.updates))

	case sessionEndMsg:
		if m.status == statusListening {
			m.status = statusIdle
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case captureDoneMsg:
		if m.status == statusListening {
			m.status = statusStopping
			cmds = append(cmds, m.stopSession())
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "microphone access denied: " + err.Error()
	case errors.Is(err, audio.ErrUnsupportedEnvironment):
		return "no usable audio input: " + err.Error()
	case errors.Is(err, speechtotext.ErrConnection):
		return "connection problem: " + err.Error()
	case errors.Is(err, orchestration.ErrSessionActive):
		return "a session is already running"
	default:
		return err.Error()
	}
}

func (m *model) refreshContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.contentView())
	m.viewport.GotoBottom()
}

func (m model) contentView() string {
	width := max(m.viewport.Width, 1)

	var b strings.Builder
	b.WriteString(wordwrap.String(m.transcript, width))
	for _, line := range m.errors {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(errorStyle.Render(wordwrap.String("! "+line, width)))
	}
	return b.String()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m model) headerView() string {
	title := titleStyle.Render("livescribe")
	status := " " + m.status.String()
	if m.status == statusConnecting || m.status == statusStopping {
		status = " " + m.spinner.View() + m.status.String()
	}
	status = statusStyle.Render(status)
	line := strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title)-lipgloss.Width(status)-1))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, status, " ", line)
}

func (m model) footerView() string {
	return m.help.View(keys)
}
