// Package tui is the terminal front end of the chat client. All chat state
// lives in a chatsession.Controller; the model only renders it.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PabloGalante/aisuite/internal/app/chatsession"
)

type modelInfoMsg struct {
	info chatsession.ModelInfo
	ok   bool
}

type exchangeDoneMsg struct {
	outcome chatsession.Outcome
}

type Model struct {
	ctx  context.Context
	ctrl *chatsession.Controller

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int

	modelInfo *chatsession.ModelInfo
	status    string
	quitting  bool
}

// NewModel builds the chat screen. ctx bounds every exchange started from it.
func NewModel(ctx context.Context, ctrl *chatsession.Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		width:    80,
		height:   24,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadModelInfo)
}

func (m Model) loadModelInfo() tea.Msg {
	m.ctrl.Start(m.ctx)
	info, ok := m.ctrl.ModelInfo()
	return modelInfoMsg{info: info, ok: ok}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case modelInfoMsg:
		if msg.ok {
			info := msg.info
			m.modelInfo = &info
		}
		return m, nil

	case exchangeDoneMsg:
		switch msg.outcome {
		case chatsession.OutcomeFailed:
			m.status = "Exchange failed. Ctrl+R to retry."
		case chatsession.OutcomeDiscarded:
			// reply for a chat that was reset meanwhile
		default:
			m.status = ""
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.ctrl.State() != chatsession.StateAwaitingReply {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "enter":
		p, outcome := m.ctrl.Begin(m.input.Value())
		switch outcome {
		case chatsession.OutcomeStarted:
			m.input.Reset()
			m.status = ""
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.run(p))
		case chatsession.OutcomeBusy:
			m.status = "Still waiting for the previous reply."
		}
		return m, nil

	case "ctrl+r":
		p, outcome := m.ctrl.BeginRetry()
		switch outcome {
		case chatsession.OutcomeStarted:
			m.status = ""
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.run(p))
		case chatsession.OutcomeBusy:
			m.status = "Still waiting for the previous reply."
		case chatsession.OutcomeNothingToRetry:
			m.status = "Nothing to retry."
		}
		return m, nil

	case "ctrl+n":
		m.ctrl.Reset()
		m.input.Reset()
		m.status = "Started a new chat."
		m.refresh()
		return m, nil

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) run(p *chatsession.Pending) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return exchangeDoneMsg{outcome: p.Run(ctx)}
	}
}

// layout sizes the viewport to what is left after the header, the status
// line, the input and the help line.
func (m *Model) layout() {
	m.viewport.Width = m.width
	h := m.height - 5
	if h < 3 {
		h = 3
	}
	m.viewport.Height = h
	m.input.Width = max(10, m.width-4)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	transcript := m.ctrl.Transcript()
	if len(transcript) == 0 {
		return dimStyle.Render("No messages yet. Say hello!")
	}

	wrap := lipgloss.NewStyle().Width(max(20, m.width-2))

	var b strings.Builder
	for i, msg := range transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case msg.Role == chatsession.RoleUser:
			b.WriteString(userRoleStyle.Render("You") + " " + dimStyle.Render(msg.Timestamp.Format("15:04")) + "\n")
			b.WriteString(wrap.Render(msg.Content) + "\n")
		case msg.IsError:
			b.WriteString(errorRoleStyle.Render("Assistant") + " " + dimStyle.Render(msg.Timestamp.Format("15:04")) + "\n")
			b.WriteString(errorTextStyle.Render(wrap.Render(msg.Content)) + "\n")
		default:
			label := assistantRoleStyle.Render("Assistant") + " " + dimStyle.Render(msg.Timestamp.Format("15:04"))
			if msg.Intent != "" && msg.Confidence != nil {
				label += dimStyle.Render(fmt.Sprintf("  %s · %.0f%%", msg.Intent, *msg.Confidence*100))
			}
			b.WriteString(label + "\n")
			b.WriteString(wrap.Render(msg.Content) + "\n")
		}
	}
	return b.String()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := titleStyle.Render("AI Chat")
	model := "Loading model..."
	if m.modelInfo != nil && m.modelInfo.IsLoaded {
		model = "model: " + m.modelInfo.ModelName
	}
	session := "new session"
	if id, ok := m.ctrl.SessionID(); ok {
		session = "session " + shortID(id)
	}
	b.WriteString(title + dimStyle.Render("  "+model+"  "+session) + "\n")

	b.WriteString(m.viewport.View() + "\n")

	status := m.status
	if m.ctrl.State() == chatsession.StateAwaitingReply {
		status = m.spinner.View() + " Thinking..."
	}
	b.WriteString(statusBarStyle.Render(status) + "\n")

	b.WriteString(m.input.View() + "\n")
	b.WriteString(helpStyle.Render("  Enter: send  Ctrl+N: new chat  Ctrl+R: retry  PgUp/PgDn: scroll  Esc: quit"))

	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
