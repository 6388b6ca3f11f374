// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive terminal for the controller",
	Long: `Open an interactive terminal to the controller.

Lines typed at the prompt are sent as commands and their replies shown in
the scrollback, along with anything the controller prints on its own. The
header shows a status report polled once per second.

Keys:
  Enter        send the line
  Up/Down      command history
  PgUp/PgDn    scroll
  Ctrl+X       soft reset
  Esc, Ctrl+C  quit

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// unsolicited lines can arrive before the program exists
	pending := make(chan string, 256)
	s, err := openSession(ctx, controller.WithUnsolicitedHandler(func(line string) {
		select {
		case pending <- line:
		default:
		}
	}))
	if err != nil {
		return err
	}
	defer closeSession(s)

	m := newConsoleModel(ctx, s)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case line := <-pending:
				p.Send(consoleLineMsg{text: line, kind: lineUnsolicited})
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type lineKind int

const (
	lineUnsolicited lineKind = iota
	lineSent
	lineReply
	lineError
)

type consoleModel struct {
	ctx     context.Context
	session *controller.Session

	input    textinput.Model
	scroll   viewport.Model
	lines    []string
	maxLines int

	history []string
	histPos int

	status  *controller.MachineStatus
	polling bool
	busy    bool

	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type consoleTickMsg time.Time

type consoleLineMsg struct {
	text string
	kind lineKind
}

type consoleReplyMsg struct {
	sent   string
	output []string
	err    error
}

type consoleStatusMsg struct {
	status controller.MachineStatus
	err    error
}

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	consoleTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	consoleHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	consoleSentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("12")).
				Bold(true)

	consoleReplyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10"))

	consoleErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	consoleStateStyles = map[string]lipgloss.Style{
		"Idle":  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		"Run":   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		"Jog":   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		"Hold":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		"Alarm": lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}

	consoleBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

func newConsoleModel(ctx context.Context, s *controller.Session) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "$I"
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Focus()

	vp := viewport.New(78, 18)

	return consoleModel{
		ctx:      ctx,
		session:  s,
		input:    ti,
		scroll:   vp,
		maxLines: 1000,
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, consoleTickCmd())
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+x":
			m.appendLine("^X soft reset", lineSent)
			if err := m.session.SendRealtime(controller.RealtimeSoftReset); err != nil {
				m.appendLine(err.Error(), lineError)
			}
			return m, nil
		case "enter":
			return m.submit()
		case "up":
			m.recall(-1)
			return m, nil
		case "down":
			m.recall(1)
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.scroll, cmd = m.scroll.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case consoleTickMsg:
		cmds = append(cmds, consoleTickCmd())
		if !m.polling && !m.busy {
			m.polling = true
			cmds = append(cmds, m.pollStatus())
		}

	case consoleStatusMsg:
		m.polling = false
		if msg.err == nil {
			st := msg.status
			m.status = &st
		}

	case consoleLineMsg:
		m.appendLine(msg.text, msg.kind)

	case consoleReplyMsg:
		m.busy = false
		for _, out := range msg.output {
			m.appendLine(out, lineReply)
		}
		if msg.err != nil {
			m.appendLine(msg.err.Error(), lineError)
		} else {
			m.appendLine("ok", lineReply)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(consoleTitleStyle.Render("FLUIDCTL CONSOLE"))
	s.WriteString(" ")
	s.WriteString(consoleHeaderStyle.Render(fmt.Sprintf("| %s | Esc=quit Ctrl+X=reset", m.session.Transport())))
	s.WriteString("\n")
	s.WriteString(m.statusLine())
	s.WriteString("\n")
	s.WriteString(consoleBoxStyle.Render(m.scroll.View()))
	s.WriteString("\n")
	s.WriteString(m.input.View())
	return s.String()
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m consoleModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" || m.busy {
		return m, nil
	}
	m.history = append(m.history, line)
	m.histPos = len(m.history)
	m.appendLine(line, lineSent)
	m.busy = true

	ctx, s := m.ctx, m.session
	return m, func() tea.Msg {
		output, err := s.SendLine(ctx, line, cmdTimeout)
		return consoleReplyMsg{sent: line, output: output, err: err}
	}
}

func (m consoleModel) pollStatus() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		status := controller.NewStatusCommand()
		err := s.Send(ctx, status, cmdTimeout)
		return consoleStatusMsg{status: status.Result(), err: err}
	}
}

func (m *consoleModel) recall(dir int) {
	if len(m.history) == 0 {
		return
	}
	m.histPos += dir
	if m.histPos < 0 {
		m.histPos = 0
	}
	if m.histPos >= len(m.history) {
		m.histPos = len(m.history)
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histPos])
	m.input.CursorEnd()
}

func (m *consoleModel) appendLine(text string, kind lineKind) {
	switch kind {
	case lineSent:
		text = consoleSentStyle.Render("> " + text)
	case lineReply:
		text = consoleReplyStyle.Render(text)
	case lineError:
		text = consoleErrorStyle.Render(text)
	}
	m.lines = append(m.lines, text)

	// Keep only last N lines
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
	m.scroll.SetContent(strings.Join(m.lines, "\n"))
	m.scroll.GotoBottom()
}

func (m *consoleModel) resize() {
	// title, status, box border and prompt
	const chrome = 5
	m.scroll.Width = max(m.width-2, 10)
	m.scroll.Height = max(m.height-chrome, 3)
	m.input.Width = max(m.width-4, 10)
	m.scroll.SetContent(strings.Join(m.lines, "\n"))
}

func (m consoleModel) statusLine() string {
	if m.status == nil {
		return consoleHeaderStyle.Render(fmt.Sprintf(" %s", m.session.Status()))
	}
	style, ok := consoleStateStyles[m.status.State]
	if !ok {
		style = consoleHeaderStyle
	}
	line := " " + style.Render(m.status.State)
	if pos, ok := m.status.Fields["MPos"]; ok {
		line += consoleHeaderStyle.Render("  MPos " + pos)
	}
	if fs, ok := m.status.Fields["FS"]; ok {
		line += consoleHeaderStyle.Render("  FS " + fs)
	}
	return line
}
