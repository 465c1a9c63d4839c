package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-rewind/trace"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	callStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browseState int

const (
	stateList browseState = iota
	stateDetail
)

type inspectModel struct {
	filename string
	log      *trace.Log
	lines    []string
	detail   viewport.Model
	selected int
	top      int
	height   int
	width    int
	state    browseState
}

func newInspectModel(filename string, log *trace.Log) *inspectModel {
	events := log.Events()
	lines := make([]string, len(events))
	for i, ev := range events {
		lines[i] = eventLine(ev)
	}
	return &inspectModel{
		filename: filename,
		log:      log,
		lines:    lines,
		detail:   viewport.New(80, 20),
		height:   24,
		width:    80,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return nil
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateList && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateList && m.selected < len(m.lines)-1 {
				m.selected++
			}

		case "enter":
			if m.state == stateList && len(m.lines) > 0 {
				m.detail.SetContent(eventDetail(m.log.Events()[m.selected]))
				m.detail.GotoTop()
				m.state = stateDetail
			}

		case "esc":
			m.state = stateList
		}
	}

	if m.state == stateDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	m.clampScroll()
	return m, nil
}

// clampScroll keeps the selected line inside the visible window.
func (m *inspectModel) clampScroll() {
	visible := m.listHeight()
	if m.selected < m.top {
		m.top = m.selected
	}
	if m.selected >= m.top+visible {
		m.top = m.selected - visible + 1
	}
}

func (m *inspectModel) listHeight() int {
	h := m.height - 5
	if h < 1 {
		h = 1
	}
	return h
}

func (m *inspectModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("rewind inspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	state := "complete"
	if !m.log.Complete() {
		state = "truncated"
	}
	b.WriteString(noteStyle.Render(fmt.Sprintf("  %d events, %s", m.log.Len(), state)))
	b.WriteString("\n\n")

	if m.state == stateDetail {
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back • q quit"))
		return b.String()
	}

	if len(m.lines) == 0 {
		b.WriteString("trace has no events\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	end := m.top + m.listHeight()
	if end > len(m.lines) {
		end = len(m.lines)
	}
	for i := m.top; i < end; i++ {
		line := fmt.Sprintf("%4d  %s", i, m.lines[i])
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + callStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • enter detail • q quit"))
	return b.String()
}

func runInteractive(filename string, log *trace.Log) error {
	p := tea.NewProgram(newInspectModel(filename, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
