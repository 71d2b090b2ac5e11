package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// pickerModel is a filterable single-choice list.
type pickerModel struct {
	title   string
	items   []string
	filter  textinput.Model
	matches []int
	cursor  int
	offset  int
	height  int
	chosen  int
}

func newPicker(title string, items []string, height int) pickerModel {
	ti := textinput.New()
	ti.Prompt = title + " > "
	ti.Focus()
	m := pickerModel{
		title:  title,
		items:  items,
		filter: ti,
		height: max(height, 1),
		chosen: -1,
	}
	m.refilter()
	return m
}

// refilter keeps the items containing every word of the query.
func (m *pickerModel) refilter() {
	words := strings.Fields(strings.ToLower(m.filter.Value()))
	m.matches = m.matches[:0]
	for i, item := range m.items {
		lower := strings.ToLower(item)
		ok := true
		for _, w := range words {
			if !strings.Contains(lower, w) {
				ok = false
				break
			}
		}
		if ok {
			m.matches = append(m.matches, i)
		}
	}
	m.cursor = 0
	m.offset = 0
}

func (m *pickerModel) move(delta int) {
	if len(m.matches) == 0 {
		return
	}
	m.cursor = (m.cursor + delta + len(m.matches)) % len(m.matches)
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-4, 1)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.chosen = -1
			return m, tea.Quit
		case "enter":
			if len(m.matches) == 0 {
				return m, nil
			}
			m.chosen = m.matches[m.cursor]
			return m, tea.Quit
		case "up", "ctrl+p", "ctrl+k":
			m.move(-1)
			return m, nil
		case "down", "ctrl+n", "ctrl+j", "tab":
			m.move(1)
			return m, nil
		}
	}

	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.refilter()
	}
	return m, cmd
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.filter.View())
	b.WriteString("\n")
	end := min(m.offset+m.height, len(m.matches))
	for i := m.offset; i < end; i++ {
		line := m.items[m.matches[i]]
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString(countStyle.Render(fmt.Sprintf("  %d/%d", len(m.matches), len(m.items))))
	b.WriteString("\n")
	return b.String()
}

// promptModel reads one line of text.
type promptModel struct {
	input     textinput.Model
	cancelled bool
}

func newPrompt(prompt string) promptModel {
	ti := textinput.New()
	ti.Prompt = prompt + " > "
	ti.Focus()
	return promptModel{input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	return m.input.View() + "\n"
}
