package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m pickerModel, keys ...string) pickerModel {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(pickerModel)
	}
	return m
}

var channels = []string{"Star Sports 1", "Sony Ten 2", "Star Movies", "News One"}

func TestPickerNavigate(t *testing.T) {
	m := send(newPicker("Channel", channels, 10), "down", "down", "enter")
	if m.chosen != 2 {
		t.Errorf("chosen = %d, want 2", m.chosen)
	}

	m = send(newPicker("Channel", channels, 10), "up", "enter")
	if m.chosen != 3 {
		t.Errorf("up from top should wrap: chosen = %d, want 3", m.chosen)
	}
}

func TestPickerFilter(t *testing.T) {
	m := send(newPicker("Channel", channels, 10), "s", "t", "a", "r", " ", "m")
	if len(m.matches) != 1 || m.matches[0] != 2 {
		t.Fatalf("matches = %v, want [2]", m.matches)
	}
	m = send(m, "enter")
	if m.chosen != 2 {
		t.Errorf("chosen = %d, want 2", m.chosen)
	}

	m = send(newPicker("Channel", channels, 10), "z", "z", "enter")
	if m.chosen != -1 || len(m.matches) != 0 {
		t.Errorf("enter with no matches: chosen = %d matches = %v", m.chosen, m.matches)
	}
	m = send(m, "backspace", "backspace")
	if len(m.matches) != len(channels) {
		t.Errorf("clearing the filter left %d matches", len(m.matches))
	}
}

func TestPickerCancel(t *testing.T) {
	m := send(newPicker("Channel", channels, 10), "down", "esc")
	if m.chosen != -1 {
		t.Errorf("chosen = %d after esc", m.chosen)
	}
}

func TestPickerScroll(t *testing.T) {
	m := send(newPicker("Channel", channels, 2), "down", "down", "down")
	if m.cursor != 3 || m.offset != 2 {
		t.Errorf("cursor = %d offset = %d, want 3 and 2", m.cursor, m.offset)
	}
	view := m.View()
	if strings.Contains(view, "Star Sports 1") || !strings.Contains(view, "News One") {
		t.Errorf("view shows the wrong window:\n%s", view)
	}
	if !strings.Contains(view, "4/4") {
		t.Errorf("view missing count:\n%s", view)
	}
}

func TestPromptModel(t *testing.T) {
	var m tea.Model = newPrompt("Search")
	for _, k := range []string{"d", "u", "n", "e", "enter"} {
		m, _ = m.Update(key(k))
	}
	if got := m.(promptModel).input.Value(); got != "dune" {
		t.Errorf("value = %q", got)
	}

	m, _ = newPrompt("Search").Update(key("esc"))
	if !m.(promptModel).cancelled {
		t.Error("esc should cancel")
	}
}

func TestSelectLine(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr error
	}{
		{"2\n", 1, nil},
		{" 4 \n", 3, nil},
		{"\n", -1, ErrCancelled},
		{"", -1, ErrCancelled},
		{"q\n", -1, ErrCancelled},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		term := Terminal{In: strings.NewReader(tt.input), Out: &out}
		got, err := term.Select("Channel", channels)
		if got != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("Select(%q) = %d, %v; want %d, %v", tt.input, got, err, tt.want, tt.wantErr)
		}
		if !strings.Contains(out.String(), "  3) Star Movies") {
			t.Errorf("menu not printed:\n%s", out.String())
		}
	}

	for _, bad := range []string{"0\n", "5\n", "abc\n"} {
		term := Terminal{In: strings.NewReader(bad), Out: &bytes.Buffer{}}
		if _, err := term.Select("Channel", channels); err == nil || errors.Is(err, ErrCancelled) {
			t.Errorf("Select(%q) err = %v, want invalid selection", bad, err)
		}
	}
}

func TestSelectNoItems(t *testing.T) {
	term := Terminal{In: strings.NewReader("1\n"), Out: &bytes.Buffer{}}
	if _, err := term.Select("x", nil); !errors.Is(err, ErrNoItems) {
		t.Errorf("err = %v, want ErrNoItems", err)
	}
}

func TestConfirmAndInputLine(t *testing.T) {
	term := Terminal{In: strings.NewReader("1\n"), Out: &bytes.Buffer{}}
	if ok, err := term.Confirm("Resume?"); err != nil || !ok {
		t.Errorf("Confirm = %v, %v", ok, err)
	}

	term = Terminal{In: strings.NewReader("  shogun \n"), Out: &bytes.Buffer{}}
	if q, err := term.Input("Search"); err != nil || q != "shogun" {
		t.Errorf("Input = %q, %v", q, err)
	}

	term = Terminal{In: strings.NewReader("\n"), Out: &bytes.Buffer{}}
	if _, err := term.Input("Search"); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty Input err = %v", err)
	}
}

func TestStylesPlainOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := Heading(&buf, "Live Now"); got != "Live Now" {
		t.Errorf("Heading = %q", got)
	}
	if got := Badge(&buf, "LIVE", true); got != "LIVE" {
		t.Errorf("Badge = %q", got)
	}
}
