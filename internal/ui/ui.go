// Package ui provides the interactive picker and prompt. On a terminal they
// run as bubbletea programs; otherwise they fall back to numbered line input
// so the CLI stays scriptable.
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// ErrCancelled is returned when the user aborts a selection.
	ErrCancelled = errors.New("selection cancelled")
	// ErrNoItems is returned when there is nothing to pick from.
	ErrNoItems = errors.New("no items to select from")
	// ErrNoInput is returned when a prompt is left empty.
	ErrNoInput = errors.New("no input provided")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	liveStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal is a pair of streams the picker talks to.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// Std reads stdin and draws on stderr, leaving stdout for command output.
var Std = Terminal{In: os.Stdin, Out: os.Stderr}

// Interactive reports whether both streams are terminals.
func (t Terminal) Interactive() bool {
	return isTerminal(t.In) && isTerminal(t.Out)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Select presents items and returns the chosen index.
func (t Terminal) Select(prompt string, items []string) (int, error) {
	if len(items) == 0 {
		return -1, ErrNoItems
	}
	if !t.Interactive() {
		return t.selectLine(prompt, items)
	}

	height := 15
	if f, ok := t.Out.(*os.File); ok {
		if _, h, err := term.GetSize(int(f.Fd())); err == nil && h > 6 {
			height = min(h-4, 20)
		}
	}
	final, err := tea.NewProgram(newPicker(prompt, items, height),
		tea.WithInput(t.In), tea.WithOutput(t.Out)).Run()
	if err != nil {
		return -1, fmt.Errorf("running picker: %w", err)
	}
	m := final.(pickerModel)
	if m.chosen < 0 {
		return -1, ErrCancelled
	}
	return m.chosen, nil
}

// Confirm asks a yes/no question.
func (t Terminal) Confirm(prompt string) (bool, error) {
	idx, err := t.Select(prompt, []string{"Yes", "No"})
	if err != nil {
		return false, err
	}
	return idx == 0, nil
}

// Input prompts for a line of free text.
func (t Terminal) Input(prompt string) (string, error) {
	if !t.Interactive() {
		fmt.Fprintf(t.Out, "%s: ", prompt)
		line, err := readLine(t.In)
		if err != nil {
			return "", err
		}
		if line == "" {
			return "", ErrNoInput
		}
		return line, nil
	}

	final, err := tea.NewProgram(newPrompt(prompt), tea.WithInput(t.In), tea.WithOutput(t.Out)).Run()
	if err != nil {
		return "", fmt.Errorf("running prompt: %w", err)
	}
	m := final.(promptModel)
	if m.cancelled {
		return "", ErrCancelled
	}
	v := strings.TrimSpace(m.input.Value())
	if v == "" {
		return "", ErrNoInput
	}
	return v, nil
}

func (t Terminal) selectLine(prompt string, items []string) (int, error) {
	for i, item := range items {
		fmt.Fprintf(t.Out, "%3d) %s\n", i+1, item)
	}
	fmt.Fprintf(t.Out, "%s [1-%d]: ", prompt, len(items))
	line, err := readLine(t.In)
	if err != nil {
		return -1, err
	}
	if line == "" || line == "q" {
		return -1, ErrCancelled
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(items) {
		return -1, fmt.Errorf("invalid selection %q", line)
	}
	return n - 1, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading input: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

// Select runs Std.Select.
func Select(prompt string, items []string) (int, error) { return Std.Select(prompt, items) }

// Confirm runs Std.Confirm.
func Confirm(prompt string) (bool, error) { return Std.Confirm(prompt) }

// Input runs Std.Input.
func Input(prompt string) (string, error) { return Std.Input(prompt) }

// Heading styles a section title when w is a terminal.
func Heading(w io.Writer, s string) string {
	if !isTerminal(w) {
		return s
	}
	return headingStyle.Render(s)
}

// Badge styles an event status; live events stand out.
func Badge(w io.Writer, status string, live bool) string {
	if !isTerminal(w) {
		return status
	}
	if live {
		return liveStyle.Render(status)
	}
	return dimStyle.Render(status)
}
