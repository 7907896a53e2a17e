// Package console is the user-facing output channel: ordered, leveled and
// styled for a terminal. Operational logging stays on slog; this package
// carries the messages an app developer is meant to read.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

// Level filters console output.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a level name from a flag into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown console level %q", s)
}

const ruleWidth = 80

var (
	debugStyle   = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

// Console writes leveled, styled lines. Writes are serialized so messages
// from the supervisor and streamed child output do not interleave.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a Console writing to out at the given level.
func New(out io.Writer, level Level) *Console {
	return &Console{out: out, level: level}
}

// Debug prints faint diagnostic output, including streamed child lines.
func (c *Console) Debug(format string, args ...any) {
	c.print(LevelDebug, debugStyle.Render(fmt.Sprintf(format, args...)))
}

// Info prints a plain message.
func (c *Console) Info(format string, args ...any) {
	c.print(LevelInfo, fmt.Sprintf(format, args...))
}

// Success prints a highlighted message for the moments that matter, like
// the app URL becoming available.
func (c *Console) Success(format string, args ...any) {
	c.print(LevelInfo, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning.
func (c *Console) Warn(format string, args ...any) {
	c.print(LevelWarn, warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message.
func (c *Console) Error(format string, args ...any) {
	c.print(LevelError, errorStyle.Render(fmt.Sprintf(format, args...)))
}

// Rule prints a full-width horizontal rule with an embedded title.
func (c *Console) Rule(title string) {
	label := " " + title + " "
	right := ruleWidth - utf8.RuneCountInString(label) - 3
	if right < 0 {
		right = 0
	}
	line := strings.Repeat("─", 3) + label + strings.Repeat("─", right)
	c.print(LevelInfo, ruleStyle.Render(line))
}

// Highlight styles an inline fragment, typically a URL, to stand out
// inside a plain message.
func Highlight(s string) string {
	return successStyle.Render(s)
}

func (c *Console) print(level Level, line string) {
	if level < c.level {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}
