// Package ui renders sync results for the terminal. Output is styled on a
// TTY and plain everywhere else so that it stays greppable in CI logs.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	accent = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	muted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	bold   = lipgloss.NewStyle().Bold(true)
	good   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	bad    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	warn   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
)

// Status symbols.
const (
	SymOK       = "✓"
	SymFail     = "✗"
	SymConflict = "!"
	SymIdle     = "·"
)

// Printer writes rendered output to w.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter creates a Printer. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: IsTerminal(w)}
}

// NewPlainPrinter creates a Printer that never styles.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color || text == "" {
		return text
	}
	return s.Render(text)
}
