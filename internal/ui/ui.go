package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Console writes styled status lines to one writer.
type Console struct {
	w     io.Writer
	r     *lipgloss.Renderer
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
	info  lipgloss.Style
	dim   lipgloss.Style
	title lipgloss.Style
	value lipgloss.Style
}

// New returns a Console writing to w.
func New(w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:     w,
		r:     r,
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")),
		info:  r.NewStyle().Foreground(lipgloss.Color("14")),
		dim:   r.NewStyle().Faint(true),
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		value: r.NewStyle().Foreground(lipgloss.Color("15")),
	}
}

// Discard returns a Console that prints nothing.
func Discard() *Console {
	return New(io.Discard)
}

func (c *Console) line(s string) {
	fmt.Fprintln(c.w, s)
}

// Blank prints an empty line.
func (c *Console) Blank() { c.line("") }

// OK prints a success line.
func (c *Console) OK(format string, args ...any) {
	c.line("  " + c.ok.Render("OK") + " " + fmt.Sprintf(format, args...))
}

// Warn prints a warning line.
func (c *Console) Warn(format string, args ...any) {
	c.line("  " + c.warn.Render("WARN") + " " + fmt.Sprintf(format, args...))
}

// Failed prints an agent or step failure that does not stop the run.
func (c *Console) Failed(format string, args ...any) {
	c.line("  " + c.fail.Render("FAILED") + " " + fmt.Sprintf(format, args...))
}

// Error prints a fatal error line.
func (c *Console) Error(format string, args ...any) {
	c.line("  " + c.fail.Render("ERROR") + " " + fmt.Sprintf(format, args...))
}

// Info prints a progress line.
func (c *Console) Info(format string, args ...any) {
	c.line("  " + c.info.Render(fmt.Sprintf(format, args...)))
}

// Dim prints a low-priority note.
func (c *Console) Dim(format string, args ...any) {
	c.line("  " + c.dim.Render(fmt.Sprintf(format, args...)))
}

// Running announces an agent in its color, preceded by a blank line.
func (c *Console) Running(name, color string) {
	style := c.r.NewStyle().Foreground(lipgloss.Color(color))
	c.line("\n  " + style.Render("Running "+name+"..."))
}

// Banner is the run header.
type Banner struct {
	Version string
	Project string
	Agents  []string
	Tier    string
	DryRun  bool
}

// PrintBanner prints the run header.
func (c *Console) PrintBanner(b Banner) {
	upper := make([]string, len(b.Agents))
	for i, a := range b.Agents {
		upper[i] = strings.ToUpper(a)
	}
	c.Blank()
	c.line("  " + c.title.Render("CODE CONCLAVE") + " v" + b.Version)
	c.line("  Project: " + c.value.Render(b.Project))
	c.line("  Agents:  " + c.value.Render(strings.Join(upper, ", ")))
	c.line("  Tier:    " + c.value.Render(strings.ToUpper(b.Tier)))
	if b.DryRun {
		c.line("  Mode:    " + c.warn.Render("DRY RUN"))
	}
	c.Blank()
}

// Verdict prints the verdict in its color: green SHIP, yellow CONDITIONAL,
// red HOLD.
func (c *Console) Verdict(v string) {
	style := c.value
	switch v {
	case "SHIP":
		style = c.ok
	case "CONDITIONAL":
		style = c.warn
	case "HOLD":
		style = c.fail
	}
	c.line("\n  " + style.Render("Verdict: "+v))
}
