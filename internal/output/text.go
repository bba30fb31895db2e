package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/synthesis"
)

// TextWriter outputs a compact terminal summary. MaxFindings caps the
// findings listed; zero lists them all.
type TextWriter struct {
	MaxFindings int
}

func (t *TextWriter) Write(w io.Writer, r *synthesis.Report) error {
	ew := &errWriter{w: w}

	ew.printf("Code Conclave: %s\n", r.ProjectName())
	ew.println(strings.Repeat("-", 60))
	ew.printf("Verdict: %s (%s)\n", r.Verdict, r.Verdict.Label())
	ew.printf("Findings: %d total", r.Totals.Total)
	if r.Totals.Total > 0 {
		ew.printf(" (%d blocker, %d high, %d medium, %d low)",
			r.Totals.Blockers, r.Totals.High, r.Totals.Medium, r.Totals.Low)
	}
	ew.println("")
	ew.println(strings.Repeat("-", 60))

	for _, a := range r.Agents {
		if a.Status == findings.StatusError {
			ew.printf("  %-10s error: %s\n", strings.ToUpper(a.Agent.ID), a.Error)
			continue
		}
		s := a.Summary
		ew.printf("  %-10s %d findings (%dB/%dH/%dM/%dL)\n",
			strings.ToUpper(a.Agent.ID), s.Total, s.Blockers, s.High, s.Medium, s.Low)
	}

	if r.Totals.Total == 0 {
		ew.println("\nNo issues found. Looks good!")
		return ew.err
	}

	list := r.Findings
	if t.MaxFindings > 0 && len(list) > t.MaxFindings {
		list = list[:t.MaxFindings]
	}
	ew.println("")
	for _, f := range list {
		ew.printf("%s %s: %s\n", severityIcon(f.Severity), f.ID, f.Title)
		if loc := f.Location(); loc != "" {
			ew.printf("    %s\n", loc)
		}
		if f.Issue != "" {
			for _, line := range wrapText(f.Issue, 70) {
				ew.printf("    %s\n", line)
			}
		}
	}
	if n := len(r.Findings) - len(list); n > 0 {
		ew.printf("... and %d more\n", n)
	}
	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityIcon(s findings.Severity) string {
	switch s {
	case findings.SeverityBlocker:
		return "[!!!]"
	case findings.SeverityHigh:
		return "[!!]"
	case findings.SeverityMedium:
		return "[!]"
	case findings.SeverityLow:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
