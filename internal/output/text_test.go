package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestTextWriter_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, emptyReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Verdict: SHIP (PASS)") {
		t.Error("output should show the verdict")
	}
	if !strings.Contains(out, "Findings: 0 total") {
		t.Error("output should show zero findings")
	}
	if !strings.Contains(out, "No issues found") {
		t.Error("output should say no issues found")
	}
}

func TestTextWriter_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextWriter{MaxFindings: 1}).Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Findings: 2 total (1 blocker, 0 high, 1 medium, 0 low)",
		"GUARDIAN   2 findings (1B/0H/1M/0L)",
		"OPERATOR   error: 503 | unavailable",
		"[!!!] GUARDIAN-001: SQL injection",
		"    db/query.go:42",
		"... and 1 more",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six seven", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q longer than 10", l)
		}
	}
	if got := strings.Join(lines, " "); got != "one two three four five six seven" {
		t.Errorf("rejoined = %q", got)
	}
}
