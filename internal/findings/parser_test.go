package findings

import (
	"strings"
	"testing"
	"time"
)

const sampleReview = "# GUARDIAN Security Review\n\n" +
	"### GUARDIAN-001: Hardcoded API Key in Configuration [BLOCKER]\n" +
	"**Location:** `src/config.js:42`\n" +
	"**Effort:** S\n\n" +
	"**Issue:**\nAPI key is hardcoded in source code.\n\n" +
	"**Evidence:**\n```javascript\nconst API_KEY = \"abc\";\n```\n\n" +
	"**Recommendation:**\nMove to an environment variable.\n\n" +
	"### GUARDIAN-002: Missing CSRF Protection [HIGH]\n" +
	"**File:** src/api/routes.js\n" +
	"**Line:** 15\n" +
	"**Effort:** M\n\n" +
	"**Issue:** POST endpoints lack CSRF validation.\n\n" +
	"**Remediation:**\nAdd CSRF middleware.\n\n" +
	"### GUARDIAN-003: Verbose Errors [MEDIUM]\n" +
	"Stack traces are returned to clients.\n\n" +
	"COMPLETE: 1 BLOCKER, 1 HIGH, 1 MEDIUM, 0 LOW\n"

func TestExtract_Fields(t *testing.T) {
	got := Extract(sampleReview)
	if len(got) != 3 {
		t.Fatalf("got %d findings, want 3", len(got))
	}

	f := got[0]
	if f.ID != "GUARDIAN-001" || f.Severity != SeverityBlocker {
		t.Errorf("first finding = %s [%s]", f.ID, f.Severity)
	}
	if f.Title != "Hardcoded API Key in Configuration" {
		t.Errorf("Title = %q", f.Title)
	}
	if f.File != "src/config.js" || f.Line != 42 {
		t.Errorf("location = %q:%d, want src/config.js:42", f.File, f.Line)
	}
	if f.Effort != EffortSmall {
		t.Errorf("Effort = %q, want S", f.Effort)
	}
	if f.Issue != "API key is hardcoded in source code." {
		t.Errorf("Issue = %q", f.Issue)
	}
	if f.Evidence != `const API_KEY = "abc";` {
		t.Errorf("Evidence = %q", f.Evidence)
	}
	if f.Recommendation != "Move to an environment variable." {
		t.Errorf("Recommendation = %q", f.Recommendation)
	}

	f = got[1]
	if f.File != "src/api/routes.js" || f.Line != 15 {
		t.Errorf("location = %q:%d, want src/api/routes.js:15", f.File, f.Line)
	}
	if f.Issue != "POST endpoints lack CSRF validation." {
		t.Errorf("inline Issue = %q", f.Issue)
	}
	if f.Recommendation != "Add CSRF middleware." {
		t.Errorf("Remediation = %q", f.Recommendation)
	}
}

func TestExtract_FallbackIssue(t *testing.T) {
	got := Extract(sampleReview)
	f := got[2]
	if f.Issue != "Stack traces are returned to clients." {
		t.Errorf("fallback Issue = %q", f.Issue)
	}
	if f.File != "" || f.Line != 0 {
		t.Errorf("expected no location, got %q:%d", f.File, f.Line)
	}
}

func TestExtract_IgnoresHeadingsInCodeFences(t *testing.T) {
	content := "Example of the format:\n\n" +
		"```markdown\n### FAKE-001: Example finding [BLOCKER]\n**Issue:** not real\n```\n\n" +
		"### REAL-001: Real finding [LOW]\n**Issue:**\nThis one counts.\n"

	got := Extract(content)
	if len(got) != 1 {
		t.Fatalf("got %d findings, want 1", len(got))
	}
	if got[0].ID != "REAL-001" {
		t.Errorf("ID = %q, want REAL-001", got[0].ID)
	}
	for _, f := range got {
		if strings.HasPrefix(f.ID, "FAKE") {
			t.Errorf("fenced heading leaked into output: %s", f.ID)
		}
	}
}

func TestExtract_EmptyAndNoMatch(t *testing.T) {
	for _, content := range []string{"", "   \n", "No findings today.\n\nCOMPLETE: 0 BLOCKER, 0 HIGH, 0 MEDIUM, 0 LOW"} {
		got := Extract(content)
		if got == nil {
			t.Errorf("Extract(%q) returned nil, want empty slice", content)
		}
		if len(got) != 0 {
			t.Errorf("Extract(%q) = %d findings, want 0", content, len(got))
		}
	}
}

func TestExtract_NoIssueTextOmitsField(t *testing.T) {
	content := "### OPS-001: Bare heading [LOW]\n**Location:** `src/`\n"
	got := Extract(content)
	if len(got) != 1 {
		t.Fatalf("got %d findings, want 1", len(got))
	}
	if got[0].Issue != "" {
		t.Errorf("Issue = %q, want empty", got[0].Issue)
	}
	if got[0].File != "src/" {
		t.Errorf("File = %q, want src/", got[0].File)
	}
}

func TestSummaryMatchesFindings(t *testing.T) {
	inputs := []string{
		sampleReview,
		"",
		"### A-1: one [LOW]\n### A-2: two [LOW]\n### A-3: three [HIGH]\n",
		"### X-1: only [BLOCKER]",
	}
	for _, in := range inputs {
		r := ParseMarkdown(in, Meta{AgentKey: "guardian"})
		if r.Summary.Total != len(r.Findings) {
			t.Errorf("Total = %d, len(findings) = %d", r.Summary.Total, len(r.Findings))
		}
		for _, sev := range Severities {
			n := 0
			for _, f := range r.Findings {
				if f.Severity == sev {
					n++
				}
			}
			if r.Summary.Count(sev) != n {
				t.Errorf("Count(%s) = %d, want %d", sev, r.Summary.Count(sev), n)
			}
		}
	}
}

func TestParseMarkdown_Meta(t *testing.T) {
	r := ParseMarkdown(sampleReview, Meta{
		AgentKey:    "guardian",
		AgentRole:   "Security",
		Timestamp:   "2026-01-02T03:04:05",
		Project:     "demo",
		ProjectPath: "/tmp/demo",
		Duration:    1234567 * time.Microsecond,
		Tokens:      map[string]int{"Input": 10, "Output": 20, "CacheRead": 5},
		DryRun:      true,
	})

	if r.Version != FormatVersion {
		t.Errorf("Version = %q", r.Version)
	}
	if r.Agent.Name != "GUARDIAN" {
		t.Errorf("Agent.Name = %q, want GUARDIAN", r.Agent.Name)
	}
	if r.Agent.Tier != "primary" {
		t.Errorf("Agent.Tier = %q, want primary", r.Agent.Tier)
	}
	if r.Run.DurationSeconds != 1.23 {
		t.Errorf("DurationSeconds = %v, want 1.23", r.Run.DurationSeconds)
	}
	if r.Status != StatusComplete {
		t.Errorf("Status = %q", r.Status)
	}
	if r.Tokens == nil || r.Tokens.Input != 10 || r.Tokens.Output != 20 || r.Tokens.CacheRead != 5 {
		t.Errorf("Tokens = %+v", r.Tokens)
	}
	if r.RawMarkdown != sampleReview {
		t.Error("RawMarkdown not preserved")
	}
	if !r.Run.DryRun {
		t.Error("DryRun not set")
	}
}

func TestNormalizeTokens(t *testing.T) {
	if NormalizeTokens(nil) != nil {
		t.Error("nil map should yield nil tokens")
	}
	got := NormalizeTokens(map[string]int{"input": 1, "output": 2, "cacheWrite": 3})
	if got.Input != 1 || got.Output != 2 || got.CacheWrite != 3 {
		t.Errorf("camelCase = %+v", got)
	}
	got = NormalizeTokens(map[string]int{"Input": 4, "Output": 5, "CacheWrite": 6})
	if got.Input != 4 || got.Output != 5 || got.CacheWrite != 6 {
		t.Errorf("PascalCase = %+v", got)
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityBlocker, SeverityHigh, SeverityMedium, SeverityLow, "UNKNOWN"}
	for i := 1; i < len(order); i++ {
		if SeverityRank(order[i-1]) >= SeverityRank(order[i]) {
			t.Errorf("rank(%s) should be below rank(%s)", order[i-1], order[i])
		}
	}
}
