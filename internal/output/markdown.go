package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/synthesis"
)

const timestampLayout = "2006-01-02 15:04:05"

// MarkdownWriter outputs RELEASE-READINESS-REPORT.md.
type MarkdownWriter struct {
	IncludeEvidence    bool
	IncludeRemediation bool
}

func (m *MarkdownWriter) Write(w io.Writer, r *synthesis.Report) error {
	ew := &errWriter{w: w}
	ts := r.Timestamp.Format(timestampLayout)

	ew.println("# Release Readiness Report")
	ew.println("")
	ew.printf("**Project:** %s\n", r.ProjectName())
	ew.printf("**Date:** %s\n", ts)
	ew.printf("**Verdict:** %s (%s)\n", r.Verdict.Label(), r.Verdict)
	if r.Provider != "" {
		ew.printf("**Provider:** %s\n", r.Provider)
	}
	if r.Standard != "" {
		ew.printf("**Standard:** %s\n", r.Standard)
	}
	if r.DryRun {
		ew.println("**Mode:** DRY RUN (mock findings)")
	}
	ew.printf("**Duration:** %.1fs\n", r.Duration.Seconds())
	ew.println("")

	ew.println("## Summary")
	ew.println("")
	ew.println("| Severity | Count |")
	ew.println("|----------|-------|")
	ew.printf("| BLOCKER  | %d |\n", r.Totals.Blockers)
	ew.printf("| HIGH     | %d |\n", r.Totals.High)
	ew.printf("| MEDIUM   | %d |\n", r.Totals.Medium)
	ew.printf("| LOW      | %d |\n", r.Totals.Low)
	ew.printf("| **Total** | **%d** |\n", r.Totals.Total)
	ew.println("")

	ew.println("## Agent Results")
	ew.println("")
	ew.println("| Agent | Role | Findings | Blockers | High | Duration |")
	ew.println("|-------|------|----------|----------|------|----------|")
	for _, a := range r.Agents {
		name := a.Agent.Name
		if name == "" {
			name = strings.ToUpper(a.Agent.ID)
		}
		count := fmt.Sprint(a.Summary.Total)
		if a.Status == findings.StatusError {
			count = "error"
		}
		ew.printf("| %s | %s | %s | %d | %d | %.1fs |\n",
			name, a.Agent.Role, count, a.Summary.Blockers, a.Summary.High, a.Run.DurationSeconds)
	}
	ew.println("")

	if v := r.Validation; v != nil && v.Total > 0 {
		line := fmt.Sprintf("**Validation:** %d confirmed, %d downgraded, %d rejected of %d BLOCKER/HIGH findings",
			v.Confirmed, v.Downgraded, v.Rejected, v.Total)
		if v.Fallback {
			line += fmt.Sprintf(" (implicit: %s)", v.Reason)
		}
		ew.println(line)
		ew.println("")
	}

	if c := r.Compliance; c != nil {
		ew.printf("## Compliance: %s\n", c.StandardName)
		ew.println("")
		ew.printf("**Coverage:** %.1f%% (%d of %d controls addressed)\n", c.CoveragePercent, c.AddressedControls, c.TotalControls)
		ew.println("")
		if len(c.ByDomain) > 0 {
			ew.println("| Domain | Controls | Addressed | Gaps | Coverage |")
			ew.println("|--------|----------|-----------|------|----------|")
			for _, id := range c.DomainIDs() {
				d := c.ByDomain[id]
				ew.printf("| %s %s | %d | %d | %d | %.1f%% |\n", id, d.Name, d.Total, d.Addressed, d.Gaps, d.Coverage)
			}
			ew.println("")
		}
		if len(c.CriticalGaps) > 0 {
			ew.println("**Critical gaps:**")
			for _, g := range c.CriticalGaps {
				ew.printf("- %s: %s\n", g.ID, g.Title)
			}
			ew.println("")
		}
	}

	if len(r.Findings) > 0 {
		ew.println("## Findings Detail")
		ew.println("")
		for _, f := range r.Findings {
			ew.printf("### %s: %s [%s]\n", f.ID, f.Title, f.Severity)
			if loc := f.Location(); loc != "" {
				ew.printf("**Location:** `%s`\n", loc)
			}
			if f.Effort != "" {
				ew.printf("**Effort:** %s\n", f.Effort)
			}
			if f.Validated == findings.DecisionDowngraded {
				ew.printf("**Validated:** downgraded from %s\n", f.OriginalSeverity)
			}
			if f.Issue != "" {
				ew.printf("\n%s\n", f.Issue)
			}
			if m.IncludeEvidence && f.Evidence != "" {
				ew.printf("\n**Evidence:**\n```%s\n%s\n```\n", inferLang(f.File), f.Evidence)
			}
			if m.IncludeRemediation && f.Recommendation != "" {
				ew.printf("\n**Recommendation:** %s\n", f.Recommendation)
			}
			ew.println("")
		}
	}

	ew.println("---")
	ew.printf("*Generated by Code Conclave v%s at %s*\n", r.Version, ts)
	return ew.err
}

func inferLang(path string) string {
	langMap := map[string]string{
		".go":   "go",
		".py":   "python",
		".js":   "javascript",
		".ts":   "typescript",
		".tsx":  "tsx",
		".jsx":  "jsx",
		".rs":   "rust",
		".java": "java",
		".rb":   "ruby",
		".cs":   "csharp",
		".php":  "php",
		".ps1":  "powershell",
		".sql":  "sql",
		".yaml": "yaml",
		".yml":  "yaml",
		".json": "json",
	}
	for ext, lang := range langMap {
		if strings.HasSuffix(path, ext) {
			return lang
		}
	}
	return ""
}
