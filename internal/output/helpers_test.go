package output

import (
	"time"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/synthesis"
)

func sampleReport() *synthesis.Report {
	guardian := &findings.AgentResult{
		Agent:  findings.AgentInfo{ID: "guardian", Name: "GUARDIAN", Role: "Security"},
		Run:    findings.RunInfo{DurationSeconds: 12.34},
		Status: findings.StatusComplete,
		Findings: []findings.Finding{
			{
				ID: "GUARDIAN-001", Title: "SQL injection", Severity: findings.SeverityBlocker,
				File: "db/query.go", Line: 42, Effort: findings.EffortSmall,
				Issue: "User input is concatenated", Evidence: `q := "SELECT " + in`, Recommendation: "Use bind parameters",
			},
			{ID: "GUARDIAN-002", Title: "Verbose errors", Severity: findings.SeverityMedium, File: "api.go"},
		},
	}
	herald := &findings.AgentResult{
		Agent:  findings.AgentInfo{ID: "herald", Name: "HERALD", Role: "Documentation"},
		Status: findings.StatusComplete,
	}
	operator := &findings.AgentResult{
		Agent:  findings.AgentInfo{ID: "operator", Name: "OPERATOR", Role: "Production Readiness"},
		Status: findings.StatusError,
		Error:  "503 | unavailable",
	}
	for _, r := range []*findings.AgentResult{guardian, herald, operator} {
		r.Recount()
	}
	return synthesis.Build([]*findings.AgentResult{guardian, herald, operator}, synthesis.Meta{
		Project:   "demo",
		Provider:  "anthropic",
		Duration:  3 * time.Second,
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Version:   "3.0.0",
	})
}

func emptyReport() *synthesis.Report {
	return synthesis.Build(nil, synthesis.Meta{ProjectPath: "/tmp/empty", DryRun: true, Version: "3.0.0"})
}
