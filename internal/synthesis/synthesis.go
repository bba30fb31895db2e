package synthesis

import (
	"sort"
	"time"

	"github.com/dshills/conclave/internal/compliance"
	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/validator"
)

// Verdict is the release decision.
type Verdict string

const (
	VerdictShip        Verdict = "SHIP"
	VerdictConditional Verdict = "CONDITIONAL"
	VerdictHold        Verdict = "HOLD"
)

// conditionalHighThreshold is the HIGH count a release may carry and still ship.
const conditionalHighThreshold = 3

// Label is the short status shown next to the verdict in reports.
func (v Verdict) Label() string {
	switch v {
	case VerdictShip:
		return "PASS"
	case VerdictConditional:
		return "REVIEW"
	case VerdictHold:
		return "FAIL"
	}
	return "?"
}

// Codes maps verdicts to process exit codes.
type Codes struct {
	Ship        int
	Conditional int
	Hold        int
}

// DefaultCodes are the standard verdict exit codes.
var DefaultCodes = Codes{Ship: 0, Conditional: 2, Hold: 1}

// For returns the exit code for v.
func (c Codes) For(v Verdict) int {
	switch v {
	case VerdictHold:
		return c.Hold
	case VerdictConditional:
		return c.Conditional
	}
	return c.Ship
}

// ExitCode returns the default exit code for v.
func ExitCode(v Verdict) int {
	return DefaultCodes.For(v)
}

// Decide classifies aggregate counts.
func Decide(total findings.Summary) Verdict {
	switch {
	case total.Blockers > 0:
		return VerdictHold
	case total.High > conditionalHighThreshold:
		return VerdictConditional
	}
	return VerdictShip
}

// Evaluate returns the verdict across results.
func Evaluate(results []*findings.AgentResult) Verdict {
	return Decide(Totals(results))
}

// Totals sums every result's summary. Nil results are skipped.
func Totals(results []*findings.AgentResult) findings.Summary {
	var total findings.Summary
	for _, r := range results {
		if r != nil {
			total.Add(r.Summary)
		}
	}
	return total
}

// Entry is a finding with the agent that raised it.
type Entry struct {
	Agent string `json:"agent"`
	findings.Finding
}

// Sorted flattens every finding, most severe first. Order within a
// severity follows agent order then finding order.
func Sorted(results []*findings.AgentResult) []Entry {
	var out []Entry
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, f := range r.Findings {
			out = append(out, Entry{Agent: r.Agent.ID, Finding: f})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return findings.SeverityRank(out[i].Severity) < findings.SeverityRank(out[j].Severity)
	})
	return out
}

// Meta is the run information a report carries.
type Meta struct {
	RunID       string
	Project     string
	ProjectPath string
	Provider    string
	Standard    string
	DryRun      bool
	Duration    time.Duration
	Timestamp   time.Time
	Version     string

	// Codes overrides DefaultCodes when set.
	Codes *Codes

	Validation *validator.Stats
	Compliance *compliance.Mapping
}

// Report is everything the output writers render.
type Report struct {
	Meta
	Verdict  Verdict
	ExitCode int
	Totals   findings.Summary
	Agents   []*findings.AgentResult
	Findings []Entry
}

// Build assembles a report from results.
func Build(results []*findings.AgentResult, meta Meta) *Report {
	var agents []*findings.AgentResult
	for _, r := range results {
		if r != nil {
			agents = append(agents, r)
		}
	}
	totals := Totals(agents)
	v := Decide(totals)
	codes := DefaultCodes
	if meta.Codes != nil {
		codes = *meta.Codes
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	return &Report{
		Meta:     meta,
		Verdict:  v,
		ExitCode: codes.For(v),
		Totals:   totals,
		Agents:   agents,
		Findings: Sorted(agents),
	}
}

// ProjectName returns the project name, or its path when unnamed.
func (r *Report) ProjectName() string {
	if r.Project != "" {
		return r.Project
	}
	return r.ProjectPath
}
