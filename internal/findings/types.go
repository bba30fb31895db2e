package findings

import (
	"strconv"
	"strings"
)

// Severity is the impact level an agent assigns to a finding.
type Severity string

const (
	SeverityBlocker Severity = "BLOCKER"
	SeverityHigh    Severity = "HIGH"
	SeverityMedium  Severity = "MEDIUM"
	SeverityLow     Severity = "LOW"

	// SeverityRejected is only ever assigned by the validator.
	SeverityRejected Severity = "REJECTED"
)

// Severities lists the primary severities from most to least severe.
var Severities = []Severity{SeverityBlocker, SeverityHigh, SeverityMedium, SeverityLow}

// SeverityRank orders severities for sorting: BLOCKER < HIGH < MEDIUM < LOW < anything else.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityBlocker:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// ParseSeverity normalizes s to a primary severity. ok is false for anything else.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Severities {
		if sev == known {
			return sev, true
		}
	}
	return "", false
}

// Effort is the rough remediation size an agent estimates.
type Effort string

const (
	EffortSmall  Effort = "S"
	EffortMedium Effort = "M"
	EffortLarge  Effort = "L"
)

// Validation decisions recorded on a finding.
const (
	DecisionConfirmed  = "confirmed"
	DecisionDowngraded = "downgraded"
	DecisionRejected   = "rejected"
)

// Finding is a single issue extracted from an agent's markdown.
type Finding struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	File           string   `json:"file,omitempty"`
	Line           int      `json:"line,omitempty"`
	Effort         Effort   `json:"effort,omitempty"`
	Issue          string   `json:"issue,omitempty"`
	Evidence       string   `json:"evidence,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`

	OriginalSeverity Severity `json:"originalSeverity,omitempty"`
	Validated        string   `json:"validated,omitempty"`
	ValidationReason string   `json:"validationReason,omitempty"`
}

// Location renders file and line as "path:line", or just the path.
func (f Finding) Location() string {
	if f.File == "" {
		return ""
	}
	if f.Line > 0 {
		return f.File + ":" + strconv.Itoa(f.Line)
	}
	return f.File
}

// Summary counts findings per severity.
type Summary struct {
	Blockers int `json:"blockers"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add accumulates other into s.
func (s *Summary) Add(other Summary) {
	s.Blockers += other.Blockers
	s.High += other.High
	s.Medium += other.Medium
	s.Low += other.Low
	s.Total += other.Total
}

// Count returns the number of findings with severity sev.
func (s Summary) Count(sev Severity) int {
	switch sev {
	case SeverityBlocker:
		return s.Blockers
	case SeverityHigh:
		return s.High
	case SeverityMedium:
		return s.Medium
	case SeverityLow:
		return s.Low
	}
	return 0
}

// Summarize recounts findings from scratch. Total always equals len(list).
func Summarize(list []Finding) Summary {
	s := Summary{Total: len(list)}
	for _, f := range list {
		switch f.Severity {
		case SeverityBlocker:
			s.Blockers++
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
	}
	return s
}

// Tokens is normalized token usage for one agent call.
type Tokens struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cacheRead,omitempty"`
	CacheWrite int `json:"cacheWrite,omitempty"`
}

// NormalizeTokens accepts camelCase or PascalCase keys. It returns nil when
// raw carries no counts.
func NormalizeTokens(raw map[string]int) *Tokens {
	if len(raw) == 0 {
		return nil
	}
	pick := func(keys ...string) int {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				return v
			}
		}
		return 0
	}
	return &Tokens{
		Input:      pick("input", "Input"),
		Output:     pick("output", "Output"),
		CacheRead:  pick("cacheRead", "CacheRead"),
		CacheWrite: pick("cacheWrite", "CacheWrite"),
	}
}

// AgentInfo identifies the agent that produced a result.
type AgentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	Tier string `json:"tier"`
}

// RunInfo describes the run an agent result belongs to.
type RunInfo struct {
	Timestamp       string  `json:"timestamp"`
	Project         string  `json:"project"`
	ProjectPath     string  `json:"projectPath"`
	DurationSeconds float64 `json:"durationSeconds"`
	DryRun          bool    `json:"dryRun"`
}

// Result statuses.
const (
	StatusComplete = "complete"
	StatusError    = "error"
)

// AgentResult is one agent's output for one run. Summary must always match
// Findings; Rejected holds validator-rejected findings for audit and is never
// counted.
type AgentResult struct {
	Version     string    `json:"version"`
	Agent       AgentInfo `json:"agent"`
	Run         RunInfo   `json:"run"`
	Status      string    `json:"status"`
	Summary     Summary   `json:"summary"`
	Findings    []Finding `json:"findings"`
	Rejected    []Finding `json:"rejected,omitempty"`
	RawMarkdown string    `json:"rawMarkdown,omitempty"`
	Tokens      *Tokens   `json:"tokens,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Recount rebuilds the summary from the current findings list.
func (r *AgentResult) Recount() {
	r.Summary = Summarize(r.Findings)
}
