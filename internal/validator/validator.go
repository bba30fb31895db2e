package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/metrics"
	"github.com/dshills/conclave/internal/providers"
	"github.com/dshills/conclave/internal/redact"
)

// Item is one finding queued for validation.
type Item struct {
	Agent          string
	FindingID      string
	Title          string
	Severity       findings.Severity
	File           string
	Line           int
	Issue          string
	Evidence       string
	Recommendation string
}

// Collect gathers every BLOCKER and HIGH finding, in agent order then
// finding order.
func Collect(results []*findings.AgentResult) []Item {
	var items []Item
	for _, r := range results {
		for _, f := range r.Findings {
			if !onWorklist(f.Severity) {
				continue
			}
			items = append(items, Item{
				Agent:          r.Agent.ID,
				FindingID:      f.ID,
				Title:          f.Title,
				Severity:       f.Severity,
				File:           f.File,
				Line:           f.Line,
				Issue:          f.Issue,
				Evidence:       f.Evidence,
				Recommendation: f.Recommendation,
			})
		}
	}
	return items
}

func onWorklist(s findings.Severity) bool {
	return s == findings.SeverityBlocker || s == findings.SeverityHigh
}

// Agents returns the distinct agents on the worklist in first-seen order.
func Agents(items []Item) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if !seen[it.Agent] {
			seen[it.Agent] = true
			out = append(out, it.Agent)
		}
	}
	return out
}

// SystemPrompt prefixes the validator instructions with its persona.
func SystemPrompt(instructions string) string {
	return "You are VALIDATOR, the finding validation specialist.\n\n" + instructions
}

// BuildPrompt renders the worklist and calibration context as the
// validator's user prompt.
func BuildPrompt(items []Item, calibration string) string {
	parts := []string{
		"# FINDINGS TO VALIDATE\n",
		"Validate each BLOCKER and HIGH finding below. Follow the 5-step decision tree from your instructions.\n",
	}
	for _, it := range items {
		parts = append(parts,
			fmt.Sprintf("## %s: %s [%s]", it.FindingID, it.Title, it.Severity),
			"**Agent:** "+strings.ToUpper(it.Agent),
		)
		if it.File != "" {
			loc := it.File
			if it.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, it.Line)
			}
			parts = append(parts, "**Location:** `"+loc+"`")
		}
		if it.Issue != "" {
			parts = append(parts, "**Description:** "+it.Issue)
		}
		if it.Evidence != "" {
			parts = append(parts, "**Evidence:**\n```\n"+it.Evidence+"\n```")
		}
		if it.Recommendation != "" {
			parts = append(parts, "**Recommendation:** "+it.Recommendation)
		}
		parts = append(parts, "")
	}
	if calibration != "" {
		parts = append(parts, calibration)
	}
	parts = append(parts, "\nValidate each finding above and output your assessment. "+
		"End with: VALIDATION COMPLETE: X confirmed, Y downgraded, Z rejected out of N total")
	return strings.Join(parts, "\n")
}

// Adjustment is one parsed validator decision.
type Adjustment struct {
	FindingID string
	Original  findings.Severity
	Adjusted  findings.Severity
	Decision  string
	Reason    string
}

var (
	blockRe = regexp.MustCompile(`(?i)###\s+VALIDATE:\s+(\S+)\s*(?:-|\x{2012}|\x{2013}|\x{2014}|\x{2015}|\x{2212})\s*` +
		`(BLOCKER|HIGH|MEDIUM|LOW)\s*(?:->|=>|\x{2192}|\x{21D2}|\x{27F6}|\x{2794}|\x{279C})\s*(BLOCKER|HIGH|MEDIUM|LOW|REJECTED)`)
	reasonRe = regexp.MustCompile(`(?s)\*\*Reason:\*\*\s*(.+?)(?:\n\n|\n###|\z)`)
)

// Parse extracts every VALIDATE block from content. A block's reason is
// only looked for before the next block starts.
func Parse(content string) []Adjustment {
	matches := blockRe.FindAllStringSubmatchIndex(content, -1)
	adjs := make([]Adjustment, 0, len(matches))
	for i, m := range matches {
		original := findings.Severity(strings.ToUpper(content[m[4]:m[5]]))
		adjusted := findings.Severity(strings.ToUpper(content[m[6]:m[7]]))

		decision := findings.DecisionDowngraded
		switch {
		case adjusted == findings.SeverityRejected:
			decision = findings.DecisionRejected
		case adjusted == original:
			decision = findings.DecisionConfirmed
		}

		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		reason := ""
		if rm := reasonRe.FindStringSubmatch(content[m[1]:end]); rm != nil {
			reason = strings.TrimSpace(rm[1])
		}

		adjs = append(adjs, Adjustment{
			FindingID: content[m[2]:m[3]],
			Original:  original,
			Adjusted:  adjusted,
			Decision:  decision,
			Reason:    reason,
		})
	}
	return adjs
}

// Stats summarizes one validation pass. Fallback marks the implicit
// confirmation path; Reason says why it was taken.
type Stats struct {
	Confirmed   int    `json:"confirmed"`
	Downgraded  int    `json:"downgraded"`
	Rejected    int    `json:"rejected"`
	Unaddressed int    `json:"unaddressed"`
	Total       int    `json:"total"`
	Fallback    bool   `json:"fallback,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Changed reports whether any finding's severity or membership changed.
func (s Stats) Changed() bool {
	return s.Downgraded > 0 || s.Rejected > 0
}

func implicit(n int, reason string) Stats {
	return Stats{Confirmed: n, Total: n, Fallback: true, Reason: reason}
}

// Apply writes adjustments onto results. Only findings still at BLOCKER or
// HIGH whose ID is on the worklist are touched; when an ID appears more than
// once in adjs the last decision wins. Rejected findings move to the
// result's Rejected list. Every result is recounted.
func Apply(results []*findings.AgentResult, items []Item, adjs []Adjustment) Stats {
	queued := make(map[string]bool, len(items))
	for _, it := range items {
		queued[strings.ToUpper(it.FindingID)] = true
	}
	byID := make(map[string]Adjustment, len(adjs))
	for _, a := range adjs {
		byID[strings.ToUpper(a.FindingID)] = a
	}

	stats := Stats{Total: len(items)}
	for _, r := range results {
		kept := make([]findings.Finding, 0, len(r.Findings))
		for _, f := range r.Findings {
			id := strings.ToUpper(f.ID)
			a, ok := byID[id]
			if !ok || !queued[id] || !onWorklist(f.Severity) {
				if queued[id] && onWorklist(f.Severity) {
					stats.Unaddressed++
				}
				kept = append(kept, f)
				continue
			}
			switch a.Decision {
			case findings.DecisionRejected:
				stats.Rejected++
				f.OriginalSeverity = f.Severity
				f.Severity = findings.SeverityRejected
				f.Validated = findings.DecisionRejected
				f.ValidationReason = a.Reason
				r.Rejected = append(r.Rejected, f)
				continue
			case findings.DecisionDowngraded:
				stats.Downgraded++
				f.OriginalSeverity = f.Severity
				f.Severity = a.Adjusted
				f.Validated = findings.DecisionDowngraded
				f.ValidationReason = a.Reason
			default:
				stats.Confirmed++
				f.Validated = findings.DecisionConfirmed
				f.ValidationReason = a.Reason
			}
			kept = append(kept, f)
		}
		r.Findings = kept
		r.Recount()
	}
	return stats
}

// Options configures Run.
type Options struct {
	// Instructions is the validator instruction markdown.
	Instructions string
	// Calibration returns prompt context for one agent, or "".
	Calibration func(agent string) string
	// SharedContext is the project context every agent saw.
	SharedContext string
	// CacheShared sends SharedContext as a separate cacheable block.
	CacheShared bool
	// DryRun confirms the worklist without calling the provider.
	DryRun bool
	Logger *zap.SugaredLogger
}

// Result is the outcome of Run. Raw holds the provider's response, if any.
type Result struct {
	Stats    Stats
	Items    int
	Raw      string
	Duration time.Duration
}

// Skipped reports whether there was nothing to validate.
func (r *Result) Skipped() bool { return r.Items == 0 }

// Run validates every BLOCKER and HIGH finding in results through p and
// applies the decisions in place. It never returns an error.
func Run(ctx context.Context, p providers.Provider, results []*findings.AgentResult, opts Options) *Result {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	items := Collect(results)
	res := &Result{Items: len(items)}
	if len(items) == 0 {
		return res
	}
	if opts.DryRun || p == nil {
		res.Stats = implicit(len(items), "dry run")
		metrics.ObserveValidation(findings.DecisionConfirmed, len(items))
		return res
	}

	start := time.Now()
	var calibration []string
	if opts.Calibration != nil {
		for _, agent := range Agents(items) {
			if c := opts.Calibration(agent); c != "" {
				calibration = append(calibration, c)
			}
		}
	}

	req := providers.Request{
		SharedContext: opts.SharedContext,
		SystemPrompt:  SystemPrompt(opts.Instructions),
		UserPrompt:    BuildPrompt(items, strings.Join(calibration, "\n\n")),
		Tier:          providers.TierPrimary,
	}
	if !opts.CacheShared {
		req = req.Inline()
	}

	resp, err := p.Complete(ctx, req)
	res.Duration = time.Since(start)
	if err != nil {
		reason := redact.SanitizeError(err.Error())
		log.Warnw("validator call failed, keeping original findings", "error", reason)
		res.Stats = implicit(len(items), reason)
		metrics.ObserveValidation(findings.DecisionConfirmed, len(items))
		return res
	}
	res.Raw = resp.Content

	adjs := Parse(resp.Content)
	if len(adjs) == 0 {
		if strings.TrimSpace(resp.Content) != "" {
			log.Warnw("validator produced output but no parsable adjustments", "items", len(items))
		}
		res.Stats = implicit(len(items), "no parsable adjustments")
		metrics.ObserveValidation(findings.DecisionConfirmed, len(items))
		return res
	}

	res.Stats = Apply(results, items, adjs)
	metrics.ObserveValidation(findings.DecisionConfirmed, res.Stats.Confirmed)
	metrics.ObserveValidation(findings.DecisionDowngraded, res.Stats.Downgraded)
	metrics.ObserveValidation(findings.DecisionRejected, res.Stats.Rejected)
	log.Debugw("validation applied",
		"confirmed", res.Stats.Confirmed,
		"downgraded", res.Stats.Downgraded,
		"rejected", res.Stats.Rejected,
		"unaddressed", res.Stats.Unaddressed,
	)
	return res
}
