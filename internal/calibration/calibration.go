package calibration

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Verdicts a human can record against a finding.
const (
	VerdictConfirmed     = "confirmed"
	VerdictFalsePositive = "false_positive"
	VerdictAdjusted      = "adjusted"
)

// ApplyToAll scopes a project rule to every agent.
const ApplyToAll = "all"

// Prompt sampling limits, most recent entries first.
const (
	maxFalsePositives = 10
	maxAdjusted       = 10
	maxConfirmed      = 5
)

// ReviewedFinding is a human judgment on a past finding. A later entry with
// the same FindingID replaces the earlier one.
type ReviewedFinding struct {
	FindingID        string `yaml:"finding_id"`
	Agent            string `yaml:"agent"`
	Title            string `yaml:"title"`
	File             string `yaml:"file"`
	OriginalSeverity string `yaml:"original_severity"`
	AdjustedSeverity string `yaml:"adjusted_severity"`
	Verdict          string `yaml:"verdict"`
	Reason           string `yaml:"reason"`
	ReviewedAt       string `yaml:"reviewed_at"`
}

// ProjectRule is a standing instruction for one agent or all of them.
type ProjectRule struct {
	Rule        string `yaml:"rule"`
	AppliesTo   string `yaml:"applies_to"`
	SeverityCap string `yaml:"severity_cap,omitempty"`
	AddedAt     string `yaml:"added_at"`
}

// Data is the content of calibration.yaml.
type Data struct {
	ReviewedFindings []ReviewedFinding `yaml:"reviewed_findings"`
	ProjectRules     []ProjectRule     `yaml:"project_rules"`
}

// Store reads and writes one project's calibration file. It assumes a single
// writer; concurrent writers race and the last one wins.
type Store struct {
	path string
	now  func() time.Time
}

// New returns a store backed by the file at path.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load reads the calibration file. A missing file is empty data.
func (s *Store) Load() (*Data, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Data{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading calibration: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing calibration: %w", err)
	}
	return &d, nil
}

// Save writes d, creating the parent directory if needed.
func (s *Store) Save(d *Data) error {
	if d.ReviewedFindings == nil {
		d.ReviewedFindings = []ReviewedFinding{}
	}
	if d.ProjectRules == nil {
		d.ProjectRules = []ProjectRule{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding calibration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding calibration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating calibration dir: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing calibration: %w", err)
	}
	return nil
}

// AddReviewedFinding records e, replacing any entry with the same finding ID.
// Severities are upper-cased and the review date is stamped.
func (s *Store) AddReviewedFinding(e ReviewedFinding) (ReviewedFinding, error) {
	d, err := s.Load()
	if err != nil {
		return ReviewedFinding{}, err
	}

	e.OriginalSeverity = strings.ToUpper(e.OriginalSeverity)
	e.AdjustedSeverity = strings.ToUpper(e.AdjustedSeverity)
	e.ReviewedAt = s.now().Format(time.DateOnly)

	kept := d.ReviewedFindings[:0]
	for _, existing := range d.ReviewedFindings {
		if existing.FindingID != e.FindingID {
			kept = append(kept, existing)
		}
	}
	d.ReviewedFindings = append(kept, e)

	if err := s.Save(d); err != nil {
		return ReviewedFinding{}, err
	}
	return e, nil
}

// AddProjectRule appends r. Rules are never deduplicated.
func (s *Store) AddProjectRule(r ProjectRule) (ProjectRule, error) {
	d, err := s.Load()
	if err != nil {
		return ProjectRule{}, err
	}

	if r.AppliesTo == "" {
		r.AppliesTo = ApplyToAll
	}
	r.AppliesTo = strings.ToLower(r.AppliesTo)
	r.SeverityCap = strings.ToUpper(r.SeverityCap)
	r.AddedAt = s.now().Format(time.DateOnly)

	d.ProjectRules = append(d.ProjectRules, r)
	if err := s.Save(d); err != nil {
		return ProjectRule{}, err
	}
	return r, nil
}

// Context loads the file and renders the prompt section for agent.
func (s *Store) Context(agent string) (string, error) {
	d, err := s.Load()
	if err != nil {
		return "", err
	}
	return d.Context(agent), nil
}

// Context renders the rules and recent human judgments relevant to agent as
// a markdown prompt section. It returns "" when nothing applies.
func (d *Data) Context(agent string) string {
	var lines []string

	var rules []ProjectRule
	for _, r := range d.ProjectRules {
		scope := r.AppliesTo
		if scope == "" {
			scope = ApplyToAll
		}
		if scope == ApplyToAll || strings.EqualFold(scope, agent) {
			rules = append(rules, r)
		}
	}
	if len(rules) > 0 {
		lines = append(lines,
			"## Project-Specific Rules\n",
			"The following rules have been established for this project:\n",
		)
		for _, r := range rules {
			line := "- " + r.Rule
			if r.SeverityCap != "" {
				line += fmt.Sprintf(" (severity cap: %s)", r.SeverityCap)
			}
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}

	var falsePositives, adjusted, confirmed []ReviewedFinding
	for _, f := range d.ReviewedFindings {
		if !strings.EqualFold(f.Agent, agent) {
			continue
		}
		switch f.Verdict {
		case VerdictFalsePositive:
			falsePositives = append(falsePositives, f)
		case VerdictAdjusted:
			adjusted = append(adjusted, f)
		case VerdictConfirmed:
			confirmed = append(confirmed, f)
		}
	}

	if len(falsePositives) > 0 {
		lines = append(lines,
			"## Previous False Positives (DO NOT repeat these)\n",
			"These findings were previously flagged but a human reviewer determined they were false positives. Do NOT repeat them:\n",
		)
		for _, f := range last(falsePositives, maxFalsePositives) {
			lines = append(lines, fmt.Sprintf("- **%s**: %q at `%s` - was %s, REJECTED because: %s",
				orUnknown(f.FindingID), f.Title, orUnknown(f.File), f.OriginalSeverity, reasonOrDefault(f.Reason)))
		}
		lines = append(lines, "")
	}

	if len(adjusted) > 0 {
		lines = append(lines,
			"## Previous Severity Adjustments (calibrate accordingly)\n",
			"These findings were flagged at the wrong severity. Use these as calibration examples:\n",
		)
		for _, f := range last(adjusted, maxAdjusted) {
			lines = append(lines, fmt.Sprintf("- **%s**: %q at `%s` - was %s, adjusted to %s because: %s",
				orUnknown(f.FindingID), f.Title, orUnknown(f.File), f.OriginalSeverity, f.AdjustedSeverity, reasonOrDefault(f.Reason)))
		}
		lines = append(lines, "")
	}

	if len(confirmed) > 0 {
		lines = append(lines,
			"## Confirmed True Positives (good catches)\n",
			"These were correctly identified. Look for similar patterns:\n",
		)
		for _, f := range last(confirmed, maxConfirmed) {
			lines = append(lines, fmt.Sprintf("- **%s**: %q at `%s` [%s] - confirmed",
				orUnknown(f.FindingID), f.Title, orUnknown(f.File), f.OriginalSeverity))
		}
		lines = append(lines, "")
	}

	if len(lines) == 0 {
		return ""
	}
	return "# CALIBRATION DATA (from previous human reviews)\n\n" + strings.Join(lines, "\n")
}

func last[T any](list []T, n int) []T {
	if len(list) > n {
		return list[len(list)-n:]
	}
	return list
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func reasonOrDefault(s string) string {
	if s == "" {
		return "no reason given"
	}
	return s
}
