package findings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by LookupLatest when no working file has the finding.
var ErrNotFound = errors.New("finding not found")

// Working file names inside a reviews directory.
const (
	ReportFile    = "RELEASE-READINESS-REPORT.md"
	JUnitFile     = "conclave-results.xml"
	ValidatorFile = "validator-output.md"
	ArchiveDir    = "archive"
)

// MarkdownPath is where an agent's raw markdown is saved.
func MarkdownPath(reviewsDir, agentKey string) string {
	return filepath.Join(reviewsDir, agentKey+"-findings.md")
}

// JSONPath is where an agent's structured result is saved.
func JSONPath(reviewsDir, agentKey string) string {
	return filepath.Join(reviewsDir, agentKey+"-findings.json")
}

// WriteJSON persists r as indented JSON.
func WriteJSON(path string, r *AgentResult) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling findings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating findings dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing findings: %w", err)
	}
	return nil
}

// ReadJSON loads a result written by WriteJSON.
func ReadJSON(path string) (*AgentResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r AgentResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// Located is a finding together with the agent whose working file held it.
type Located struct {
	Finding
	Agent string
}

// LookupLatest searches the working *-findings.json files for id, ignoring
// case. Files that fail to parse are skipped.
func LookupLatest(reviewsDir, id string) (*Located, error) {
	matches, err := filepath.Glob(filepath.Join(reviewsDir, "*-findings.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for _, path := range matches {
		r, err := ReadJSON(path)
		if err != nil {
			continue
		}
		agent := r.Agent.ID
		if agent == "" {
			agent = strings.TrimSuffix(filepath.Base(path), "-findings.json")
		}
		for _, f := range r.Findings {
			if strings.EqualFold(f.ID, id) {
				return &Located{Finding: f, Agent: agent}, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// LoadWorking reads every working *-findings.json, ordered by the position
// of each agent key in order. Keys not in order sort last by name. Files that
// fail to parse are skipped.
func LoadWorking(reviewsDir string, order []string) ([]*AgentResult, error) {
	matches, err := filepath.Glob(filepath.Join(reviewsDir, "*-findings.json"))
	if err != nil {
		return nil, err
	}
	rank := func(key string) int {
		for i, k := range order {
			if k == key {
				return i
			}
		}
		return len(order)
	}
	var results []*AgentResult
	for _, path := range matches {
		r, err := ReadJSON(path)
		if err != nil {
			continue
		}
		if r.Agent.ID == "" {
			r.Agent.ID = strings.TrimSuffix(filepath.Base(path), "-findings.json")
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := rank(results[i].Agent.ID), rank(results[j].Agent.ID)
		if ri != rj {
			return ri < rj
		}
		return results[i].Agent.ID < results[j].Agent.ID
	})
	return results, nil
}

// RemoveWorking deletes the previous run's working files. The archive is kept.
func RemoveWorking(reviewsDir string) error {
	var targets []string
	for _, pattern := range []string{"*-findings.json", "*-findings.md"} {
		m, err := filepath.Glob(filepath.Join(reviewsDir, pattern))
		if err != nil {
			return err
		}
		targets = append(targets, m...)
	}
	for _, name := range []string{ReportFile, JUnitFile, ValidatorFile} {
		targets = append(targets, filepath.Join(reviewsDir, name))
	}
	for _, path := range targets {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// ArchiveMeta describes the run being archived.
type ArchiveMeta struct {
	RunID           string
	Timestamp       time.Time
	Project         string
	ProjectPath     string
	Duration        time.Duration
	DryRun          bool
	BaseBranch      string
	Standard        string
	Provider        string
	AgentsRequested []string
	Verdict         string
	ExitCode        int
}

// ArchiveRun is the run block of an archive record.
type ArchiveRun struct {
	ID              string   `json:"id"`
	RunID           string   `json:"runId,omitempty"`
	Timestamp       string   `json:"timestamp"`
	Project         string   `json:"project"`
	ProjectPath     string   `json:"projectPath"`
	DurationSeconds float64  `json:"durationSeconds"`
	DryRun          bool     `json:"dryRun"`
	BaseBranch      string   `json:"baseBranch,omitempty"`
	Standard        string   `json:"standard,omitempty"`
	Provider        string   `json:"provider"`
	AgentsRequested []string `json:"agentsRequested"`
}

// Archive is the per-run snapshot stored under reviews/archive.
type Archive struct {
	Run      ArchiveRun              `json:"run"`
	Verdict  string                  `json:"verdict"`
	ExitCode int                     `json:"exitCode"`
	Summary  Summary                 `json:"summary"`
	Agents   map[string]*AgentResult `json:"agents"`
}

const archiveStamp = "20060102T150405"

// BuildArchive snapshots results. Raw markdown is dropped from the copies.
func BuildArchive(results []*AgentResult, meta ArchiveMeta) *Archive {
	a := &Archive{
		Run: ArchiveRun{
			ID:              meta.Timestamp.Format(archiveStamp),
			RunID:           meta.RunID,
			Timestamp:       meta.Timestamp.Format(time.RFC3339),
			Project:         meta.Project,
			ProjectPath:     meta.ProjectPath,
			DurationSeconds: RoundSeconds(meta.Duration),
			DryRun:          meta.DryRun,
			BaseBranch:      meta.BaseBranch,
			Standard:        meta.Standard,
			Provider:        meta.Provider,
			AgentsRequested: meta.AgentsRequested,
		},
		Verdict:  meta.Verdict,
		ExitCode: meta.ExitCode,
		Agents:   make(map[string]*AgentResult, len(results)),
	}
	if a.Run.AgentsRequested == nil {
		a.Run.AgentsRequested = []string{}
	}
	for _, r := range results {
		stripped := *r
		stripped.RawMarkdown = ""
		a.Summary.Add(r.Summary)
		a.Agents[r.Agent.ID] = &stripped
	}
	return a
}

// WriteArchive writes the snapshot to reviews/archive/<timestamp>.json and
// returns its path.
func WriteArchive(reviewsDir string, results []*AgentResult, meta ArchiveMeta) (string, error) {
	dir := filepath.Join(reviewsDir, ArchiveDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}
	a := BuildArchive(results, meta)
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling archive: %w", err)
	}
	path := filepath.Join(dir, a.Run.ID+".json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	return path, nil
}
