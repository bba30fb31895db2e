package compliance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/conclave/internal/findings"
)

// MappingFile is the mapping written next to the report.
const MappingFile = "compliance-mapping.json"

// ErrStandardNotFound is returned by Load when no file declares the id.
var ErrStandardNotFound = errors.New("compliance standard not found")

// Requirement is a control as written in a standard file.
type Requirement struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Agents          []string `yaml:"agents"`
	FindingPatterns []string `yaml:"finding_patterns"`
	Critical        bool     `yaml:"critical"`
}

// Domain groups controls in the domains[] shape.
type Domain struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Controls []Requirement `yaml:"controls"`
}

// Section is a subpart entry; without subsections it is a control itself.
type Section struct {
	Requirement `yaml:",inline"`
	Subsections []Requirement `yaml:"subsections"`
}

// Subpart groups sections in the regulatory shape.
type Subpart struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Sections []Section `yaml:"sections"`
}

// Standard is one parsed standard file.
type Standard struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Domain      string    `yaml:"domain"`
	Version     string    `yaml:"version"`
	Description string    `yaml:"description"`
	Domains     []Domain  `yaml:"domains"`
	Subparts    []Subpart `yaml:"subparts"`

	Path string `yaml:"-"`
}

// Info is the catalog entry for a standard.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Control is a flattened control with its owning domain.
type Control struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DomainID        string   `json:"domain_id"`
	DomainName      string   `json:"domain_name"`
	Agents          []string `json:"agents,omitempty"`
	FindingPatterns []string `json:"finding_patterns,omitempty"`
	Critical        bool     `json:"critical"`
}

func readStandard(path string) (*Standard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var std Standard
	if err := yaml.Unmarshal(data, &std); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	std.Path = path
	return &std, nil
}

// walkStandards visits every parsable *.yaml file under dir that declares an
// id. A missing dir yields nothing.
func walkStandards(dir string, visit func(*Standard) bool) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".yaml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking standards dir: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		std, err := readStandard(f)
		if err != nil || std.ID == "" {
			continue
		}
		if !visit(std) {
			return nil
		}
	}
	return nil
}

// Available lists the standards found under dir, sorted by path.
func Available(dir string) ([]Info, error) {
	var out []Info
	err := walkStandards(dir, func(s *Standard) bool {
		out = append(out, Info{
			ID:          s.ID,
			Name:        s.Name,
			Domain:      s.Domain,
			Version:     s.Version,
			Description: s.Description,
			Path:        s.Path,
		})
		return true
	})
	return out, err
}

// Load returns the first standard under dir whose id matches.
func Load(dir, id string) (*Standard, error) {
	var found *Standard
	err := walkStandards(dir, func(s *Standard) bool {
		if s.ID == id {
			found = s
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrStandardNotFound, id)
	}
	return found, nil
}

func control(r Requirement, domainID, domainName string) Control {
	return Control{
		ID:              r.ID,
		Title:           r.Title,
		DomainID:        domainID,
		DomainName:      domainName,
		Agents:          r.Agents,
		FindingPatterns: r.FindingPatterns,
		Critical:        r.Critical,
	}
}

// Controls flattens every control in the standard.
func (s *Standard) Controls() []Control {
	var out []Control
	for _, d := range s.Domains {
		for _, r := range d.Controls {
			out = append(out, control(r, d.ID, d.Name))
		}
	}
	for _, sp := range s.Subparts {
		for _, sec := range sp.Sections {
			if len(sec.Subsections) == 0 {
				out = append(out, control(sec.Requirement, sp.ID, sp.Name))
				continue
			}
			for _, sub := range sec.Subsections {
				out = append(out, control(sub, sp.ID, sp.Name))
			}
		}
	}
	return out
}

// AgentControls returns the controls that list agent, ignoring case.
func (s *Standard) AgentControls(agent string) []Control {
	agent = strings.ToLower(agent)
	var out []Control
	for _, c := range s.Controls() {
		for _, a := range c.Agents {
			if strings.ToLower(a) == agent {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// MatchPattern reports whether a finding ID satisfies pattern. "*" matches
// any run of characters; patterns without it must match exactly.
func MatchPattern(id, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return id == pattern
	}
	expr := "^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(id)
}

func (c Control) matches(id string) bool {
	for _, p := range c.FindingPatterns {
		if MatchPattern(id, p) {
			return true
		}
	}
	return false
}

// MappedFinding links one finding to the controls it addresses.
type MappedFinding struct {
	FindingID       string   `json:"finding_id"`
	FindingTitle    string   `json:"finding_title"`
	FindingSeverity string   `json:"finding_severity"`
	ControlIDs      []string `json:"control_ids"`
}

// DomainCoverage is the per-domain tally.
type DomainCoverage struct {
	Name      string  `json:"name"`
	Total     int     `json:"total"`
	Addressed int     `json:"addressed"`
	Gaps      int     `json:"gaps"`
	Coverage  float64 `json:"coverage"`
}

// Mapping is the result of Map.
type Mapping struct {
	StandardID        string                    `json:"standard_id"`
	StandardName      string                    `json:"standard_name"`
	Timestamp         string                    `json:"timestamp"`
	TotalControls     int                       `json:"total_controls"`
	AddressedControls int                       `json:"addressed_controls"`
	GappedControls    int                       `json:"gapped_controls"`
	CoveragePercent   float64                   `json:"coverage_percent"`
	ByDomain          map[string]DomainCoverage `json:"by_domain"`
	MappedFindings    []MappedFinding           `json:"mapped_findings"`
	Gaps              []Control                 `json:"gaps"`
	CriticalGaps      []Control                 `json:"critical_gaps"`
}

// DomainIDs returns the ByDomain keys in sorted order.
func (m *Mapping) DomainIDs() []string {
	ids := make([]string, 0, len(m.ByDomain))
	for id := range m.ByDomain {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

// Map matches each finding against the standard's controls and tallies
// coverage. A control is addressed when at least one finding matches it.
func Map(list []findings.Finding, std *Standard, now time.Time) *Mapping {
	controls := std.Controls()
	addressed := map[string]bool{}
	m := &Mapping{
		StandardID:     std.ID,
		StandardName:   std.Name,
		Timestamp:      now.Format("2006-01-02 15:04:05"),
		ByDomain:       map[string]DomainCoverage{},
		MappedFindings: []MappedFinding{},
		Gaps:           []Control{},
		CriticalGaps:   []Control{},
	}

	for _, f := range list {
		var ids []string
		for _, c := range controls {
			if c.matches(f.ID) {
				ids = append(ids, c.ID)
				addressed[c.ID] = true
			}
		}
		if len(ids) > 0 {
			m.MappedFindings = append(m.MappedFindings, MappedFinding{
				FindingID:       f.ID,
				FindingTitle:    f.Title,
				FindingSeverity: string(f.Severity),
				ControlIDs:      ids,
			})
		}
	}

	for _, c := range controls {
		if addressed[c.ID] {
			continue
		}
		m.Gaps = append(m.Gaps, c)
		if c.Critical {
			m.CriticalGaps = append(m.CriticalGaps, c)
		}
	}

	m.TotalControls = len(controls)
	m.AddressedControls = len(addressed)
	m.GappedControls = m.TotalControls - m.AddressedControls
	m.CoveragePercent = percent(m.AddressedControls, m.TotalControls)

	for _, c := range controls {
		d := m.ByDomain[c.DomainID]
		if d.Total == 0 {
			d.Name = c.DomainName
		}
		d.Total++
		if addressed[c.ID] {
			d.Addressed++
		}
		m.ByDomain[c.DomainID] = d
	}
	for id, d := range m.ByDomain {
		d.Gaps = d.Total - d.Addressed
		d.Coverage = percent(d.Addressed, d.Total)
		m.ByDomain[id] = d
	}
	return m
}

// WriteJSON saves m as indented JSON.
func WriteJSON(path string, m *Mapping) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling compliance mapping: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing compliance mapping: %w", err)
	}
	return nil
}
