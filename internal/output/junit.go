package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dshills/conclave/internal/findings"
	"github.com/dshills/conclave/internal/synthesis"
)

// DefaultFailOn is the severity set reported as JUnit failures.
var DefaultFailOn = []findings.Severity{findings.SeverityBlocker, findings.SeverityHigh}

// JUnitSuites is the <testsuites> root.
type JUnitSuites struct {
	XMLName   xml.Name     `xml:"testsuites"`
	Name      string       `xml:"name,attr"`
	Timestamp string       `xml:"timestamp,attr"`
	Tests     int          `xml:"tests,attr"`
	Failures  int          `xml:"failures,attr"`
	Errors    int          `xml:"errors,attr"`
	Time      string       `xml:"time,attr,omitempty"`
	Suites    []JUnitSuite `xml:"testsuite"`
}

// JUnitSuite holds one agent's findings.
type JUnitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Cases    []JUnitCase `xml:"testcase"`
}

// JUnitCase is one finding.
type JUnitCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	File      string        `xml:"file,attr,omitempty"`
	Line      string        `xml:"line,attr,omitempty"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

// JUnitFailure marks a finding whose severity is in the fail set.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Text    string `xml:",chardata"`
}

// BuildJUnit converts a report to JUnit suites. Agents without findings get
// no suite. An empty failOn means DefaultFailOn.
func BuildJUnit(r *synthesis.Report, failOn []findings.Severity) *JUnitSuites {
	if len(failOn) == 0 {
		failOn = DefaultFailOn
	}
	fail := make(map[findings.Severity]bool, len(failOn))
	for _, s := range failOn {
		fail[s] = true
	}

	root := &JUnitSuites{
		Name:      r.ProjectName(),
		Timestamp: r.Timestamp.Format("2006-01-02T15:04:05"),
	}
	if root.Name == "" {
		root.Name = "Code Conclave"
	}
	if secs := r.Duration.Seconds(); secs > 0 {
		root.Time = strconv.FormatFloat(secs, 'f', 2, 64)
	}

	for _, a := range r.Agents {
		if len(a.Findings) == 0 {
			continue
		}
		name := strings.ToUpper(a.Agent.ID)
		suite := JUnitSuite{Name: name, Tests: len(a.Findings)}
		for _, f := range a.Findings {
			tc := JUnitCase{
				Name:      fmt.Sprintf("%s: %s", f.ID, f.Title),
				ClassName: name,
				File:      f.File,
			}
			if f.Line > 0 {
				tc.Line = strconv.Itoa(f.Line)
			}
			if fail[f.Severity] {
				suite.Failures++
				tc.Failure = &JUnitFailure{
					Message: fmt.Sprintf("[%s] %s", f.Severity, f.Title),
					Type:    strings.ToLower(string(f.Severity)),
					Text:    failureText(f),
				}
			}
			suite.Cases = append(suite.Cases, tc)
		}
		root.Tests += suite.Tests
		root.Failures += suite.Failures
		root.Suites = append(root.Suites, suite)
	}
	return root
}

func failureText(f findings.Finding) string {
	parts := []string{"Severity: " + string(f.Severity)}
	if f.File != "" {
		parts = append(parts, "File: "+f.File)
	}
	if f.Line > 0 {
		parts = append(parts, "Line: "+strconv.Itoa(f.Line))
	}
	if f.Issue != "" {
		parts = append(parts, "\nDescription:\n"+f.Issue)
	}
	if f.Recommendation != "" {
		parts = append(parts, "\nRemediation:\n"+f.Recommendation)
	}
	return strings.Join(parts, "\n")
}

// JUnitWriter outputs conclave-results.xml.
type JUnitWriter struct {
	FailOn []findings.Severity
}

func (j *JUnitWriter) Write(w io.Writer, r *synthesis.Report) error {
	data, err := xml.MarshalIndent(BuildJUnit(r, j.FailOn), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing JUnit XML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing JUnit XML: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// ParseFailOn converts configured severity names, dropping unknown ones.
func ParseFailOn(names []string) []findings.Severity {
	var out []findings.Severity
	for _, n := range names {
		if s, ok := findings.ParseSeverity(n); ok {
			out = append(out, s)
		}
	}
	return out
}
