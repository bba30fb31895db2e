// Package findings turns an agent's free-text markdown into structured
// findings and persists them.
//
// The grammar is a single heading form, "### ID: Title [SEVERITY]", followed
// by optional labelled fields (Location/File, Line, Effort) and prose sections
// (Issue, Evidence, Recommendation or Remediation). Every field extractor is
// independent and optional; malformed input degrades to fewer findings rather
// than an error. Headings inside fenced code blocks are ignored.
//
// The package also owns the on-disk formats: per-agent JSON results, the
// per-run archive record, and lookup of a finding by ID in the latest working
// files.
package findings
