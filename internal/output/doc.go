// Package output renders a synthesized review for people and CI systems.
//
// Four formats are supported:
//   - markdown: the release readiness report saved next to the findings
//   - json: the archive-shaped run record
//   - junit: JUnit XML with one testsuite per agent and one testcase per finding
//   - text: a compact terminal summary
//
// Use [GetWriter] to obtain a [Writer] for a given format string, or build a
// writer directly to set its options. [WriteFile] handles the destination.
package output
