// Package calibration persists human feedback on past findings and turns it
// into prompt context for future runs.
//
// The store is a single YAML file (.conclave/calibration.yaml) holding
// reviewed findings, keyed by finding ID with latest-wins replacement, and an
// append-only list of project rules. Only explicit human commands write it.
package calibration
