// Package cli wires together the Cobra command tree for the conclave binary.
//
// The root command runs a full review; rc runs the two-agent review council.
// The remaining commands initialize projects, record calibration decisions
// (reject, adjust, confirm, add-rule), inspect config, cache, agents,
// standards and providers, and manage the pre-commit hook. Configuration
// failures surface as review.ExitError and map to their exit code; in CI
// mode a completed review exits with its verdict code.
package cli
