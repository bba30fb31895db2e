// Conclave is a multi-agent AI release readiness reviewer.
//
// Six specialist agents review a project one after another, a validator
// filters their findings, and a synthesis step issues a SHIP, CONDITIONAL
// or HOLD verdict with deterministic exit codes for CI gating.
//
// Usage:
//
//	conclave init -p ./repo                     # create .conclave/
//	conclave -p ./repo                          # full review
//	conclave -p ./repo --ci --scan-depth light  # PR gate, exits with the verdict
//	conclave rc -p ./repo --ci                  # guardian + sentinel only
//	conclave reject GUARDIAN-002 -p ./repo -r "parameterized ORM"
//	conclave hook install                       # pre-commit review council
package main
