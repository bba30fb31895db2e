// Package review runs a full Conclave review of one project.
//
// Engine.Run resolves the project and its configuration, builds the shared
// context every agent sees (contracts, file tree, source snapshot and an
// optional git diff), runs each agent in turn through the configured
// provider, validates BLOCKER and HIGH findings, and synthesizes the
// release-readiness report, JUnit results, compliance mapping and run
// archive under .conclave/reviews.
//
// Configuration failures are returned as *ExitError carrying the process
// exit code the CLI should use. Everything else that stops a run is a
// persistence or runtime error.
package review
