// Package scanner builds the project context sent to every review agent.
//
// A full scan sorts eligible files into seven priority tiers and fills a
// byte and file budget in two passes (see Allocate). A diff scan limits the
// context to files changed against a base branch and returns
// ErrNoDiffContext when the caller should fall back to a full scan.
package scanner
