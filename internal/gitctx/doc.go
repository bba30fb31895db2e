// Package gitctx wraps the handful of git commands the diff scan needs:
// work-tree detection, base-ref resolution, changed-file listing and the
// unified diff itself.
//
// Every command runs with a context so a cancelled review never leaves git
// processes behind, and failures carry git's stderr.
package gitctx
