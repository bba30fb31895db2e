// Package agents defines the six review agents and the prompt material they
// run with.
//
// Instructions, the shared output contract and the validator instructions are
// embedded in the binary. A project can override any of them by placing a
// file of the same name under .conclave (see [Export]). Dry runs use the
// canned reports returned by [MockFindings].
package agents
