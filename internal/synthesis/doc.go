// Package synthesis aggregates agent results into a release verdict.
//
// The verdict is a priority classification over summed counts: any BLOCKER
// holds the release, more than three HIGH findings make it conditional, and
// everything else ships. Exit codes are SHIP=0, HOLD=1, CONDITIONAL=2; the
// numbers do not follow severity order.
package synthesis
