// Package licensing resolves the feature tier a run is entitled to.
//
// [Resolve] is a pure function of its [Inputs]; [FromEnvironment] is the only
// place that reads the process environment or the license file, so callers
// resolve once per run and pass the resulting [Tier] down.
package licensing
