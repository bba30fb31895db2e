// Package compliance maps review findings onto the controls of a compliance
// standard.
//
// Standards are YAML files under the project's standards directory. A
// standard lists its controls either as domains[].controls[] or as
// subparts[].sections[].subsections[]; in the second shape a section with no
// subsections is itself a control. Each control names the finding ID patterns
// that address it, with "*" as a wildcard.
package compliance
