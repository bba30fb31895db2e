// Package logging builds the zap logger used for diagnostics. User-facing
// progress lines go through package ui instead.
package logging
