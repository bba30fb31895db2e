// Package redact scrubs credentials from two kinds of text: project content
// headed for an AI provider, and error messages headed for logs and reports.
//
// Content redaction uses regex heuristics for common secret shapes (API
// keys, JWTs, private keys, AWS keys, bearer tokens and provider-specific
// tokens). Files whose paths match configured globs are replaced wholesale.
//
// Error sanitizing is narrower: provider keys, auth header values and the
// user's home directory.
package redact
