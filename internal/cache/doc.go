// Package cache provides a file-based TTL cache for AI provider responses.
//
// Entries live under the project's .conclave/cache directory, one JSON file
// per key, named by the SHA-256 of the key material. Expired entries are
// skipped and removed on read. Payloads have already been through secret
// redaction when the project enables it.
package cache
