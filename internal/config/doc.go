// Package config loads the effective configuration of a conclave project.
//
// Precedence (highest to lowest):
//  1. CLI flags ([Overrides])
//  2. Environment variables (CONCLAVE_AI_PROVIDER, CONCLAVE_AI_MODEL,
//     CONCLAVE_LOG_LEVEL, CONCLAVE_LOG_JSON)
//  3. Project file (.conclave/config.yaml)
//  4. Built-in defaults
//
// Layers are merged as YAML maps with [DeepMerge]: maps merge key by key,
// lists and scalars replace. The package also owns the .conclave layout
// ([Init], path helpers) and the conclave_version stamp ([CheckVersion]).
package config
