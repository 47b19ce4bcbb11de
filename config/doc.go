// Package config loads, normalizes, and validates scribe configuration.
//
// Settings come from a TOML file (by default ~/.config/scribe/config.toml or
// ./scribe.toml), then from a .env file in the working directory, then from
// SCRIBE_* environment variables. Later sources win. Validation runs last so
// callers always receive a complete, usable Config.
package config
