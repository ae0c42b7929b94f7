// Package config loads, normalizes, and validates scanwatch's TOML
// configuration.
package config
