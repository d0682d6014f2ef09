// Package config loads the daemon configuration from an optional JSON or
// YAML file, applies environment overrides and fills in defaults.
package config
