// Package config loads and validates the YAML configuration shared by the
// sender and receiver binaries.
package config
