// Package config loads the proof service configuration from a JSON or YAML
// file and applies STARKPROOF_* environment overrides on top of it. Every
// location and address the service uses is configured here rather than
// hard-coded.
package config
