// Package config loads, normalizes, and validates vast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VAST_MINIO_ACCESS_KEY and ONNXRUNTIME_LIB. The Config type centralizes the
// sampling, detection, export, and transcription knobs the CLI needs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
