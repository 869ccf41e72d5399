// Package config loads, normalizes, and validates repack configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as REPACK_API_TOKEN and REPACK_SEVENZIP.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, a resolved worker count, and clear validation errors.
package config
