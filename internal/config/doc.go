// Package config provides configuration structures and utilities for prefixscan.
// It defines the built-in API variants, the crawl tuning parameters, the
// optional YAML configuration file, and report and storage preferences.
package config
