// Package config handles configuration loading and management for riskproxy.
//
// It provides functionality for:
//   - Loading configuration from riskproxy.yaml with ${VAR} expansion
//   - Default values for the monitored application
//   - Startup validation and payload template loading
package config
