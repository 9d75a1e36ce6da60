// Package output renders readings, tokens and statistics for the terminal.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: One JSON document per call, for scripting
//
// Both formatters implement Formatter.
package output
