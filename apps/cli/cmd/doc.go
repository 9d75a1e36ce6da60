// Package cmd implements the riskproxy CLI commands using Cobra.
//
// Available commands:
//   - serve: Run the intercepting proxy
//   - poll: Send auto-capture requests through the proxy
//   - decode: Extract the margin utilization from a saved response
//   - watch: Decode each new canonical response as it is recorded
//   - tokens: Inspect harvested credentials
//   - history: Show stored readings
//   - init, validate, version, completion
package cmd
