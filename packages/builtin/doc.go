// Package builtin provides the helper functions available inside payload
// templates.
//
// Available helpers:
//   - now(): current UTC time (RFC 3339)
//   - timestampMs(): epoch milliseconds
//   - uuid(): random UUID v4
//   - nonce(n): random alphanumeric string, 16 characters by default
//   - random(min, max): random integer in [min, max]
//   - date(layout): current local date, 02-Jan-2006 by default
//   - urlEncode(s): form-encodes s
package builtin
