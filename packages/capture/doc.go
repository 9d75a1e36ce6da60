// Package capture harvests tracked tokens from intercepted traffic.
//
// It reads values from:
//   - Cookie request headers and every Set-Cookie response header
//   - URL-encoded request form fields
//   - Raw request and response body text, where the application reflects
//     tokens either as name=value or as name#*#value
//
// Extraction is best-effort: anything missing or malformed is treated as
// absent. Changed values are written to the token store in one batch per
// request and one per response.
package capture
