// Package tokens holds the tracked session credentials of the monitored
// application and persists them as a single JSON record.
//
// The Store is written from both the request and the response path of
// concurrent flows. Every mutation and the persist that follows it run under
// one lock, which the snapshot recorder shares.
package tokens
