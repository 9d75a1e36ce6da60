// Package flow defines the request/response exchange seen by the
// interception engine and an adapter over net/http messages.
package flow

import (
	"net/http"
	"net/url"
)

// Message is the part shared by requests and responses.
type Message interface {
	// Header returns the multi-valued header map. Repeated headers such as
	// Set-Cookie keep one entry per occurrence.
	Header() http.Header
	// Body returns the decoded body bytes.
	Body() []byte
}

// Request is the outgoing half of a flow.
type Request interface {
	Message
	Method() string
	URL() *url.URL
	// Host returns the target host name without port.
	Host() string
	// SetBody replaces the body and updates Content-Length to match.
	SetBody([]byte)
}

// Response is the incoming half of a flow.
type Response interface {
	Message
	StatusCode() int
	Reason() string
}

// Flow is one request/response exchange.
type Flow interface {
	ID() string
	Request() Request
	// Response returns nil until the upstream answered.
	Response() Response
}
