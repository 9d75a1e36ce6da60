package flow

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPFlow adapts net/http messages to Flow. Bodies are buffered once and
// re-seated so the transport can still forward them.
type HTTPFlow struct {
	id   string
	req  *httpRequest
	resp *httpResponse
}

// NewHTTPFlow wraps req. The request body is read into memory.
func NewHTTPFlow(id string, req *http.Request) (*HTTPFlow, error) {
	body, err := drain(&req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return &HTTPFlow{id: id, req: &httpRequest{req: req, body: body}}, nil
}

// AttachResponse records the upstream response. The forwarded body keeps its
// original encoding; Body() returns the decoded text for inspection.
func (f *HTTPFlow) AttachResponse(resp *http.Response) error {
	raw, err := drain(&resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	f.resp = &httpResponse{
		resp: resp,
		body: DecodeBody(resp.Header.Get("Content-Encoding"), raw),
	}
	return nil
}

func (f *HTTPFlow) ID() string { return f.id }

func (f *HTTPFlow) Request() Request { return f.req }

func (f *HTTPFlow) Response() Response {
	if f.resp == nil {
		return nil
	}
	return f.resp
}

// HTTPRequest returns the underlying request with any rewritten body.
func (f *HTTPFlow) HTTPRequest() *http.Request { return f.req.req }

// drain buffers *rc and replaces it with a reader over the same bytes. When
// the read fails the bytes already consumed are put back in front of the
// unread remainder so the caller can still forward the body untouched.
func drain(rc *io.ReadCloser) ([]byte, error) {
	if *rc == nil || *rc == http.NoBody {
		return nil, nil
	}
	orig := *rc
	data, err := io.ReadAll(orig)
	if err != nil {
		*rc = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), orig), orig}
		return data, err
	}
	_ = orig.Close()
	*rc = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

type httpRequest struct {
	req  *http.Request
	body []byte
}

func (r *httpRequest) Header() http.Header { return r.req.Header }
func (r *httpRequest) Body() []byte        { return r.body }
func (r *httpRequest) Method() string      { return r.req.Method }

func (r *httpRequest) URL() *url.URL { return RequestURL(r.req) }

func (r *httpRequest) Host() string { return RequestHost(r.req) }

// RequestURL returns the absolute URL of req as the flow reports it, without
// buffering the body.
func RequestURL(req *http.Request) *url.URL {
	u := *req.URL
	if u.Host == "" {
		u.Host = req.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if req.TLS != nil {
			u.Scheme = "https"
		}
	}
	// drop default ports so URLs compare the way a browser shows them
	if (u.Scheme == "https" && u.Port() == "443") || (u.Scheme == "http" && u.Port() == "80") {
		u.Host = strings.TrimSuffix(u.Host, ":"+u.Port())
	}
	return &u
}

// RequestHost returns the host name of req without its port.
func RequestHost(req *http.Request) string {
	if h := req.URL.Hostname(); h != "" {
		return h
	}
	host := req.Host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}

func (r *httpRequest) SetBody(body []byte) {
	r.body = body
	r.req.Body = io.NopCloser(bytes.NewReader(body))
	r.req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	r.req.ContentLength = int64(len(body))
	r.req.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

type httpResponse struct {
	resp *http.Response
	body []byte
}

func (r *httpResponse) Header() http.Header { return r.resp.Header }
func (r *httpResponse) Body() []byte        { return r.body }
func (r *httpResponse) StatusCode() int     { return r.resp.StatusCode }

func (r *httpResponse) Reason() string {
	return strings.TrimSpace(strings.TrimPrefix(r.resp.Status, strconv.Itoa(r.resp.StatusCode)))
}
