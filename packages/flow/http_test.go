package flow

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFlow_Request(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://eclear.mcxccl.com:443/Bancs/RSK/RSK335.do?a=1", strings.NewReader("x=1"))
	req.Header.Add("Cookie", "JSESSIONID=abc")
	req.Header.Add("Cookie", "AlteonP=def")

	f, err := NewHTTPFlow("flow-1", req)
	require.NoError(t, err)

	assert.Equal(t, "flow-1", f.ID())
	assert.Equal(t, http.MethodPost, f.Request().Method())
	assert.Equal(t, "eclear.mcxccl.com", f.Request().Host())
	assert.Equal(t, "https://eclear.mcxccl.com/Bancs/RSK/RSK335.do?a=1", f.Request().URL().String())
	assert.Equal(t, []string{"JSESSIONID=abc", "AlteonP=def"}, f.Request().Header().Values("Cookie"))
	assert.Equal(t, "x=1", string(f.Request().Body()))
	assert.Nil(t, f.Response())

	// the body is still readable by the transport
	forwarded, err := io.ReadAll(f.HTTPRequest().Body)
	require.NoError(t, err)
	assert.Equal(t, "x=1", string(forwarded))
}

// flakyReader returns its chunks in order, failing once between them.
type flakyReader struct {
	chunks []string
	failAt int
	reads  int
	closed bool
}

func (r *flakyReader) Read(p []byte) (int, error) {
	defer func() { r.reads++ }()
	if r.reads == r.failAt {
		return 0, errors.New("connection reset")
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func (r *flakyReader) Close() error {
	r.closed = true
	return nil
}

func TestNewHTTPFlow_ReadErrorKeepsBody(t *testing.T) {
	body := &flakyReader{chunks: []string{"abc", "def"}, failAt: 1}
	req := httptest.NewRequest(http.MethodPost, "https://eclear.mcxccl.com/Bancs/RSK/RSK335.do", nil)
	req.Body = body

	_, err := NewHTTPFlow("flow-1", req)
	require.Error(t, err)
	assert.False(t, body.closed, "the original body stays open for forwarding")

	forwarded, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(forwarded))

	require.NoError(t, req.Body.Close())
	assert.True(t, body.closed)
}

func TestRequestURLAndHost(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		host     string
		wantURL  string
		wantHost string
	}{
		{"absolute with default port", "https://eclear.mcxccl.com:443/Bancs/RSK/x.do", "", "https://eclear.mcxccl.com/Bancs/RSK/x.do", "eclear.mcxccl.com"},
		{"origin form", "/Bancs/RSK/x.do", "eclear.mcxccl.com:8080", "http://eclear.mcxccl.com:8080/Bancs/RSK/x.do", "eclear.mcxccl.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.host != "" {
				req.URL.Host = ""
				req.Host = tt.host
			}
			assert.Equal(t, tt.wantURL, RequestURL(req).String())
			assert.Equal(t, tt.wantHost, RequestHost(req))
		})
	}
}

func TestHTTPFlow_SetBodyUpdatesLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://eclear.mcxccl.com/Bancs/RSK/RSK335.do", strings.NewReader("short"))
	req.Header.Set("Content-Length", "5")

	f, err := NewHTTPFlow("flow-2", req)
	require.NoError(t, err)

	f.Request().SetBody([]byte("a much longer body"))

	assert.Equal(t, "18", req.Header.Get("Content-Length"))
	assert.Equal(t, int64(18), req.ContentLength)
	data, _ := io.ReadAll(req.Body)
	assert.Equal(t, "a much longer body", string(data))
	again, err := req.GetBody()
	require.NoError(t, err)
	data, _ = io.ReadAll(again)
	assert.Equal(t, "a much longer body", string(data))
}

func TestHTTPFlow_AttachResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://eclear.mcxccl.com/", nil)
	f, err := NewHTTPFlow("flow-3", req)
	require.NoError(t, err)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write([]byte("<html>IXHRts#*#1760866200000</html>"))
	require.NoError(t, w.Close())
	compressed := gz.Bytes()

	resp := &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     http.Header{"Content-Encoding": {"gzip"}, "Set-Cookie": {"a=1", "b=2"}},
		Body:       io.NopCloser(bytes.NewReader(compressed)),
	}
	require.NoError(t, f.AttachResponse(resp))

	require.NotNil(t, f.Response())
	assert.Equal(t, 200, f.Response().StatusCode())
	assert.Equal(t, "OK", f.Response().Reason())
	assert.Equal(t, "<html>IXHRts#*#1760866200000</html>", string(f.Response().Body()))
	assert.Len(t, f.Response().Header().Values("Set-Cookie"), 2)

	forwarded, _ := io.ReadAll(resp.Body)
	assert.Equal(t, compressed, forwarded, "forwarded bytes keep their encoding")
}

func TestDecodeBody(t *testing.T) {
	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte("brotli text"))
	require.NoError(t, bw.Close())

	assert.Equal(t, "brotli text", string(DecodeBody("br", br.Bytes())))
	assert.Equal(t, "plain", string(DecodeBody("", []byte("plain"))))
	assert.Equal(t, "not gzip", string(DecodeBody("gzip", []byte("not gzip"))))
	assert.Equal(t, "zstd?", string(DecodeBody("zstd", []byte("zstd?"))))
}
