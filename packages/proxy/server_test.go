package proxy

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"github.com/abdul-hamid-achik/riskproxy/packages/snapshot"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/elazarl/goproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstreamConfig(upstreamURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Target.Host = "127.0.0.1"
	cfg.Target.MonitoredPrefix = upstreamURL + "/Bancs/RSK/"
	cfg.Target.CanonicalURL = upstreamURL + "/Bancs/RSK/RSK335.do"
	return cfg
}

func proxiedClient(t *testing.T, proxyURL string) *http.Client {
	t.Helper()
	u, err := url.Parse(proxyURL)
	require.NoError(t, err)
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		Timeout:   10 * time.Second,
	}
}

func TestServer_EndToEnd(t *testing.T) {
	received := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "from-upstream", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "foo", Value: "bar"})
		_, _ = io.WriteString(w, `<table id="RSK335_Table"><tr><td>1</td></tr></table>`)
	}))
	defer upstream.Close()

	s := newStack(t, upstreamConfig(upstream.URL))
	s.store.SetIfChanged(tokens.IXHRts, "1760866200777")
	s.store.SetIfChanged(tokens.IXHRnonce, "liveNonce")

	srv := NewServer(s.engine, "127.0.0.1")
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	body := canonicalForm + "&IXHRts=" + marker + "&IXHRnonce=" + marker
	req, err := http.NewRequest(http.MethodPost, upstream.URL+"/Bancs/RSK/RSK335.do", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := proxiedClient(t, proxyServer.URL).Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	want := canonicalForm + "&IXHRts=1760866200777&IXHRnonce=liveNonce"
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, want, <-received, "upstream sees the rewritten body")
	assert.Contains(t, string(respBody), "RSK335_Table", "response is forwarded unchanged")

	assert.Equal(t, want, readSnapshot(t, snapshot.CurrentPath(s.dir, snapshot.Requests)))
	assert.Equal(t, string(respBody), readSnapshot(t, snapshot.CurrentPath(s.dir, snapshot.Responses)))

	session, _ := s.store.Get(tokens.JSessionID)
	assert.Equal(t, "from-upstream", session)
	_, ok := s.store.Get(tokens.Name("foo"))
	assert.False(t, ok)
	assert.Equal(t, 0, s.engine.Pending())
}

func TestServer_OtherHostsPassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ignored"})
		_, _ = io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	s := newStack(t, upstreamConfig(upstream.URL))
	srv := NewServer(s.engine, "eclear.mcxccl.com")
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	resp, err := proxiedClient(t, proxyServer.URL).Get(upstream.URL + "/Bancs/RSK/RSK335.do")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := s.store.Get(tokens.JSessionID)
	assert.False(t, ok)
}

func TestServer_UpstreamFailureResolvesFlow(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstreamURL := upstream.URL
	upstream.Close()

	s := newStack(t, upstreamConfig(upstreamURL))
	srv := NewServer(s.engine, "127.0.0.1")
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	resp, err := proxiedClient(t, proxyServer.URL).Post(upstreamURL+"/Bancs/RSK/RSK335.do",
		"application/x-www-form-urlencoded", strings.NewReader(canonicalForm))
	if err == nil {
		resp.Body.Close()
	}

	assert.Equal(t, 0, s.engine.Pending())
	assert.Equal(t, 1, s.logs.FilterMessage("flow failed").Len())
}

func mitmClient(t *testing.T, proxyURL string) *http.Client {
	t.Helper()
	client := proxiedClient(t, proxyURL)
	client.Transport.(*http.Transport).TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return client
}

func TestServer_MITMResolvesFlow(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "over-tls", Path: "/"})
		_, _ = io.WriteString(w, "<html></html>")
	}))
	defer upstream.Close()

	s := newStack(t, upstreamConfig(upstream.URL))
	srv := NewServer(s.engine, "127.0.0.1")
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	resp, err := mitmClient(t, proxyServer.URL).Post(upstream.URL+"/Bancs/RSK/RSK335.do",
		"application/x-www-form-urlencoded", strings.NewReader(canonicalForm))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	session, _ := s.store.Get(tokens.JSessionID)
	assert.Equal(t, "over-tls", session)
	assert.Equal(t, 0, s.engine.Pending())
	assert.Equal(t, 0, s.logs.FilterMessage("flow failed").Len())
}

func TestServer_MITMUpstreamFailureResolvesFlow(t *testing.T) {
	upstream := httptest.NewTLSServer(http.NotFoundHandler())
	upstreamURL := upstream.URL
	upstream.Close()

	s := newStack(t, upstreamConfig(upstreamURL))
	srv := NewServer(s.engine, "127.0.0.1")
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	client := mitmClient(t, proxyServer.URL)
	const attempts = 3
	for i := 0; i < attempts; i++ {
		resp, err := client.Post(upstreamURL+"/Bancs/RSK/RSK335.do",
			"application/x-www-form-urlencoded", strings.NewReader(canonicalForm))
		if err == nil {
			resp.Body.Close()
		}
	}

	assert.Equal(t, 0, s.engine.Pending(), "failed MITM flows must not stay pending")
	assert.Equal(t, attempts, s.logs.FilterMessage("flow failed").Len())
}

func TestServer_UnmonitoredPathIsNotBuffered(t *testing.T) {
	s := newStack(t, upstreamConfig("http://127.0.0.1:8080"))
	srv := NewServer(s.engine, "127.0.0.1")

	body := io.NopCloser(strings.NewReader(canonicalForm))
	req := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/static/upload", nil)
	req.Body = body
	ctx := &goproxy.ProxyCtx{Req: req, Proxy: srv.proxy}

	out, resp := srv.onRequest(req, ctx)
	assert.Nil(t, resp)
	assert.Same(t, req, out)
	assert.Equal(t, body, out.Body, "the body is forwarded as a stream")
	assert.Nil(t, ctx.UserData)
	assert.Nil(t, ctx.RoundTripper)
	assert.Equal(t, 0, s.engine.Pending())

	monitored := httptest.NewRequest(http.MethodPost, "http://127.0.0.1:8080/Bancs/RSK/RSK335.do",
		strings.NewReader(canonicalForm))
	mctx := &goproxy.ProxyCtx{Req: monitored, Proxy: srv.proxy}
	_, _ = srv.onRequest(monitored, mctx)
	assert.NotNil(t, mctx.UserData)
	assert.NotNil(t, mctx.RoundTripper)
	assert.Equal(t, 1, s.engine.Pending())
}

func TestServer_DirectRequestsReachDirectHandler(t *testing.T) {
	s := newStack(t, config.DefaultConfig())
	srv := NewServer(s.engine, "eclear.mcxccl.com", WithDirectHandler(metrics.Handler(s.latency)))
	proxyServer := httptest.NewServer(srv.Handler())
	defer proxyServer.Close()

	resp, err := http.Get(proxyServer.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `riskproxy_flows_total{label="all"} 0`)
}

func TestServer_IsTarget(t *testing.T) {
	srv := NewServer(nil, "eclear.mcxccl.com")

	assert.True(t, srv.isTarget("eclear.mcxccl.com:443"))
	assert.True(t, srv.isTarget("ECLEAR.mcxccl.com"))
	assert.False(t, srv.isTarget("example.com:443"))
	assert.False(t, srv.isTarget("www.eclear.mcxccl.com:443"))
}
