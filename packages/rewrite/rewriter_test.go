package rewrite

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/builtin"
	"github.com/abdul-hamid-achik/riskproxy/packages/capture"
	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	canonicalURL = "https://eclear.mcxccl.com/Bancs/RSK/RSK335.do"
	marker       = "__AUTO_CAPTURE__"
	templateText = "MCB_SearchWC_wca_bpid=DFLT&IXHRts={{timestamp}}&IXHRnonce={{nonce}}&sQuery=Client+Code"
)

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) *tokens.Store {
	t.Helper()
	return tokens.NewStore(filepath.Join(t.TempDir(), "credentials.json"), tokens.DefaultSet())
}

func newRewriter(store TokenReader, opts ...Option) *Rewriter {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(NewTemplate(templateText, nil), store, tokens.DefaultSet(), marker, canonicalURL, opts...)
}

func placeholderFlow(t *testing.T, target, body string) *flow.HTTPFlow {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	f, err := flow.NewHTTPFlow("flow-rw", req)
	require.NoError(t, err)
	return f
}

func TestMaybeRewrite_UsesCapturedValues(t *testing.T) {
	store := newStore(t)
	store.SetIfChanged(tokens.IXHRts, "1760866200123")
	store.SetIfChanged(tokens.IXHRnonce, "liveNonce")

	f := placeholderFlow(t, canonicalURL, "IXHRts="+marker+"&IXHRnonce="+marker)
	assert.True(t, newRewriter(store).MaybeRewrite(f))

	body := string(f.Request().Body())
	assert.Equal(t, "MCB_SearchWC_wca_bpid=DFLT&IXHRts=1760866200123&IXHRnonce=liveNonce&sQuery=Client+Code", body)
	assert.Equal(t, strconv.Itoa(len(body)), f.Request().Header().Get("Content-Length"))
	assert.Equal(t, int64(len(body)), f.HTTPRequest().ContentLength)
}

func TestMaybeRewrite_CapturedTimestampIsNeverAdvanced(t *testing.T) {
	store := newStore(t)
	store.SetIfChanged(tokens.IXHRts, "1760866200123")
	store.SetIfChanged(tokens.IXHRnonce, "n")
	rw := newRewriter(store)

	for i := 0; i < 20; i++ {
		f := placeholderFlow(t, canonicalURL, marker)
		require.True(t, rw.MaybeRewrite(f))
		form, err := url.ParseQuery(string(f.Request().Body()))
		require.NoError(t, err)
		assert.Equal(t, "1760866200123", form.Get("IXHRts"))
	}
}

func TestMaybeRewrite_FallsBackToLocalTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		ts    string
		nonce string
	}{
		{name: "nothing captured"},
		{name: "nonce missing", ts: "1760866200123"},
		{name: "timestamp missing", nonce: "kept"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			store.SetIfChanged(tokens.IXHRts, tt.ts)
			store.SetIfChanged(tokens.IXHRnonce, tt.nonce)

			f := placeholderFlow(t, canonicalURL, marker)
			require.True(t, newRewriter(store).MaybeRewrite(f))

			form, err := url.ParseQuery(string(f.Request().Body()))
			require.NoError(t, err)
			assert.Equal(t, builtin.TimestampMs(fixedNow), form.Get("IXHRts"))
			if tt.nonce != "" {
				assert.Equal(t, tt.nonce, form.Get("IXHRnonce"))
			} else {
				assert.Regexp(t, `^[A-Za-z0-9]{16}$`, form.Get("IXHRnonce"))
			}
		})
	}
}

func TestMaybeRewrite_NoMarkerIsNoop(t *testing.T) {
	store := newStore(t)
	body := "IXHRts=1760866200000&IXHRnonce=abc"
	f := placeholderFlow(t, canonicalURL, body)

	assert.False(t, newRewriter(store).MaybeRewrite(f))
	assert.Equal(t, body, string(f.Request().Body()))
}

func TestMaybeRewrite_OtherURLIsNoop(t *testing.T) {
	store := newStore(t)
	f := placeholderFlow(t, "https://eclear.mcxccl.com/Bancs/RSK/RSK100.do", marker)

	assert.False(t, newRewriter(store).MaybeRewrite(f))
	assert.Equal(t, marker, string(f.Request().Body()))
}

func TestMaybeRewrite_RefreshesCookies(t *testing.T) {
	store := newStore(t)
	store.SetIfChanged(tokens.JSessionID, "fresh-session")
	store.SetIfChanged(tokens.AlteonP, "fresh-alteon")

	f := placeholderFlow(t, canonicalURL, marker)
	f.Request().Header().Set("Cookie", "JSESSIONID=stale; theme=dark")

	require.True(t, newRewriter(store, WithRefreshCookies(true)).MaybeRewrite(f))
	assert.Equal(t, "JSESSIONID=fresh-session; theme=dark; AlteonP=fresh-alteon", f.Request().Header().Get("Cookie"))
}

func TestMaybeRewrite_CookiesUntouchedByDefault(t *testing.T) {
	store := newStore(t)
	store.SetIfChanged(tokens.JSessionID, "fresh-session")

	f := placeholderFlow(t, canonicalURL, marker)
	f.Request().Header().Set("Cookie", "JSESSIONID=stale")

	require.True(t, newRewriter(store).MaybeRewrite(f))
	assert.Equal(t, "JSESSIONID=stale", f.Request().Header().Get("Cookie"))
}

func TestRenderThenExtract_RoundTrip(t *testing.T) {
	tmpl := NewTemplate(templateText, nil)

	for _, tc := range []struct{ ts, nonce string }{
		{"1760866200123", "R4nd0m"},
		{"99999999", "a-b_c.d~e"},
	} {
		rendered := tmpl.Render(map[string]string{PlaceholderTimestamp: tc.ts, PlaceholderNonce: tc.nonce})

		store := newStore(t)
		e := capture.NewExtractor(store, tokens.DefaultSet(), nil)
		e.FromRequest(placeholderFlow(t, canonicalURL, rendered))

		ts, _ := store.Get(tokens.IXHRts)
		nonce, _ := store.Get(tokens.IXHRnonce)
		assert.Equal(t, tc.ts, ts)
		assert.Equal(t, tc.nonce, nonce)
	}
}

func TestTemplate(t *testing.T) {
	tmpl := NewTemplate("a={{timestamp}}&b={{ nonce }}&c={{unknown}}&d={{timestampMs()}}", builtin.NewRegistry(func() time.Time { return fixedNow }))

	assert.Equal(t, []string{"timestamp", "nonce", "unknown", "timestampMs()"}, tmpl.Placeholders())
	assert.Equal(t, "a=1&b=2&c={{unknown}}&d="+builtin.TimestampMs(fixedNow), tmpl.Render(map[string]string{"timestamp": "1", "nonce": "2"}))
	assert.Equal(t, "a=X&b=X&c=X&d=X", tmpl.RenderAll("X"))
}
