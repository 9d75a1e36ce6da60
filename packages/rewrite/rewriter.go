// Package rewrite fills operator-injected auto-capture requests with the
// latest harvested tokens.
package rewrite

import (
	"bytes"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/builtin"
	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"go.uber.org/zap"
)

const (
	maxJitterMs = 750
	nonceLength = 16
)

// TokenReader is the read side of the token store.
type TokenReader interface {
	Get(name tokens.Name) (string, bool)
}

// Rewriter replaces placeholder request bodies with a rendered template.
type Rewriter struct {
	tmpl           *Template
	store          TokenReader
	set            tokens.Set
	marker         string
	canonicalURL   string
	refreshCookies bool
	now            func() time.Time
	logger         *zap.Logger
}

// Option is a functional option for Rewriter
type Option func(*Rewriter)

// WithRefreshCookies also rewrites tracked cookies in the Cookie header.
func WithRefreshCookies(enabled bool) Option {
	return func(r *Rewriter) {
		r.refreshCookies = enabled
	}
}

// WithClock overrides the time source for locally generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Rewriter) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Rewriter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Rewriter for requests to canonicalURL carrying marker.
func New(tmpl *Template, store TokenReader, set tokens.Set, marker, canonicalURL string, opts ...Option) *Rewriter {
	r := &Rewriter{
		tmpl:         tmpl,
		store:        store,
		set:          set,
		marker:       marker,
		canonicalURL: canonicalURL,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaybeRewrite replaces the body of an auto-capture request and reports
// whether it did. Missing tokens fall back to locally generated values so
// the request is always sent.
func (r *Rewriter) MaybeRewrite(f flow.Flow) bool {
	req := f.Request()
	if r.tmpl == nil || req == nil || r.marker == "" {
		return false
	}
	if !strings.HasPrefix(req.URL().String(), r.canonicalURL) {
		return false
	}
	if !bytes.Contains(req.Body(), []byte(r.marker)) {
		return false
	}

	timestamp, nonce, source := r.resolveDynamic(f.ID())

	values := map[string]string{
		PlaceholderTimestamp: timestamp,
		PlaceholderNonce:     nonce,
	}
	values[string(r.set.Timestamp)] = timestamp
	values[string(r.set.Nonce)] = nonce
	for _, name := range r.set.Cookies {
		if v, ok := r.store.Get(name); ok {
			values[string(name)] = v
		}
	}

	body := []byte(r.tmpl.Render(values))
	req.SetBody(body)

	if r.refreshCookies {
		r.refreshCookieHeader(req)
	}

	r.logger.Info("auto-capture request rewritten",
		zap.String("flow", f.ID()),
		zap.String("timestamp_source", source),
		zap.Int("content_length", len(body)))
	return true
}

// resolveDynamic picks the timestamp and nonce for the outgoing payload.
func (r *Rewriter) resolveDynamic(flowID string) (timestamp, nonce, source string) {
	ts, tsOK := r.store.Get(r.set.Timestamp)
	nonce, nonceOK := r.store.Get(r.set.Nonce)

	if !tsOK || !nonceOK {
		timestamp = builtin.TimestampMs(r.now())
		source = "local"
	} else {
		// The jittered value is only reported; the captured timestamp is
		// what goes on the wire.
		jittered := jitter(ts)
		r.logger.Debug("timestamp jitter computed",
			zap.String("flow", flowID),
			zap.String("captured", ts),
			zap.String("jittered", jittered))
		timestamp = ts
		source = "captured"
	}

	if !nonceOK {
		nonce = builtin.Nonce(nonceLength)
	}
	return timestamp, nonce, source
}

func jitter(ts string) string {
	v, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ts
	}
	return strconv.FormatInt(v+1+rand.Int63n(maxJitterMs), 10)
}

// refreshCookieHeader replaces tracked cookie values with stored ones and
// appends tracked cookies the request did not carry.
func (r *Rewriter) refreshCookieHeader(req flow.Request) {
	type pair struct{ name, value string }

	var cookies []pair
	index := make(map[string]int)
	for _, line := range req.Header().Values("Cookie") {
		for _, part := range strings.Split(line, ";") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, value, _ := strings.Cut(part, "=")
			name = strings.TrimSpace(name)
			index[name] = len(cookies)
			cookies = append(cookies, pair{name: name, value: strings.TrimSpace(value)})
		}
	}

	for _, name := range r.set.Cookies {
		v, ok := r.store.Get(name)
		if !ok {
			continue
		}
		if i, exists := index[string(name)]; exists {
			cookies[i].value = v
		} else {
			index[string(name)] = len(cookies)
			cookies = append(cookies, pair{name: string(name), value: v})
		}
	}

	if len(cookies) == 0 {
		return
	}

	parts := make([]string, len(cookies))
	for i, c := range cookies {
		if c.value == "" {
			parts[i] = c.name
		} else {
			parts[i] = c.name + "=" + c.value
		}
	}
	req.Header().Set("Cookie", strings.Join(parts, "; "))
}
