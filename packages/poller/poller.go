// Package poller issues auto-capture requests through the proxy on a fixed
// schedule. The proxy replaces the marker values with live tokens before the
// request reaches the target.
package poller

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultInterval is the default pause between requests
	DefaultInterval = time.Minute
)

// ErrNoTemplate is returned when there is no payload to send.
var ErrNoTemplate = errors.New("no payload template configured")

// Result describes one poll.
type Result struct {
	Seq        int
	StatusCode int
	Bytes      int
	Duration   time.Duration
	Failed     bool
	Err        error
}

// Poller sends the placeholder payload to the canonical URL.
type Poller struct {
	url           string
	body          string
	headers       map[string]string
	interval      time.Duration
	timeout       time.Duration
	proxyURL      string
	insecureTLS   bool
	failurePhrase string
	latency       *metrics.Latency
	logger        *zap.Logger
	onResult      func(Result)

	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option is a functional option for Poller
type Option func(*Poller)

// WithProxy routes requests through proxyURL
func WithProxy(proxyURL string) Option {
	return func(p *Poller) {
		p.proxyURL = proxyURL
	}
}

// WithInsecureTLS skips certificate checks, needed for the proxy's MITM CA
func WithInsecureTLS(insecure bool) Option {
	return func(p *Poller) {
		p.insecureTLS = insecure
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithHeaders sets headers sent on every request
func WithHeaders(headers map[string]string) Option {
	return func(p *Poller) {
		for k, v := range headers {
			p.headers[k] = v
		}
	}
}

// WithFailurePhrase marks responses containing phrase as failed
func WithFailurePhrase(phrase string) Option {
	return func(p *Poller) {
		p.failurePhrase = phrase
	}
}

// WithLatency records the round trip of every poll
func WithLatency(l *metrics.Latency) Option {
	return func(p *Poller) {
		p.latency = l
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithResultHandler is called after every poll
func WithResultHandler(fn func(Result)) Option {
	return func(p *Poller) {
		p.onResult = fn
	}
}

// FromConfig returns the options for the poll section.
func FromConfig(cfg config.PollConfig) []Option {
	return []Option{
		WithProxy(cfg.ProxyURL),
		WithInsecureTLS(cfg.GetInsecureTLS()),
		WithTimeout(cfg.Timeout),
		WithInterval(cfg.Interval),
		WithHeaders(cfg.Headers),
		WithFailurePhrase(cfg.FailurePhrase),
	}
}

// New creates a Poller posting body to targetURL.
func New(targetURL, body string, opts ...Option) (*Poller, error) {
	if _, err := neturl.ParseRequestURI(targetURL); err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}

	p := &Poller{
		url:      targetURL,
		body:     body,
		headers:  make(map[string]string),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	if p.insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if p.proxyURL != "" {
		u, err := neturl.Parse(p.proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	p.httpClient = &http.Client{Transport: transport, Timeout: p.timeout}
	p.limiter = rate.NewLimiter(rate.Every(p.interval), 1)
	return p, nil
}

// Run polls until ctx is done, or count times when count > 0. A failed poll
// is not retried; the next one happens on schedule.
func (p *Poller) Run(ctx context.Context, count int) error {
	p.logger.Info("polling started",
		zap.String("url", p.url),
		zap.String("proxy", p.proxyURL),
		zap.Duration("interval", p.interval))

	for seq := 1; count <= 0 || seq <= count; seq++ {
		if err := p.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next slot lies past the deadline
			<-ctx.Done()
			p.logger.Info("polling stopped", zap.Int("polls", seq-1))
			return nil
		}
		res := p.PollOnce(ctx)
		res.Seq = seq
		if p.onResult != nil {
			p.onResult(res)
		}
	}
	return nil
}

// PollOnce sends a single request.
func (p *Poller) PollOnce(ctx context.Context) Result {
	start := time.Now()
	res, err := p.do(ctx)
	res.Duration = time.Since(start)
	res.Err = err

	if p.latency != nil {
		p.latency.Record("poll", res.Duration, err)
	}

	switch {
	case err != nil:
		res.Failed = true
		p.logger.Warn("poll failed", zap.Error(err), zap.Duration("duration", res.Duration))
	case res.Failed:
		p.logger.Warn("poll rejected by target",
			zap.Int("status", res.StatusCode),
			zap.Int("bytes", res.Bytes),
			zap.Duration("duration", res.Duration))
	default:
		p.logger.Info("poll succeeded",
			zap.Int("status", res.StatusCode),
			zap.Int("bytes", res.Bytes),
			zap.Duration("duration", res.Duration))
	}
	return res
}

func (p *Poller) do(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBufferString(p.body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode}, fmt.Errorf("reading response: %w", err)
	}
	body := flow.DecodeBody(resp.Header.Get("Content-Encoding"), raw)

	res := Result{StatusCode: resp.StatusCode, Bytes: len(body)}
	res.Failed = resp.StatusCode >= http.StatusBadRequest || p.isFailure(body)
	return res, nil
}

func (p *Poller) isFailure(body []byte) bool {
	if p.failurePhrase == "" {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), strings.ToLower(p.failurePhrase))
}
