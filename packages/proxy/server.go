package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server is the MITM proxy in front of the target application. Only the
// target host is intercepted; CONNECT tunnels to any other host pass through
// untouched.
type Server struct {
	engine  *Engine
	host    string
	listen  string
	verbose bool
	logger  *zap.Logger
	direct  http.Handler
	proxy   *goproxy.ProxyHttpServer
}

// ServerOption is a functional option for Server
type ServerOption func(*Server)

// WithListen sets the listen address
func WithListen(addr string) ServerOption {
	return func(s *Server) {
		s.listen = addr
	}
}

// WithVerbose enables goproxy's own request logging
func WithVerbose(verbose bool) ServerOption {
	return func(s *Server) {
		s.verbose = verbose
	}
}

// WithDirectHandler serves requests addressed to the proxy itself, such as
// GET /metrics, instead of goproxy's refusal.
func WithDirectHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.direct = h
	}
}

// WithServerLogger sets the logger
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a proxy server that feeds flows for host into engine.
func NewServer(engine *Engine, host string, opts ...ServerOption) *Server {
	s := &Server{
		engine: engine,
		host:   host,
		listen: "127.0.0.1:8080",
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.proxy = goproxy.NewProxyHttpServer()
	s.proxy.Verbose = s.verbose
	s.proxy.Logger = zap.NewStdLog(s.logger.Named("goproxy"))
	if s.direct != nil {
		s.proxy.NonproxyHandler = s.direct
	}

	s.proxy.OnRequest().HandleConnectFunc(func(hostport string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if s.isTarget(hostport) {
			return goproxy.MitmConnect, hostport
		}
		return goproxy.OkConnect, hostport
	})
	s.proxy.OnRequest().DoFunc(s.onRequest)
	s.proxy.OnResponse().DoFunc(s.onResponse)
	return s
}

// Handler returns the proxy as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.proxy
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.listen
}

// StartWithContext serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.proxy,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("proxy listening", zap.String("addr", s.listen), zap.String("target", s.host))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("proxy server: %w", err)
	}
	return nil
}

func (s *Server) isTarget(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.EqualFold(host, s.host)
}

func (s *Server) onRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	hostport := req.URL.Host
	if hostport == "" {
		hostport = req.Host
	}
	if !s.isTarget(hostport) {
		return req, nil
	}

	if !s.engine.Monitors(flow.RequestHost(req), flow.RequestURL(req).String()) {
		return req, nil
	}

	f, err := flow.NewHTTPFlow(uuid.NewString(), req)
	if err != nil {
		s.logger.Warn("buffering request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return req, nil
	}
	ctx.UserData = f
	s.engine.OnRequest(f)

	// MITM'd requests that fail upstream never reach the response hook, so
	// transport errors resolve the flow here.
	next := ctx.RoundTripper
	ctx.RoundTripper = goproxy.RoundTripperFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Response, error) {
		var resp *http.Response
		var err error
		if next != nil {
			resp, err = next.RoundTrip(req, ctx)
		} else {
			resp, err = ctx.Proxy.Tr.RoundTrip(req)
		}
		if err != nil {
			ctx.UserData = nil
			s.engine.OnError(f, err)
		}
		return resp, err
	})
	return f.HTTPRequest(), nil
}

func (s *Server) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	f, ok := ctx.UserData.(*flow.HTTPFlow)
	if !ok {
		return resp
	}

	if resp == nil {
		err := ctx.Error
		if err == nil {
			err = errors.New("no response")
		}
		s.engine.OnError(f, err)
		return resp
	}
	if err := f.AttachResponse(resp); err != nil {
		s.engine.OnError(f, err)
		return resp
	}
	s.engine.OnResponse(f)
	return resp
}
