// Package proxy wires the interception hooks: classification, payload
// rewriting, snapshot recording and token harvesting per flow.
package proxy

import (
	"sync"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/classify"
	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/abdul-hamid-achik/riskproxy/packages/metrics"
	"go.uber.org/zap"
)

// Classifier decides whether a flow is monitored and canonical.
type Classifier interface {
	Classify(host, rawURL string, body []byte) classify.Classification
}

// Rewriter fills auto-capture placeholder requests.
type Rewriter interface {
	MaybeRewrite(f flow.Flow) bool
}

// Recorder keeps canonical request and response snapshots.
type Recorder interface {
	RecordRequest(body []byte) error
	RecordResponse(body []byte) error
}

// Extractor harvests tracked tokens.
type Extractor interface {
	FromRequest(f flow.Flow)
	FromResponse(f flow.Flow)
}

type phase int

const (
	pending phase = iota
	resolved
)

type flowState struct {
	class   classify.Classification
	started time.Time
	phase   phase
}

// Engine runs the per-flow hooks. It is safe for concurrent use by
// concurrent flows.
type Engine struct {
	classifier Classifier
	rewriter   Rewriter
	recorder   Recorder
	extractor  Extractor
	latency    *metrics.Latency
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	flows map[string]*flowState
}

// EngineOption is a functional option for Engine
type EngineOption func(*Engine)

// WithRewriter enables auto-capture rewriting.
func WithRewriter(r Rewriter) EngineOption {
	return func(e *Engine) {
		e.rewriter = r
	}
}

// WithLatency records the duration of every resolved monitored flow.
func WithLatency(l *metrics.Latency) EngineOption {
	return func(e *Engine) {
		e.latency = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for flow latency.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine.
func NewEngine(classifier Classifier, recorder Recorder, extractor Extractor, opts ...EngineOption) *Engine {
	e := &Engine{
		classifier: classifier,
		recorder:   recorder,
		extractor:  extractor,
		logger:     zap.NewNop(),
		now:        time.Now,
		flows:      make(map[string]*flowState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Monitors reports whether a request to host at rawURL would be tracked.
// It lets the server skip buffering bodies it will never inspect.
func (e *Engine) Monitors(host, rawURL string) bool {
	return e.classifier.Classify(host, rawURL, nil).Monitored
}

// OnRequest handles a request before it is forwarded upstream. Unmonitored
// flows are ignored and leave no state behind.
func (e *Engine) OnRequest(f flow.Flow) {
	req := f.Request()
	if req == nil {
		return
	}

	rawURL := req.URL().String()
	class := e.classifier.Classify(req.Host(), rawURL, req.Body())
	if !class.Monitored {
		return
	}

	e.mu.Lock()
	e.flows[f.ID()] = &flowState{class: class, started: e.now(), phase: pending}
	e.mu.Unlock()

	log := e.logger.With(zap.String("flow", f.ID()), zap.String("url", rawURL), zap.Bool("canonical", class.Canonical))
	log.Debug("request intercepted", zap.String("method", req.Method()))

	if class.Canonical {
		if e.rewriter != nil {
			e.rewriter.MaybeRewrite(f)
		}
		if err := e.recorder.RecordRequest(req.Body()); err != nil {
			log.Warn("recording request snapshot failed", zap.Error(err))
		}
	}
	e.extractor.FromRequest(f)
}

// OnResponse handles the upstream response. The classification computed at
// request time decides whether the response is recorded.
func (e *Engine) OnResponse(f flow.Flow) {
	req := f.Request()
	if req == nil || f.Response() == nil {
		return
	}

	rawURL := req.URL().String()
	state, ok := e.resolve(f.ID())
	if !ok {
		if !e.classifier.Classify(req.Host(), rawURL, nil).Monitored {
			return
		}
		e.logger.Warn("response without pending request",
			zap.String("flow", f.ID()),
			zap.String("url", rawURL))
	}
	class := classify.Classification{Monitored: true}
	if ok {
		class = state.class
	}

	log := e.logger.With(zap.String("flow", f.ID()), zap.String("url", rawURL), zap.Bool("canonical", class.Canonical))
	log.Debug("response intercepted",
		zap.Int("status", f.Response().StatusCode()),
		zap.String("reason", f.Response().Reason()))

	if class.Canonical {
		if err := e.recorder.RecordResponse(f.Response().Body()); err != nil {
			log.Warn("recording response snapshot failed", zap.Error(err))
		} else {
			log.Info("canonical response recorded", zap.Int("bytes", len(f.Response().Body())))
		}
	}
	e.extractor.FromResponse(f)

	if ok {
		e.observe(state, nil)
	}
}

// OnError resolves a flow that failed in transit. Its state is discarded and
// nothing is retried.
func (e *Engine) OnError(f flow.Flow, err error) {
	state, ok := e.resolve(f.ID())
	if !ok {
		return
	}

	url := ""
	if req := f.Request(); req != nil {
		url = req.URL().String()
	}
	e.logger.Warn("flow failed",
		zap.String("flow", f.ID()),
		zap.String("url", url),
		zap.Bool("canonical", state.class.Canonical),
		zap.Error(err))

	e.observe(state, err)
}

// Pending returns the number of flows awaiting a response.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.flows)
}

// resolve moves a flow from pending to resolved. Only the first caller
// gets the state.
func (e *Engine) resolve(id string) (*flowState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.flows[id]
	if !ok || state.phase != pending {
		return nil, false
	}
	state.phase = resolved
	delete(e.flows, id)
	return state, true
}

func (e *Engine) observe(state *flowState, err error) {
	if e.latency == nil {
		return
	}
	label := "monitored"
	if state.class.Canonical {
		label = "canonical"
	}
	e.latency.Record(label, e.now().Sub(state.started), err)
}
