package capture

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/riskproxy/packages/flow"
	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
	"go.uber.org/zap"
)

// Store is the part of the token store the extractor writes to.
type Store interface {
	Update(fn func(set func(tokens.Name, string) bool)) (bool, error)
}

type dynamicToken struct {
	name     tokens.Name
	valid    *regexp.Regexp
	patterns []*regexp.Regexp
}

// Extractor scans flows for tracked tokens.
type Extractor struct {
	store   Store
	cookies map[tokens.Name]*regexp.Regexp
	order   []tokens.Name
	dynamic []dynamicToken
	logger  *zap.Logger
}

// NewExtractor compiles the patterns for set.
func NewExtractor(store Store, set tokens.Set, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{
		store:   store,
		cookies: make(map[tokens.Name]*regexp.Regexp, len(set.Cookies)),
		logger:  logger,
	}
	for _, name := range set.Cookies {
		e.cookies[name] = cookiePattern(name)
		e.order = append(e.order, name)
	}
	e.dynamic = []dynamicToken{
		{name: set.Timestamp, valid: exact(timestampValue), patterns: bodyPatterns(set.Timestamp, timestampValue)},
		{name: set.Nonce, valid: exact(nonceForm), patterns: bodyPatterns(set.Nonce, nonceValue)},
	}
	return e
}

// FromRequest harvests cookies and dynamic tokens from an outgoing request.
func (e *Extractor) FromRequest(f flow.Flow) {
	req := f.Request()
	if req == nil {
		return
	}

	found := make(map[tokens.Name]string)
	for _, line := range req.Header().Values("Cookie") {
		e.mergeCookies(found, line)
	}

	var form url.Values
	if isForm(req.Header().Get("Content-Type")) {
		// ParseQuery keeps every pair it could decode before an error
		form, _ = url.ParseQuery(string(req.Body()))
	}
	for name, value := range e.ExtractBody(req.Body(), form) {
		found[name] = value
	}

	e.apply(f.ID(), "request", found)
}

// FromResponse harvests Set-Cookie values and dynamic tokens from the
// response. A flow without a response is ignored.
func (e *Extractor) FromResponse(f flow.Flow) {
	resp := f.Response()
	if resp == nil {
		return
	}

	found := make(map[tokens.Name]string)
	for _, line := range resp.Header().Values("Set-Cookie") {
		e.mergeCookies(found, line)
	}
	for name, value := range e.ExtractBody(resp.Body(), nil) {
		found[name] = value
	}

	e.apply(f.ID(), "response", found)
}

// ExtractCookies returns the tracked cookies present in one Cookie or
// Set-Cookie header line.
func (e *Extractor) ExtractCookies(header string) map[tokens.Name]string {
	found := make(map[tokens.Name]string)
	e.mergeCookies(found, header)
	return found
}

func (e *Extractor) mergeCookies(found map[tokens.Name]string, header string) {
	for _, name := range e.order {
		m := e.cookies[name].FindStringSubmatch(header)
		if m == nil {
			continue
		}
		value := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if value != "" {
			found[name] = value
		}
	}
}

// ExtractBody returns the dynamic tokens in body. Values present in form are
// used directly; anything else falls back to scanning the raw text with
// both separator conventions.
func (e *Extractor) ExtractBody(body []byte, form url.Values) map[tokens.Name]string {
	found := make(map[tokens.Name]string)
	text := string(body)
	for _, d := range e.dynamic {
		if v := form.Get(string(d.name)); v != "" && d.valid.MatchString(v) {
			found[d.name] = v
			continue
		}
		for _, p := range d.patterns {
			if m := p.FindStringSubmatch(text); m != nil {
				found[d.name] = m[1]
				break
			}
		}
	}
	return found
}

func (e *Extractor) apply(flowID, direction string, found map[tokens.Name]string) {
	if len(found) == 0 {
		return
	}

	changed, err := e.store.Update(func(set func(tokens.Name, string) bool) {
		for name, value := range found {
			if set(name, value) {
				e.logger.Debug("token changed",
					zap.String("flow", flowID),
					zap.String("direction", direction),
					zap.String("token", string(name)))
			}
		}
	})
	if err != nil {
		e.logger.Warn("persisting tokens failed",
			zap.String("flow", flowID),
			zap.String("direction", direction),
			zap.Error(err))
		return
	}
	if changed {
		e.logger.Info("tokens refreshed", zap.String("flow", flowID), zap.String("direction", direction))
	}
}

func isForm(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/x-www-form-urlencoded")
}
