// Package classify decides which intercepted exchanges belong to the
// monitored application and which of those are the canonical query.
package classify

import (
	"net/url"
	"strings"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
)

// Signature is the set of form values that define the default, unfiltered
// query.
type Signature struct {
	EmptyFields   []string
	DefaultFields []string
	DefaultValue  string
	QueryField    string
	QueryText     string
}

// Classification is computed once per flow at request time.
type Classification struct {
	Monitored bool
	Canonical bool
}

// Classifier holds the immutable matching configuration.
type Classifier struct {
	host         string
	prefix       string
	canonicalURL string
	sig          Signature
}

// New creates a Classifier.
func New(host, monitoredPrefix, canonicalURL string, sig Signature) *Classifier {
	return &Classifier{
		host:         host,
		prefix:       monitoredPrefix,
		canonicalURL: canonicalURL,
		sig:          sig,
	}
}

// FromConfig builds a Classifier from the target and canonical sections.
func FromConfig(cfg *config.Config) *Classifier {
	return New(cfg.Target.Host, cfg.Target.MonitoredPrefix, cfg.Target.CanonicalURL, Signature{
		EmptyFields:   cfg.Canonical.EmptyFields,
		DefaultFields: cfg.Canonical.DefaultFields,
		DefaultValue:  cfg.Canonical.DefaultValue,
		QueryField:    cfg.Canonical.QueryField,
		QueryText:     cfg.Canonical.QueryText,
	})
}

// IsMonitored reports whether host is the target host and rawURL lies
// under the monitored prefix.
func (c *Classifier) IsMonitored(host, rawURL string) bool {
	return host == c.host && strings.HasPrefix(rawURL, c.prefix)
}

// IsCanonicalURL reports whether rawURL addresses the canonical endpoint.
// Query strings are allowed.
func (c *Classifier) IsCanonicalURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, c.canonicalURL)
}

// IsCanonical reports whether body is the unfiltered query. A body that does
// not parse as form data is never canonical.
func (c *Classifier) IsCanonical(body []byte) bool {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return false
	}

	for _, f := range c.sig.EmptyFields {
		for _, v := range form[f] {
			if v != "" {
				return false
			}
		}
	}

	for _, f := range c.sig.DefaultFields {
		if !allEqual(form[f], c.sig.DefaultValue) {
			return false
		}
	}

	return allEqual(form[c.sig.QueryField], c.sig.QueryText)
}

// allEqual reports whether values is non-empty and every entry equals want.
// A repeated field is only canonical when no occurrence differs.
func allEqual(values []string, want string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v != want {
			return false
		}
	}
	return true
}

// Classify combines the monitored, canonical URL and canonical body checks.
func (c *Classifier) Classify(host, rawURL string, body []byte) Classification {
	if !c.IsMonitored(host, rawURL) {
		return Classification{}
	}
	return Classification{
		Monitored: true,
		Canonical: c.IsCanonicalURL(rawURL) && c.IsCanonical(body),
	}
}
