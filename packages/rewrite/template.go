package rewrite

import (
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/riskproxy/packages/builtin"
)

// Placeholder names bound to the dynamic tokens.
const (
	PlaceholderTimestamp = "timestamp"
	PlaceholderNonce     = "nonce"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Template is the read-only payload text with {{name}} placeholders.
type Template struct {
	text  string
	funcs *builtin.Registry
}

// NewTemplate parses text. funcs resolves helper calls like {{uuid()}}; it
// may be nil.
func NewTemplate(text string, funcs *builtin.Registry) *Template {
	if funcs == nil {
		funcs = builtin.NewRegistry(nil)
	}
	return &Template{text: text, funcs: funcs}
}

// Text returns the raw template.
func (t *Template) Text() string {
	return t.text
}

// Placeholders lists the placeholder names in order of appearance.
func (t *Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(t.text, -1) {
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Render substitutes values, then helper calls. Unknown placeholders are
// left in place.
func (t *Template) Render(values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(t.text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := values[name]; ok {
			return v
		}
		if v, ok := t.funcs.Call(name); ok {
			return v
		}
		return match
	})
}

// RenderAll replaces every placeholder, helpers included, with value.
func (t *Template) RenderAll(value string) string {
	return placeholderPattern.ReplaceAllLiteralString(t.text, value)
}
