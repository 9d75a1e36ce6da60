package capture

import (
	"regexp"

	"github.com/abdul-hamid-achik/riskproxy/packages/tokens"
)

// The nonce is opaque: in body text it runs up to the next field, markup or
// whitespace delimiter, and a decoded form value is taken whole.
const (
	timestampValue = `\d{8,}`
	nonceValue     = `[^&#|;<"'\s]+`
	nonceForm      = `.+`
)

// Separator conventions the application uses to reflect dynamic tokens in
// body text.
const (
	SepEquals = "="
	SepHash   = "#*#"
)

// cookiePattern matches name=value in a Cookie or Set-Cookie header, up to
// the next ';' or the end of the header.
func cookiePattern(name tokens.Name) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|;)\s*` + regexp.QuoteMeta(string(name)) + `=([^;]*)`)
}

// bodyPatterns returns one pattern per separator convention, in the order
// they are tried.
func bodyPatterns(name tokens.Name, value string) []*regexp.Regexp {
	prefix := `(?:^|[^A-Za-z0-9_])` + regexp.QuoteMeta(string(name))
	return []*regexp.Regexp{
		regexp.MustCompile(prefix + regexp.QuoteMeta(SepEquals) + `(` + value + `)`),
		regexp.MustCompile(prefix + regexp.QuoteMeta(SepHash) + `(` + value + `)`),
	}
}

func exact(value string) *regexp.Regexp {
	return regexp.MustCompile(`^` + value + `$`)
}
