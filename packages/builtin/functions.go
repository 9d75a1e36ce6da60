package builtin

import (
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Func computes a template value from its arguments.
type Func func(args []string) string

// Registry resolves helper calls such as timestampMs() or nonce(24).
type Registry struct {
	funcs map[string]Func
	now   func() time.Time
}

// NewRegistry returns a registry with the default helpers. now may be nil.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{
		funcs: make(map[string]Func),
		now:   now,
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = func(_ []string) string { return r.now().UTC().Format(time.RFC3339) }
	r.funcs["timestampMs"] = func(_ []string) string { return TimestampMs(r.now()) }
	r.funcs["uuid"] = func(_ []string) string { return uuid.NewString() }
	r.funcs["nonce"] = funcNonce
	r.funcs["random"] = funcRandom
	r.funcs["date"] = func(args []string) string {
		format := "02-Jan-2006"
		if len(args) >= 1 && args[0] != "" {
			format = args[0]
		}
		return r.now().Format(format)
	}
	r.funcs["urlEncode"] = func(args []string) string {
		if len(args) < 1 {
			return ""
		}
		return url.QueryEscape(args[0])
	}
}

// Register adds or replaces a helper.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates expr if it is a call to a registered helper.
func (r *Registry) Call(expr string) (string, bool) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return "", false
	}

	fn, ok := r.funcs[matches[1]]
	if !ok {
		return "", false
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}
	return fn(args), true
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

// TimestampMs formats t as epoch milliseconds, the format of IXHRts.
func TimestampMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Nonce returns a random alphanumeric string of length n.
func Nonce(n int) string {
	if n <= 0 {
		n = 16
	}
	result := make([]byte, n)
	for i := range result {
		result[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(result)
}

func funcNonce(args []string) string {
	length := 16
	if len(args) >= 1 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			length = v
		}
	}
	return Nonce(length)
}

func funcRandom(args []string) string {
	min, max := 0, 100
	if len(args) >= 2 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			min = v
		}
		if v, err := strconv.Atoi(args[1]); err == nil {
			max = v
		}
	}
	if max < min {
		min, max = max, min
	}
	return strconv.Itoa(rand.Intn(max-min+1) + min)
}
