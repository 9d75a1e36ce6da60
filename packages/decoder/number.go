package decoder

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

var printer = message.NewPrinter(language.English)

// ParseNumber parses a formatted figure such as "1,234.50" or the
// accounting form "(1,234.50)". Values that do not convert directly fall
// back to the first number found in the text.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	clean := strings.NewReplacer(",", "", "(", "-", ")", "").Replace(s)

	if v, err := strconv.ParseFloat(clean, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v, true
	}

	m := numberPattern.FindString(clean)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatNumber renders v with thousands separators and two decimals.
func FormatNumber(v float64) string {
	return printer.Sprintf("%.2f", v)
}
