package output

import (
	"github.com/abdul-hamid-achik/riskproxy/packages/decoder"
	"github.com/abdul-hamid-achik/riskproxy/packages/history"
)

// Formatter renders decoded data.
type Formatter interface {
	FormatReading(r history.Reading)
	FormatNotFound(path string)
	FormatRow(cells []decoder.Cell)
	FormatReadings(readings []history.Reading)
	FormatError(err error)
}

// New returns the formatter for format ("console" or "json").
func New(format string, opts ...ConsoleOption) Formatter {
	c := NewConsoleFormatter(opts...)
	if format == "json" {
		return NewJSONFormatter(JSONWithWriter(c.writer))
	}
	return c
}
