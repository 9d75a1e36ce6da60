package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/decoder"
	"github.com/abdul-hamid-achik/riskproxy/packages/history"
)

// JSONReading is the JSON form of a reading
type JSONReading struct {
	Key        string  `json:"key,omitempty"`
	Value      float64 `json:"value"`
	Formatted  string  `json:"formatted"`
	Raw        string  `json:"raw"`
	Source     string  `json:"source"`
	Snapshot   string  `json:"snapshot,omitempty"`
	ObservedAt string  `json:"observedAt,omitempty"`
}

// JSONNotFound reports a snapshot without a value
type JSONNotFound struct {
	Snapshot string `json:"snapshot"`
	Found    bool   `json:"found"`
}

// JSONError carries an error message
type JSONError struct {
	Error string `json:"error"`
}

// JSONFormatter writes one JSON document per call
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func toJSONReading(r history.Reading) JSONReading {
	j := JSONReading{
		Key:       r.Key,
		Value:     r.Value,
		Formatted: r.Formatted,
		Raw:       r.Raw,
		Source:    r.Source,
		Snapshot:  r.Snapshot,
	}
	if !r.ObservedAt.IsZero() {
		j.ObservedAt = r.ObservedAt.Format(time.RFC3339)
	}
	return j
}

func (f *JSONFormatter) FormatReading(r history.Reading) {
	f.encode(toJSONReading(r))
}

func (f *JSONFormatter) FormatNotFound(path string) {
	f.encode(JSONNotFound{Snapshot: path})
}

// FormatRow writes the first data row as a header → value object.
func (f *JSONFormatter) FormatRow(cells []decoder.Cell) {
	row := make(map[string]string, len(cells))
	for _, c := range cells {
		row[columnName(c)] = c.Raw
	}
	f.encode(row)
}

func (f *JSONFormatter) FormatReadings(readings []history.Reading) {
	out := make([]JSONReading, 0, len(readings))
	for _, r := range readings {
		out = append(out, toJSONReading(r))
	}
	f.encode(out)
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(JSONError{Error: err.Error()})
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
