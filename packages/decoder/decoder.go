package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abdul-hamid-achik/riskproxy/packages/core/config"
)

// Source names the strategy that located a field.
type Source string

const (
	SourceIndexRaw     Source = "svrVal/index"
	SourceIndexVisible Source = "visible/index"
	SourceColumnList   Source = "wcStrut"
	SourceFirstNumeric Source = "first_numeric_fallback"
)

// ErrNotFound is returned by DecodeFile when the page has no usable value.
var ErrNotFound = errors.New("field not found")

var quotedKey = regexp.MustCompile(`'([^']+)'`)

// Field is one decoded table value.
type Field struct {
	Value  float64
	Raw    string
	Source Source
}

// Formatted returns Value with thousands separators and two decimals.
func (f *Field) Formatted() string {
	return FormatNumber(f.Value)
}

// Cell is one column of the first data row.
type Cell struct {
	Header string
	Key    string
	Raw    string
}

// Decoder holds the page layout settings.
type Decoder struct {
	tableID    string
	label      string
	listPrefix string
	retries    int
	retryDelay time.Duration
}

// Option is a functional option for Decoder
type Option func(*Decoder)

// WithTableID sets the id of the table to read
func WithTableID(id string) Option {
	return func(d *Decoder) {
		d.tableID = id
	}
}

// WithLabel sets the header text used when no header attribute matches
func WithLabel(label string) Option {
	return func(d *Decoder) {
		d.label = label
	}
}

// WithColumnListPrefix sets the id prefix of the hidden column list input
func WithColumnListPrefix(prefix string) Option {
	return func(d *Decoder) {
		d.listPrefix = prefix
	}
}

// WithRetry sets how often DecodeFile re-reads a file that is missing or
// yields nothing.
func WithRetry(retries int, delay time.Duration) Option {
	return func(d *Decoder) {
		d.retries = retries
		d.retryDelay = delay
	}
}

// New creates a Decoder for the RSK335 page layout.
func New(opts ...Option) *Decoder {
	d := &Decoder{
		tableID:    "RSK335_Table",
		label:      "margin utilization",
		listPrefix: "wcStrut",
		retries:    2,
		retryDelay: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FromConfig creates a Decoder from the decoder section.
func FromConfig(cfg config.DecoderConfig) *Decoder {
	return New(
		WithTableID(cfg.TableID),
		WithLabel(cfg.ColumnLabel),
		WithColumnListPrefix(cfg.ColumnListPrefix),
	)
}

// ExtractField returns the value of column key in the first data row.
func (d *Decoder) ExtractField(html []byte, key string) (*Field, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, false
	}

	table := d.table(doc)
	if table == nil {
		return nil, false
	}
	cells := dataRow(table)
	if cells == nil || cells.Length() == 0 {
		return nil, false
	}

	if idx := d.headerIndex(table, key); idx >= 0 && idx < cells.Length() {
		td := cells.Eq(idx)
		if raw := rawValue(td); raw != "" {
			if v, ok := ParseNumber(raw); ok {
				return &Field{Value: v, Raw: raw, Source: SourceIndexRaw}, true
			}
		}
		visible := strings.TrimSpace(td.Text())
		if v, ok := ParseNumber(visible); ok {
			return &Field{Value: v, Raw: visible, Source: SourceIndexVisible}, true
		}
	}

	if idx := d.listIndex(doc, key); idx >= 0 && idx < cells.Length() {
		raw := cellText(cells.Eq(idx))
		if v, ok := ParseNumber(raw); ok {
			return &Field{Value: v, Raw: raw, Source: SourceColumnList}, true
		}
	}

	var found *Field
	cells.EachWithBreak(func(_ int, td *goquery.Selection) bool {
		raw := cellText(td)
		if v, ok := ParseNumber(raw); ok {
			found = &Field{Value: v, Raw: raw, Source: SourceFirstNumeric}
			return false
		}
		return true
	})
	return found, found != nil
}

// ExtractRow pairs every header with the matching cell of the first data
// row. Columns without a header are keyed by the column list when present.
func (d *Decoder) ExtractRow(html []byte) ([]Cell, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, false
	}
	table := d.table(doc)
	if table == nil {
		return nil, false
	}
	cells := dataRow(table)
	if cells == nil || cells.Length() == 0 {
		return nil, false
	}

	headers := headerCells(table)
	keys := d.columnKeys(doc)

	row := make([]Cell, 0, cells.Length())
	cells.Each(func(i int, td *goquery.Selection) {
		c := Cell{Raw: cellText(td)}
		if i < headers.Length() {
			c.Header = strings.TrimSpace(headers.Eq(i).Text())
		}
		if i < len(keys) {
			c.Key = keys[i]
		}
		row = append(row, c)
	})
	return row, true
}

// DecodeFile reads path and extracts key, retrying briefly while the file
// is missing or does not yet contain the value.
func (d *Decoder) DecodeFile(ctx context.Context, path, key string) (*Field, error) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = fmt.Errorf("reading %s: %w", path, err)
			continue
		}
		if f, ok := d.ExtractField(data, key); ok {
			return f, nil
		}
		lastErr = fmt.Errorf("%s in %s: %w", key, path, ErrNotFound)
	}
	return nil, lastErr
}

func (d *Decoder) table(doc *goquery.Document) *goquery.Selection {
	if d.tableID != "" {
		if t := doc.Find(fmt.Sprintf("table[id=%q]", d.tableID)).First(); t.Length() > 0 {
			return t
		}
	}
	if t := doc.Find("table").First(); t.Length() > 0 {
		return t
	}
	return nil
}

func headerCells(table *goquery.Selection) *goquery.Selection {
	if th := table.Find("thead th"); th.Length() > 0 {
		return th
	}
	return table.Find("tr").First().Find("th")
}

func dataRow(table *goquery.Selection) *goquery.Selection {
	var cells *goquery.Selection
	table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.ParentsFiltered("thead").Length() > 0 {
			return true
		}
		if td := tr.ChildrenFiltered("td"); td.Length() > 0 {
			cells = td
			return false
		}
		return true
	})
	return cells
}

// headerIndex matches key against header attribute names and values, then
// label against header text. It returns -1 when nothing matches.
func (d *Decoder) headerIndex(table *goquery.Selection, key string) int {
	key = strings.ToLower(strings.TrimSpace(key))
	label := strings.ToLower(strings.TrimSpace(d.label))

	idx := -1
	headerCells(table).EachWithBreak(func(i int, th *goquery.Selection) bool {
		for _, attr := range th.Nodes[0].Attr {
			if strings.ToLower(attr.Key) == key || strings.ToLower(strings.TrimSpace(attr.Val)) == key {
				idx = i
				return false
			}
		}
		if label != "" && strings.Contains(strings.ToLower(strings.TrimSpace(th.Text())), label) {
			idx = i
			return false
		}
		return true
	})
	return idx
}

func (d *Decoder) columnKeys(doc *goquery.Document) []string {
	if d.listPrefix == "" {
		return nil
	}
	input := doc.Find(fmt.Sprintf(`input[id^=%q]`, d.listPrefix)).First()
	value, ok := input.Attr("value")
	if !ok {
		return nil
	}
	var keys []string
	for _, m := range quotedKey.FindAllStringSubmatch(value, -1) {
		keys = append(keys, m[1])
	}
	return keys
}

func (d *Decoder) listIndex(doc *goquery.Document, key string) int {
	for i, k := range d.columnKeys(doc) {
		if strings.EqualFold(k, key) {
			return i
		}
	}
	return -1
}

// rawValue returns the machine-readable svrVal attribute. The HTML parser
// lower-cases attribute names.
func rawValue(td *goquery.Selection) string {
	v, _ := td.Attr("svrval")
	return strings.TrimSpace(v)
}

func cellText(td *goquery.Selection) string {
	if raw := rawValue(td); raw != "" {
		return raw
	}
	return strings.TrimSpace(td.Text())
}
