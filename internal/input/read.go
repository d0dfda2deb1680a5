package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/fetcher"
	"github.com/sells-group/contact-cli/internal/model"
)

// maxInputBytes bounds how much of an input file is read into memory.
const maxInputBytes = 256 << 20

// Reader loads company lists from local or remote locations.
type Reader struct {
	opener fetcher.Opener
	sheet  string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithSheet selects a worksheet by name for .xlsx inputs.
func WithSheet(name string) ReaderOption {
	return func(r *Reader) { r.sheet = name }
}

// NewReader creates a Reader. A nil opener uses fetcher defaults.
func NewReader(opener fetcher.Opener, opts ...ReaderOption) *Reader {
	if opener == nil {
		opener = fetcher.NewSourceOpener(nil, nil)
	}
	r := &Reader{opener: opener}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Format identifies an input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// DetectFormat picks a format from the location's extension, falling back
// to the content: a leading '[' means JSON, a zip header means XLSX, and a
// first line with more tabs than commas means TSV.
func DetectFormat(location string, head []byte) Format {
	p := location
	if u, err := url.Parse(location); err == nil && fetcher.Scheme(location) != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	}

	trimmed := bytes.TrimLeft(head, " \t\r\n\ufeff")
	switch {
	case bytes.HasPrefix(trimmed, []byte("[")):
		return FormatJSON
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return FormatXLSX
	}
	first := trimmed
	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if bytes.Count(first, []byte("\t")) > bytes.Count(first, []byte(",")) {
		return FormatTSV
	}
	return FormatCSV
}

// Read loads and normalizes the companies at location.
func (r *Reader) Read(ctx context.Context, location string) ([]model.CompanyRecord, error) {
	rc, err := r.opener.Open(ctx, location)
	if err != nil {
		return nil, eris.Wrap(err, "input: open")
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(rc, maxInputBytes))
	if err != nil {
		return nil, eris.Wrap(err, "input: read")
	}

	header, rows, err := r.parse(ctx, DetectFormat(location, data), data)
	if err != nil {
		return nil, err
	}
	return Normalize(header, rows)
}

func (r *Reader) parse(ctx context.Context, f Format, data []byte) ([]string, [][]string, error) {
	switch f {
	case FormatXLSX:
		return fetcher.ReadXLSX(data, fetcher.XLSXOptions{SheetName: r.sheet})
	case FormatJSON:
		return ParseJSON(data)
	case FormatTSV:
		return fetcher.ReadTable(ctx, bytes.NewReader(data), '\t')
	default:
		return fetcher.ReadTable(ctx, bytes.NewReader(data), ',')
	}
}

// ParseJSON converts a JSON array of objects into a header and rows. The
// header is the sorted union of object keys. Non-string scalars are
// formatted; nested values are encoded as JSON.
func ParseJSON(data []byte) ([]string, [][]string, error) {
	var objs []map[string]any
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, nil, eris.Wrap(err, "input: decode json array")
	}

	keys := make(map[string]struct{})
	for _, o := range objs {
		for k := range o {
			keys[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)

	rows := make([][]string, 0, len(objs))
	for _, o := range objs {
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = jsonCell(o[k])
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func jsonCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
