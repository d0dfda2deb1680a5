package pipeline

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// FormatForPath picks the output format from a file extension.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatJSON
	}
}

// WriteResults encodes results in format.
func WriteResults(w io.Writer, format string, results []model.CompanyResult) error {
	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for i := range results {
			if err := enc.Encode(results[i]); err != nil {
				return eris.Wrapf(err, "pipeline: encode result %d", i)
			}
		}
		return nil
	case FormatJSON, "":
		if results == nil {
			results = []model.CompanyResult{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(results), "pipeline: encode results")
	default:
		return eris.Errorf("pipeline: unknown output format %q", format)
	}
}

// WriteFile writes results to path, or to stdout when path is "" or "-".
func WriteFile(path string, results []model.CompanyResult) error {
	if path == "" || path == "-" {
		return WriteResults(os.Stdout, FormatJSON, results)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	if err := WriteResults(f, FormatForPath(path), results); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}

// ReadResults decodes results written by WriteResults in either format.
func ReadResults(r io.Reader) ([]model.CompanyResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read results")
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var out []model.CompanyResult
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, eris.Wrap(err, "pipeline: decode results")
		}
		return out, nil
	}

	var out []model.CompanyResult
	dec := json.NewDecoder(strings.NewReader(trimmed))
	for dec.More() {
		var r model.CompanyResult
		if err := dec.Decode(&r); err != nil {
			return nil, eris.Wrapf(err, "pipeline: decode result %d", len(out))
		}
		out = append(out, r)
	}
	return out, nil
}
