package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/model"
)

func sampleResults(t *testing.T) []model.CompanyResult {
	t.Helper()
	c, err := model.NewCandidate(model.SourceTag{Provider: "places", Kind: model.SourceDiscover}, map[model.Field]string{
		model.FieldName: "Joe Smith", model.FieldPhone: "+15551234567",
	}, model.PayloadRef{})
	require.NoError(t, err)
	return []model.CompanyResult{
		{
			CompanyIdentifier: joes.Key(),
			Company:           joes,
			Contacts: []model.ContactResult{{
				Candidate:  c,
				Validation: model.NewValidationResult(model.StrategyRule, []model.Contribution{{Criterion: "phone", Points: 10}}, nil),
			}},
		},
		{CompanyIdentifier: nobody.Key(), Company: nobody, Contacts: []model.ContactResult{}},
	}
}

func TestWriteResults_JSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatJSONL, sampleResults(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"company_identifier":"joesplumbing.com"`)

	got, err := ReadResults(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"places"}, got[0].Contacts[0].Candidate.Providers())
}

func TestWriteFile_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, WriteFile(path, sampleResults(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "["))

	got, err := ReadResults(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Contacts[0].Validation.Confidence)
}

func TestWriteResults_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSONL, FormatForPath("out.jsonl"))
	assert.Equal(t, FormatJSONL, FormatForPath("OUT.NDJSON"))
	assert.Equal(t, FormatJSON, FormatForPath("out.json"))
	assert.Equal(t, FormatJSON, FormatForPath("out"))
}

func TestWriteResults_UnknownFormat(t *testing.T) {
	assert.Error(t, WriteResults(&bytes.Buffer{}, "xml", nil))
}
