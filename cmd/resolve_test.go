package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/pipeline"
	"github.com/sells-group/contact-cli/internal/store"
)

func readOutput(t *testing.T, path string) map[string]model.CompanyResult {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close() //nolint:errcheck

	results, err := pipeline.ReadResults(fh)
	require.NoError(t, err)
	byDomain := make(map[string]model.CompanyResult, len(results))
	for _, r := range results {
		byDomain[r.Company.Domain] = r
	}
	return byDomain
}

func TestRunResolve_Fixtures(t *testing.T) {
	ctx := context.Background()
	c, dir := testConfig(t)
	in := writeFile(t, dir, "companies.csv", companiesCSV)
	out := filepath.Join(dir, "out.jsonl")

	var status bytes.Buffer
	err := runResolve(ctx, c, resolveFlags{input: in, output: out}, &status)
	require.NoError(t, err)

	byDomain := readOutput(t, out)
	require.Len(t, byDomain, 2)

	joes := byDomain["joesplumbing.com"]
	require.NotEmpty(t, joes.Contacts)
	top := joes.Contacts[0]
	assert.Equal(t, "Joe Smith", top.Candidate.Name)
	assert.Equal(t, "joe@joesplumbing.com", top.Candidate.Email)
	assert.True(t, top.Validation.IsValid)
	assert.Greater(t, joes.CostUSD, 0.0)

	assert.Empty(t, byDomain["nobody.example"].Contacts)

	assert.Contains(t, status.String(), "complete")
	assert.Contains(t, status.String(), "valid contacts: 1")

	st, err := store.Open(ctx, "sqlite", c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Summary)
	assert.Equal(t, 2, runs[0].Summary.Companies)
	assert.Equal(t, 1, runs[0].Summary.ValidContacts)
}

func TestRunResolve_CacheHitsOnSecondRun(t *testing.T) {
	ctx := context.Background()
	c, dir := testConfig(t)
	in := writeFile(t, dir, "companies.csv", companiesCSV)

	first := filepath.Join(dir, "first.json")
	require.NoError(t, runResolve(ctx, c, resolveFlags{input: in, output: first}, &bytes.Buffer{}))
	second := filepath.Join(dir, "second.json")
	require.NoError(t, runResolve(ctx, c, resolveFlags{input: in, output: second}, &bytes.Buffer{}))

	a, b := readOutput(t, first), readOutput(t, second)
	assert.Equal(t, a["joesplumbing.com"].Contacts[0].Candidate.Email, b["joesplumbing.com"].Contacts[0].Candidate.Email)
	assert.Zero(t, b["joesplumbing.com"].CostUSD, "cached provider responses are free")
}

func TestRunResolve_MissingInput(t *testing.T) {
	c, dir := testConfig(t)
	err := runResolve(context.Background(), c, resolveFlags{
		input:  filepath.Join(dir, "missing.csv"),
		output: filepath.Join(dir, "out.json"),
	}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	printRunSummary(&buf, model.Run{
		ID:     "run-1",
		Status: model.RunStatusComplete,
		Summary: &model.RunSummary{
			Companies:     10,
			Resumed:       2,
			WithContacts:  7,
			ValidContacts: 5,
			TotalCostUSD:  1.25,
		},
	})
	out := buf.String()
	assert.Contains(t, out, "run run-1: complete")
	assert.Contains(t, out, "10 (2 resumed)")
	assert.Contains(t, out, "$1.2500")

	buf.Reset()
	printRunSummary(&buf, model.Run{ID: "run-2", Status: model.RunStatusFailed})
	assert.Equal(t, "run run-2: failed\n", buf.String())
}
