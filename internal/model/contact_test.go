package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCandidate_RequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := NewCandidate(SourceTag{}, map[Field]string{FieldName: "Joe Smith"}, PayloadRef{})
	require.ErrorIs(t, err, ErrNoProvenance)
}

func TestNewCandidate_SetsFields(t *testing.T) {
	t.Parallel()

	c, err := NewCandidate(
		SourceTag{Provider: "search", Kind: SourceDiscover, Priority: 3},
		map[Field]string{FieldName: " Joe Smith ", FieldEmail: "Joe@JoesPlumbing.com"},
		PayloadRef{Provider: "search", CacheKey: "k1"},
	)
	require.NoError(t, err)

	assert.Equal(t, "Joe Smith", c.Name)
	assert.Equal(t, "joe@joesplumbing.com", c.Email)
	assert.Len(t, c.Sources(), 1)
	assert.Equal(t, 1, c.Version)
	assert.Equal(t, []Field{FieldPhone}, c.Missing([]Field{FieldEmail, FieldPhone}))
}

func TestWithField_ReturnsNewVersion(t *testing.T) {
	t.Parallel()

	orig, err := NewCandidate(SourceTag{Provider: "places", Kind: SourceDiscover}, map[Field]string{FieldName: "Joe Smith"}, PayloadRef{})
	require.NoError(t, err)

	next := orig.WithField(FieldEmail, "joe@joesplumbing.com", SourceTag{Provider: "hunter", Kind: SourceEnrich}, PayloadRef{Provider: "hunter", CacheKey: "k2"})

	assert.Empty(t, orig.Email)
	assert.Len(t, orig.Sources(), 1)
	assert.Equal(t, "joe@joesplumbing.com", next.Email)
	assert.Equal(t, 2, next.Version)
	require.Len(t, next.Sources(), 2)
	assert.Equal(t, FieldEmail, next.Sources()[1].Field)
	assert.Len(t, next.PayloadRefs, 1)
}

func TestWithField_DoesNotOverwrite(t *testing.T) {
	t.Parallel()

	c, err := NewCandidate(SourceTag{Provider: "a"}, map[Field]string{FieldPhone: "5125550100"}, PayloadRef{})
	require.NoError(t, err)

	next := c.WithField(FieldPhone, "9999999999", SourceTag{Provider: "b"}, PayloadRef{})
	assert.Equal(t, "5125550100", next.Phone)
	assert.Equal(t, []string{"a", "b"}, next.Providers())
}

func TestSources_ReturnsCopy(t *testing.T) {
	t.Parallel()

	c, err := NewCandidate(SourceTag{Provider: "a"}, nil, PayloadRef{})
	require.NoError(t, err)

	s := c.Sources()
	s[0].Provider = "mutated"
	assert.Equal(t, "a", c.Sources()[0].Provider)
}

func TestBestPriority(t *testing.T) {
	t.Parallel()

	c, err := NewCandidate(SourceTag{Provider: "a", Priority: 5}, nil, PayloadRef{})
	require.NoError(t, err)
	c = c.WithField(FieldEmail, "x@y.com", SourceTag{Provider: "b", Priority: 2}, PayloadRef{})
	assert.Equal(t, 2, c.BestPriority())
}

func TestCandidateJSON_RoundTripKeepsSources(t *testing.T) {
	t.Parallel()

	c, err := NewCandidate(SourceTag{Provider: "website", Kind: SourceDiscover, Priority: 2}, map[Field]string{FieldName: "Ann Lee"}, PayloadRef{})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sources":[{"provider":"website"`)

	var back CandidateContact
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Sources(), back.Sources())
	assert.Equal(t, "Ann Lee", back.Name)
}

func TestCandidateJSON_RejectsMissingSources(t *testing.T) {
	t.Parallel()

	var c CandidateContact
	err := json.Unmarshal([]byte(`{"name":"Nobody","sources":[]}`), &c)
	require.ErrorIs(t, err, ErrNoProvenance)
}
