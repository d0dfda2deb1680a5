package validate

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/model"
)

var joes = model.CompanyRecord{Name: "Joe's Plumbing", Domain: "joesplumbing.com"}

func contact(t *testing.T, providers []string, fields map[model.Field]string) model.CandidateContact {
	t.Helper()
	require.NotEmpty(t, providers)
	c, err := model.NewCandidate(model.SourceTag{Provider: providers[0], Kind: model.SourceDiscover}, fields, model.PayloadRef{})
	require.NoError(t, err)
	for _, p := range providers[1:] {
		next, err := model.NewCandidate(model.SourceTag{Provider: p, Kind: model.SourceDiscover}, nil, model.PayloadRef{})
		require.NoError(t, err)
		c = c.Absorb(next)
	}
	return c
}

func TestRuleValidator_JoesPlumbing(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	c := contact(t, []string{"places", "hunter"}, map[model.Field]string{
		model.FieldName:  "Joe Smith",
		model.FieldTitle: "Owner",
		model.FieldPhone: "+15551234567",
		model.FieldEmail: "joe@joesplumbing.com",
	})

	res := v.Validate(context.Background(), joes, c)

	assert.True(t, res.IsValid)
	assert.Equal(t, model.StrategyRule, res.Strategy)
	assert.Equal(t, []model.Contribution{
		{Criterion: "source:places", Points: 15},
		{Criterion: "source:hunter", Points: 20},
		{Criterion: "title", Points: 30},
		{Criterion: "phone", Points: 10},
		{Criterion: "domain_email", Points: 20},
		{Criterion: "full_name", Points: 10},
	}, res.Breakdown)
	assert.Equal(t, 100, res.Confidence, "105 is capped")
	assert.Equal(t, model.ClampConfidence(res.Sum()), res.Confidence)
}

func TestRuleValidator_RejectsBelowThreshold(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	c := contact(t, []string{"search"}, map[model.Field]string{
		model.FieldName:  "Joe",
		model.FieldTitle: "Technician",
		model.FieldEmail: "joe@gmail.com",
	})

	res := v.Validate(context.Background(), joes, c)

	assert.False(t, res.IsValid)
	assert.Equal(t, 15, res.Confidence)
	assert.Contains(t, res.Reasons, "email is not on joesplumbing.com")
	assert.Equal(t, "rejected: 15 < 60", res.Reasons[len(res.Reasons)-1])
}

func TestRuleValidator_SumInvariant(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	cases := []map[model.Field]string{
		{},
		{model.FieldName: "Ann Lee"},
		{model.FieldName: "Ann Lee", model.FieldTitle: "Vice President", model.FieldProfileURL: "https://linkedin.com/in/ann"},
		{model.FieldName: "Ann Lee", model.FieldTitle: "CEO", model.FieldPhone: "1", model.FieldEmail: "ann@joesplumbing.com"},
	}
	for _, fields := range cases {
		c := contact(t, []string{"website", "apollo", "profile", "unknown"}, fields)
		res := v.Score(joes, c)
		assert.Equal(t, model.ClampConfidence(res.Sum()), res.Confidence)
		assert.LessOrEqual(t, res.Confidence, 100)
	}
}

func TestRuleValidator_Deterministic(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	c := contact(t, []string{"website", "search", "website"}, map[model.Field]string{
		model.FieldName:  "Maria Garcia",
		model.FieldTitle: "Co-Founder & President",
		model.FieldEmail: "maria@joesplumbing.com",
	})

	first := v.Score(joes, c)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, v.Score(joes, c)); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
	assert.Equal(t, "source:website", first.Breakdown[0].Criterion)
	assert.Equal(t, "source:search", first.Breakdown[1].Criterion)
	assert.Len(t, first.Breakdown, 5, "duplicate providers count once")
}

func TestRuleValidator_TitleCategory(t *testing.T) {
	v := NewRuleValidator(DefaultRuleConfig())
	tests := []struct {
		title string
		want  string
	}{
		{"", TitleNone},
		{"Owner", TitleStrongOwner},
		{"Co-Owner", TitleStrongOwner},
		{"Founder/CEO", TitleStrongOwner},
		{"Managing Partner", TitleStrongOwner},
		{"Vice President of Sales", TitleOwnerAdjacent},
		{"Assistant to the Owner", TitleOwnerAdjacent},
		{"Office Manager", TitleOwnerAdjacent},
		{"Head of Operations", TitleOwnerAdjacent},
		{"Lead Technician", TitleOther},
		{"Landowner Relations", TitleOther},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, v.TitleCategory(tt.title))
		})
	}
}

func TestEmailMatchesDomain(t *testing.T) {
	assert.True(t, EmailMatchesDomain("joe@joesplumbing.com", "joesplumbing.com"))
	assert.True(t, EmailMatchesDomain("joe@mail.joesplumbing.com", "www.joesplumbing.com"))
	assert.True(t, EmailMatchesDomain("Joe@JoesPlumbing.com", "joesplumbing.com"))
	assert.False(t, EmailMatchesDomain("joe@notjoesplumbing.com", "joesplumbing.com"))
	assert.False(t, EmailMatchesDomain("joe@joesplumbing.com", ""))
	assert.False(t, EmailMatchesDomain("joe", "joesplumbing.com"))
}

func TestValidateRuleConfig(t *testing.T) {
	require.NoError(t, ValidateRuleConfig(DefaultRuleConfig()))

	bad := DefaultRuleConfig()
	bad.PhoneBonus = -1
	bad.Threshold = 0
	bad.TitlePoints.Other = 40
	bad.SourcePoints["search"] = -5

	err := ValidateRuleConfig(bad)
	require.Error(t, err)
	for _, want := range []string{
		"phone_bonus must be >= 0",
		"threshold must be between 1 and 100",
		"title_points must be ordered",
		"source_points.search must be >= 0",
	} {
		assert.Contains(t, err.Error(), want)
	}
}
