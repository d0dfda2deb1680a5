package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/internal/store"
	"github.com/sells-group/contact-cli/internal/validate"
	"github.com/sells-group/contact-cli/internal/waterfall"
)

var (
	joes    = model.CompanyRecord{Row: 1, Name: "Joe's Plumbing", Domain: "joesplumbing.com"}
	acme    = model.CompanyRecord{Row: 2, Name: "Acme Roofing", Domain: "acme.com"}
	nobody  = model.CompanyRecord{Row: 3, Name: "Nobody Inc"}
	fixture = []provider.FixtureProvider{
		{
			Metadata: provider.Metadata{Name: "places", Priority: 30, UnitCostUSD: 0.032,
				Fields: []model.Field{model.FieldName, model.FieldTitle, model.FieldPhone}},
			Discover: map[string][]map[model.Field]string{
				"joesplumbing.com": {{model.FieldName: "Joe Smith", model.FieldTitle: "Owner", model.FieldPhone: "+15551234567"}},
			},
		},
		{
			Metadata: provider.Metadata{Name: "hunter", Priority: 15, UnitCostUSD: 0.034,
				Fields: []model.Field{model.FieldEmail}},
			Discover: map[string][]map[model.Field]string{
				"joesplumbing.com": {{model.FieldName: "Joe Smith", model.FieldEmail: "joe@joesplumbing.com"}},
			},
		},
		{
			Metadata: provider.Metadata{Name: "search", Priority: 40, UnitCostUSD: 0.005,
				Fields: []model.Field{model.FieldName, model.FieldTitle}},
			Discover: map[string][]map[model.Field]string{
				"acme.com": {
					{model.FieldName: "Bob Jones", model.FieldTitle: "Technician"},
					{model.FieldName: "Ann Lee", model.FieldTitle: "Owner", model.FieldEmail: "ann@acme.com"},
				},
			},
		},
	}
)

func newPipeline(t *testing.T, st store.Store, cfg Config, fixtures ...provider.FixtureProvider) *Pipeline {
	t.Helper()
	if len(fixtures) == 0 {
		fixtures = fixture
	}
	reg := provider.NewRegistry()
	fx := &provider.Fixtures{Providers: fixtures}
	require.NoError(t, fx.Register(reg))
	caller := provider.NewCaller(
		cache.New(cache.NewMemoryBackend(), cache.DefaultTTLs()),
		resilience.NewCooldowns(resilience.CooldownConfig{}),
		provider.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
	)
	wf := waterfall.NewExecutor(waterfall.Config{
		Targets:                []model.Field{model.FieldEmail, model.FieldPhone},
		MaxCostPerCandidateUSD: 1,
	}, reg, caller)
	v, err := validate.New(validate.DefaultConfig())
	require.NoError(t, err)

	opts := []Option{WithConfig(cfg)}
	if st != nil {
		opts = append(opts, WithStore(st))
	}
	return New(discovery.New(reg, caller, discovery.Config{}), wf, v, opts...)
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "contact.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestProcessCompany_JoesPlumbing(t *testing.T) {
	p := newPipeline(t, nil, DefaultConfig())

	res := p.ProcessCompany(context.Background(), joes)

	assert.Equal(t, "joesplumbing.com", res.CompanyIdentifier)
	require.Len(t, res.Contacts, 1)
	top := res.Contacts[0]
	assert.Equal(t, "Joe Smith", top.Candidate.Name)
	assert.Equal(t, "+15551234567", top.Candidate.Phone)
	assert.Equal(t, "joe@joesplumbing.com", top.Candidate.Email)
	assert.True(t, top.Validation.IsValid)
	assert.GreaterOrEqual(t, top.Validation.Confidence, validate.DefaultRuleConfig().Threshold)
	require.NotNil(t, top.Enrichment)
	assert.Equal(t, string(waterfall.StateSatisfied), top.Enrichment.State)
	assert.Empty(t, res.Errors)
	assert.InDelta(t, 0.071, res.CostUSD, 1e-9, "search answered no match and is still charged")
}

func TestProcessCompany_NoMatchesIsEmpty(t *testing.T) {
	p := newPipeline(t, nil, DefaultConfig())

	res := p.ProcessCompany(context.Background(), nobody)

	assert.NotNil(t, res.Contacts)
	assert.Empty(t, res.Contacts)
	assert.Empty(t, res.Errors)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"contacts":[]`)
}

func TestProcessCompany_SortsByConfidence(t *testing.T) {
	p := newPipeline(t, nil, DefaultConfig())

	res := p.ProcessCompany(context.Background(), acme)

	require.Len(t, res.Contacts, 2)
	assert.Equal(t, "Ann Lee", res.Contacts[0].Candidate.Name)
	assert.Equal(t, "Bob Jones", res.Contacts[1].Candidate.Name)
	assert.Greater(t, res.Contacts[0].Validation.Confidence, res.Contacts[1].Validation.Confidence)
	assert.Equal(t, string(waterfall.StateExhausted), res.Contacts[1].Enrichment.State)
}

func TestProcessCompany_ProviderFailureRecorded(t *testing.T) {
	broken := provider.FixtureProvider{
		Metadata: provider.Metadata{Name: "broken", Priority: 5, Fields: []model.Field{model.FieldName}},
		Fail:     provider.FailError,
	}
	p := newPipeline(t, nil, DefaultConfig(), append([]provider.FixtureProvider{broken}, fixture...)...)

	res := p.ProcessCompany(context.Background(), joes)

	require.Len(t, res.Contacts, 1)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, model.StageDiscovery, res.Errors[0].Stage)
	assert.Equal(t, "broken", res.Errors[0].Provider)
}

func TestRun_InputOrderAndCheckpoints(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	p := newPipeline(t, st, Config{Concurrency: 3, CheckpointInterval: 2})

	out, err := p.Run(ctx, []model.CompanyRecord{joes, nobody, acme}, RunOptions{Input: "leads.csv", Segment: validate.SegmentSMB})
	require.NoError(t, err)

	require.Len(t, out.Results, 3)
	assert.Equal(t, "joesplumbing.com", out.Results[0].CompanyIdentifier)
	assert.Equal(t, "nobody inc", out.Results[1].CompanyIdentifier)
	assert.Equal(t, "acme.com", out.Results[2].CompanyIdentifier)

	assert.Equal(t, model.RunStatusComplete, out.Run.Status)
	require.NotNil(t, out.Run.Summary)
	assert.Equal(t, 3, out.Run.Summary.Companies)
	assert.Equal(t, 2, out.Run.Summary.WithContacts)
	assert.Equal(t, 2, out.Run.Summary.ValidContacts)

	stored, err := st.GetRun(ctx, out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	assert.Equal(t, "leads.csv", stored.Input)

	recs, err := st.LoadCheckpoints(ctx, out.Run.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestRun_ResumeSkipsCheckpointed(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	run, err := st.CreateRun(ctx, model.Run{Input: "leads.csv", Total: 2})
	require.NoError(t, err)

	saved, err := json.Marshal(model.CompanyResult{CompanyIdentifier: joes.Key(), Company: joes, Contacts: []model.ContactResult{}, CostUSD: 9.99})
	require.NoError(t, err)
	require.NoError(t, st.SaveCheckpoints(ctx, []store.CheckpointRecord{
		{RunID: run.ID, Index: 0, CompanyKey: joes.Key(), Result: saved},
		{RunID: run.ID, Index: 1, CompanyKey: "someone-else.com", Result: saved},
	}))

	p := newPipeline(t, st, DefaultConfig())
	out, err := p.Run(ctx, []model.CompanyRecord{joes, acme}, RunOptions{ResumeID: run.ID})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.InDelta(t, 9.99, out.Results[0].CostUSD, 1e-9, "restored from checkpoint")
	assert.Equal(t, "acme.com", out.Results[1].CompanyIdentifier, "mismatched checkpoint reprocessed")
	assert.Len(t, out.Results[1].Contacts, 2)
	assert.Equal(t, 1, out.Run.Summary.Resumed)
	assert.Equal(t, run.ID, out.Run.ID)
}

func TestRun_ResumeErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newPipeline(t, nil, DefaultConfig()).Run(ctx, []model.CompanyRecord{joes}, RunOptions{ResumeID: "abc"})
	assert.ErrorContains(t, err, "requires a store")

	st := newStore(t)
	run, err := st.CreateRun(ctx, model.Run{Total: 1})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, nil))

	p := newPipeline(t, st, DefaultConfig())
	_, err = p.Run(ctx, []model.CompanyRecord{joes}, RunOptions{ResumeID: run.ID})
	assert.ErrorContains(t, err, "already complete")

	run2, err := st.CreateRun(ctx, model.Run{Total: 5})
	require.NoError(t, err)
	_, err = p.Run(ctx, []model.CompanyRecord{joes}, RunOptions{ResumeID: run2.ID})
	assert.ErrorContains(t, err, "had 5 companies")
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, nil, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Run(ctx, []model.CompanyRecord{joes, acme}, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, model.RunStatusFailed, out.Run.Status)
	assert.Empty(t, out.Results)
}
