// Package discovery fans a company out to every applicable discovery
// adapter and merges the returned candidates into ranked, distinct
// identities.
package discovery

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/internal/resilience"
)

// Config controls the orchestrator.
type Config struct {
	// Concurrency bounds how many companies DiscoverBatch processes at once.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// NameThreshold is the minimum name-token Jaccard similarity for two
	// candidates to be the same person.
	NameThreshold float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	// MaxCandidates caps the ranked output per company. Zero keeps all.
	MaxCandidates int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{Concurrency: 8, NameThreshold: 0.5, MaxCandidates: 10}
}

// ProviderHit records how one adapter answered for one company.
type ProviderHit struct {
	Provider   string  `json:"provider"`
	Outcome    string  `json:"outcome"`
	Candidates int     `json:"candidates"`
	Cached     bool    `json:"cached"`
	Attempts   int     `json:"attempts"`
	CostUSD    float64 `json:"cost_usd"`
}

// CompanyDiscovery is the merged discovery result for one company.
type CompanyDiscovery struct {
	Company    model.CompanyRecord      `json:"company"`
	Candidates []model.CandidateContact `json:"candidates"`
	Hits       []ProviderHit            `json:"hits"`
	Errors     []model.StageError       `json:"errors,omitempty"`
	CostUSD    float64                  `json:"cost_usd"`
}

// Hit returns the hit recorded for provider name.
func (d CompanyDiscovery) Hit(name string) (ProviderHit, bool) {
	for _, h := range d.Hits {
		if h.Provider == name {
			return h, true
		}
	}
	return ProviderHit{}, false
}

// Orchestrator issues discovery calls and merges their results.
type Orchestrator struct {
	registry *provider.Registry
	caller   *provider.Caller
	cfg      Config
}

// New creates an Orchestrator over the registry's discoverers.
func New(registry *provider.Registry, caller *provider.Caller, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.NameThreshold <= 0 {
		cfg.NameThreshold = def.NameThreshold
	}
	return &Orchestrator{registry: registry, caller: caller, cfg: cfg}
}

// Discover queries every registered discoverer for company.
func (o *Orchestrator) Discover(ctx context.Context, company model.CompanyRecord) CompanyDiscovery {
	return o.DiscoverWith(ctx, company, o.registry.Discoverers())
}

// DiscoverWith queries only the given discoverers. Each call is isolated:
// a failing or slow provider never affects its siblings. Candidates are
// merged in the order of ds, so ds should be priority ordered.
func (o *Orchestrator) DiscoverWith(ctx context.Context, company model.CompanyRecord, ds []provider.Discoverer) CompanyDiscovery {
	log := zap.L().With(zap.String("company", company.Key()))

	type answer struct {
		cands []model.CandidateContact
		info  provider.CallInfo
		err   error
	}
	answers := make([]answer, len(ds))

	var g errgroup.Group
	for i, d := range ds {
		g.Go(func() error {
			cands, info, err := o.caller.Discover(ctx, d, company)
			answers[i] = answer{cands: cands, info: info, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := CompanyDiscovery{Company: company}
	var all []model.CandidateContact
	for i, a := range answers {
		name := ds[i].Metadata().Name
		hit := ProviderHit{
			Provider:   name,
			Outcome:    provider.OutcomeOf(a.err),
			Candidates: len(a.cands),
			Cached:     a.info.Cached,
			Attempts:   a.info.Attempts,
			CostUSD:    a.info.CostUSD,
		}
		if a.err == nil && a.info.Cached {
			hit.Outcome = provider.OutcomeCached
		}
		out.Hits = append(out.Hits, hit)
		out.CostUSD += a.info.CostUSD

		if recordable(a.err) {
			log.Debug("discovery: provider failed", zap.String("provider", name), zap.Error(a.err))
			out.Errors = append(out.Errors, model.StageError{
				Stage:    model.StageDiscovery,
				Provider: name,
				Message:  a.err.Error(),
			})
		}
		all = append(all, a.cands...)
	}

	out.Candidates = Merge(all, company.Domain, o.cfg.NameThreshold)
	if o.cfg.MaxCandidates > 0 && len(out.Candidates) > o.cfg.MaxCandidates {
		out.Candidates = out.Candidates[:o.cfg.MaxCandidates]
	}

	log.Debug("discovery complete",
		zap.Int("raw", len(all)),
		zap.Int("identities", len(out.Candidates)),
		zap.Int("errors", len(out.Errors)),
	)
	return out
}

// DiscoverBatch runs Discover for every company, at most Concurrency at a
// time, and returns results in input order. It stops early only when ctx
// is cancelled.
func (o *Orchestrator) DiscoverBatch(ctx context.Context, companies []model.CompanyRecord) ([]CompanyDiscovery, error) {
	out := make([]CompanyDiscovery, len(companies))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, c := range companies {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = o.Discover(gCtx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// recordable reports whether err should appear on the company's error list.
// Confirmed absences and inapplicable adapters are normal results.
func recordable(err error) bool {
	if err == nil || resilience.IsNoMatch(err) {
		return false
	}
	return provider.OutcomeOf(err) != provider.OutcomeNotApplicable
}
