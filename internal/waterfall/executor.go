// Package waterfall fills missing contact fields by calling enrichment
// providers cheapest first until each candidate is satisfied or out of
// options or budget.
package waterfall

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/internal/resilience"
)

// State is a candidate's position in the waterfall.
type State string

const (
	StateNeedsField State = "needs_field"
	StateEnriching  State = "enriching"
	StateSatisfied  State = "satisfied"
	StateExhausted  State = "exhausted"
)

// Attempt outcomes.
const (
	AttemptFilled        = "filled"
	AttemptNoMatch       = "no_match"
	AttemptError         = "error"
	AttemptRateLimited   = "rate_limited"
	AttemptSkippedBudget = "skipped_budget"
)

// Terminal reasons.
const (
	ReasonComplete  = "all target fields present"
	ReasonCeiling   = "cost ceiling reached"
	ReasonExhausted = "no provider left for"
	ReasonCancelled = "cancelled"
)

// Attempt records one (field, provider) step.
type Attempt struct {
	Field    model.Field `json:"field"`
	Provider string      `json:"provider"`
	Outcome  string      `json:"outcome"`
	Cached   bool        `json:"cached,omitempty"`
	CostUSD  float64     `json:"cost_usd"`
	Error    string      `json:"error,omitempty"`
}

// Outcome is the terminal result of enriching one candidate. Candidate is
// the latest version; the input candidate is never modified.
type Outcome struct {
	Candidate model.CandidateContact `json:"candidate"`
	State     State                  `json:"state"`
	Attempts  []Attempt              `json:"attempts"`
	CostUSD   float64                `json:"cost_usd"`
	Filled    []model.Field          `json:"filled,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Errors    []model.StageError     `json:"errors,omitempty"`
}

// Summary condenses the outcome for batch output.
func (o Outcome) Summary() *model.EnrichmentSummary {
	return &model.EnrichmentSummary{
		State:    string(o.State),
		Attempts: len(o.Attempts),
		Filled:   o.Filled,
		CostUSD:  o.CostUSD,
		Reason:   o.Reason,
	}
}

// Executor runs the waterfall over the registry's enrichers.
type Executor struct {
	cfg      Config
	registry *provider.Registry
	caller   *provider.Caller
	costs    *cost.Calculator
	metrics  *monitoring.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithCostCalculator prices providers the same way the caller charges them.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(e *Executor) { e.costs = c }
}

// WithMetrics records terminal states.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a waterfall executor. Empty targets fall back to the
// defaults.
func NewExecutor(cfg Config, registry *provider.Registry, caller *provider.Caller, opts ...Option) *Executor {
	if len(cfg.Targets) == 0 {
		cfg.Targets = DefaultConfig().Targets
	}
	if cfg.ParallelCandidates <= 0 {
		cfg.ParallelCandidates = DefaultConfig().ParallelCandidates
	}
	e := &Executor{cfg: cfg, registry: registry, caller: caller}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Targets returns the configured target fields.
func (e *Executor) Targets() []model.Field { return e.cfg.Targets }

// Enrich walks cand through the waterfall. Each target field is tried
// against its eligible enrichers in ascending cost order, and every
// (field, provider) pair is attempted at most once, so the loop always
// terminates. Running out of budget is a normal terminal state.
func (e *Executor) Enrich(ctx context.Context, company model.CompanyRecord, cand model.CandidateContact) Outcome {
	run := &run{
		exec:    e,
		company: company,
		out:     Outcome{Candidate: cand, State: StateNeedsField},
		tried:   make(map[string]bool),
	}
	run.execute(ctx)

	e.metrics.WaterfallState(string(run.out.State))
	zap.L().Debug("waterfall: candidate done",
		zap.String("company", company.Key()),
		zap.String("candidate", cand.Name),
		zap.String("state", string(run.out.State)),
		zap.Int("attempts", len(run.out.Attempts)),
		zap.Float64("cost_usd", run.out.CostUSD),
		zap.String("reason", run.out.Reason),
	)
	return run.out
}

// EnrichAll enriches candidates in parallel, bounded by ParallelCandidates.
// Outcomes are returned in input order. Only cancellation is an error.
func (e *Executor) EnrichAll(ctx context.Context, company model.CompanyRecord, cands []model.CandidateContact) ([]Outcome, error) {
	out := make([]Outcome, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ParallelCandidates)
	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.Enrich(gctx, company, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

// price is what a call to p is expected to cost.
func (e *Executor) price(meta provider.Metadata) float64 {
	return e.costs.ProviderCall(meta.Name, meta.UnitCostUSD)
}

type run struct {
	exec    *Executor
	company model.CompanyRecord
	out     Outcome
	tried   map[string]bool
	ceiling bool
}

func (r *run) execute(ctx context.Context) {
	targets := r.exec.cfg.Targets
	for _, f := range targets {
		if r.out.Candidate.Has(f) {
			continue
		}
		if err := ctx.Err(); err != nil {
			r.finish(StateExhausted, ReasonCancelled)
			return
		}
		r.fill(ctx, f)
	}

	missing := r.out.Candidate.Missing(targets)
	switch {
	case len(missing) == 0:
		r.finish(StateSatisfied, ReasonComplete)
	case ctx.Err() != nil:
		r.finish(StateExhausted, ReasonCancelled)
	case r.ceiling:
		r.finish(StateExhausted, ReasonCeiling)
	default:
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		r.finish(StateExhausted, fmt.Sprintf("%s %s", ReasonExhausted, strings.Join(names, ", ")))
	}
}

// fill tries enrichers for f until one supplies it.
func (r *run) fill(ctx context.Context, f model.Field) {
	ceiling := r.exec.cfg.MaxCostPerCandidateUSD
	for _, en := range r.exec.registry.EnrichersFor(f) {
		meta := en.Metadata()
		if !r.exec.cfg.allows(f, meta.Name) {
			continue
		}
		pair := string(f) + "|" + meta.Name
		if r.tried[pair] {
			continue
		}
		r.tried[pair] = true

		if r.out.CostUSD+r.exec.price(meta) > ceiling+1e-9 {
			r.ceiling = true
			r.out.Attempts = append(r.out.Attempts, Attempt{Field: f, Provider: meta.Name, Outcome: AttemptSkippedBudget})
			continue
		}

		r.out.State = StateEnriching
		next, info, err := r.exec.caller.Enrich(ctx, en, r.company, r.out.Candidate, f)
		r.out.CostUSD += info.CostUSD
		if err != nil && provider.OutcomeOf(err) == provider.OutcomeNotApplicable {
			r.out.State = StateNeedsField
			continue
		}

		a := Attempt{Field: f, Provider: meta.Name, Cached: info.Cached, CostUSD: info.CostUSD}
		a.Outcome = attemptOutcome(err)
		if err != nil && a.Outcome != AttemptNoMatch {
			a.Error = err.Error()
			r.out.Errors = append(r.out.Errors, model.StageError{
				Stage:    model.StageEnrichment,
				Provider: meta.Name,
				Message:  err.Error(),
			})
		}
		r.out.Attempts = append(r.out.Attempts, a)

		if err == nil && next != nil {
			for _, g := range model.AllFields {
				if !r.out.Candidate.Has(g) && next.Has(g) {
					r.out.Filled = append(r.out.Filled, g)
				}
			}
			r.out.Candidate = *next
			r.out.State = StateNeedsField
			return
		}
		r.out.State = StateNeedsField
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *run) finish(s State, reason string) {
	r.out.State = s
	r.out.Reason = reason
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return AttemptFilled
	case resilience.IsNoMatch(err):
		return AttemptNoMatch
	case resilience.IsCooldown(err):
		return AttemptRateLimited
	}
	if _, ok := resilience.AsRateLimited(err); ok {
		return AttemptRateLimited
	}
	return AttemptError
}
