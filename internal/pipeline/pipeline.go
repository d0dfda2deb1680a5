// Package pipeline turns company records into ranked, validated contact
// records: discovery, enrichment waterfall, then validation, with batch
// run records and resumable checkpoints.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/store"
	"github.com/sells-group/contact-cli/internal/validate"
	"github.com/sells-group/contact-cli/internal/waterfall"
)

// Config holds batch execution controls.
type Config struct {
	// Concurrency bounds how many companies are processed at once.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// CheckpointInterval saves completed companies every N results.
	// Zero disables checkpoints.
	CheckpointInterval int `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
}

// DefaultConfig returns the default batch settings.
func DefaultConfig() Config {
	return Config{Concurrency: 8, CheckpointInterval: 25}
}

// Pipeline wires the stages together.
type Pipeline struct {
	discovery *discovery.Orchestrator
	waterfall *waterfall.Executor
	validator validate.Validator
	store     store.Store
	metrics   *monitoring.Metrics
	cfg       Config
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore enables run records and checkpoints.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// WithMetrics records per-company outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithConfig overrides the batch settings.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// New creates a Pipeline.
func New(d *discovery.Orchestrator, w *waterfall.Executor, v validate.Validator, opts ...Option) *Pipeline {
	p := &Pipeline{discovery: d, waterfall: w, validator: v, cfg: DefaultConfig()}
	for _, o := range opts {
		o(p)
	}
	if p.cfg.Concurrency <= 0 {
		p.cfg.Concurrency = 1
	}
	return p
}

// ProcessCompany resolves one company. Provider and validator failures are
// recorded on the result and never returned; a company with no matches
// yields an empty contact list.
func (p *Pipeline) ProcessCompany(ctx context.Context, company model.CompanyRecord) model.CompanyResult {
	log := zap.L().With(zap.String("company", company.Key()))
	start := time.Now()

	res := model.CompanyResult{
		CompanyIdentifier: company.Key(),
		Company:           company,
		Contacts:          []model.ContactResult{},
	}

	found := p.discovery.Discover(ctx, company)
	res.Errors = append(res.Errors, found.Errors...)
	res.CostUSD += found.CostUSD

	var outcomes []waterfall.Outcome
	if len(found.Candidates) > 0 {
		var err error
		outcomes, err = p.waterfall.EnrichAll(ctx, company, found.Candidates)
		if err != nil {
			res.Errors = append(res.Errors, model.StageError{Stage: model.StageEnrichment, Message: err.Error()})
			outcomes = nil
			for _, c := range found.Candidates {
				outcomes = append(outcomes, waterfall.Outcome{Candidate: c, State: waterfall.StateExhausted, Reason: waterfall.ReasonCancelled})
			}
		}
	}

	for _, o := range outcomes {
		res.Errors = append(res.Errors, o.Errors...)
		res.CostUSD += o.CostUSD
		v := p.validator.Validate(ctx, company, o.Candidate)
		if v.Fallback {
			res.Errors = append(res.Errors, model.StageError{
				Stage:   model.StageValidation,
				Message: v.Reasons[len(v.Reasons)-1],
			})
		}
		res.Contacts = append(res.Contacts, model.ContactResult{
			Candidate:  o.Candidate,
			Validation: v,
			Enrichment: o.Summary(),
		})
	}
	model.SortContacts(res.Contacts)

	p.metrics.Company(len(res.Contacts) > 0)
	log.Info("pipeline: company resolved",
		zap.Int("candidates", len(found.Candidates)),
		zap.Int("errors", len(res.Errors)),
		zap.Float64("cost_usd", res.CostUSD),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res
}

// RunOptions describe one batch run.
type RunOptions struct {
	// Input names the batch source, recorded on the run.
	Input   string
	Segment string
	// ResumeID continues an earlier run, skipping checkpointed companies.
	ResumeID string
}

// RunOutput is the result of a batch run. Results are in input order.
type RunOutput struct {
	Run     model.Run             `json:"run"`
	Results []model.CompanyResult `json:"results"`
}

// Run processes companies concurrently. Failures local to one company never
// abort the batch; only cancellation and store errors are returned. On
// cancellation the completed companies are still checkpointed and returned.
func (p *Pipeline) Run(ctx context.Context, companies []model.CompanyRecord, opts RunOptions) (*RunOutput, error) {
	start := time.Now()
	results := make([]model.CompanyResult, len(companies))
	done := make([]bool, len(companies))

	run, err := p.startRun(ctx, companies, opts)
	if err != nil {
		return nil, err
	}
	resumed := 0
	if opts.ResumeID != "" {
		if resumed, err = p.restore(ctx, run.ID, companies, results, done); err != nil {
			return nil, err
		}
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started",
		zap.Int("companies", len(companies)),
		zap.Int("resumed", resumed),
		zap.Int("concurrency", p.cfg.Concurrency),
	)

	cp := newCheckpointer(p.store, run.ID, p.cfg.CheckpointInterval)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, company := range companies {
		if done[i] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := p.ProcessCompany(gctx, company)
			if gctx.Err() != nil {
				// Partial results from a cancelled company are not kept.
				return gctx.Err()
			}
			mu.Lock()
			results[i], done[i] = r, true
			mu.Unlock()
			cp.add(context.WithoutCancel(gctx), i, r)
			return nil
		})
	}
	runErr := g.Wait()
	// Flush with a fresh context so a cancelled run still persists progress.
	cp.flush(context.WithoutCancel(ctx))

	summary := summarize(results, done, resumed, time.Since(start))
	status := model.RunStatusComplete
	if runErr != nil {
		status = model.RunStatusFailed
	}
	if p.store != nil {
		if err := p.store.CompleteRun(context.WithoutCancel(ctx), run.ID, status, summary); err != nil {
			log.Warn("pipeline: complete run", zap.Error(err))
		}
	}
	run.Status, run.Summary = status, summary

	out := &RunOutput{Run: *run}
	for i := range results {
		if done[i] {
			out.Results = append(out.Results, results[i])
		}
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.Int("completed", len(out.Results)),
		zap.Int("valid_contacts", summary.ValidContacts),
		zap.Float64("cost_usd", summary.TotalCostUSD),
	)
	return out, runErr
}

func summarize(results []model.CompanyResult, done []bool, resumed int, elapsed time.Duration) *model.RunSummary {
	s := &model.RunSummary{Resumed: resumed, DurationMillis: elapsed.Milliseconds()}
	for i, r := range results {
		if !done[i] {
			continue
		}
		s.Companies++
		s.TotalCostUSD += r.CostUSD
		if len(r.Contacts) > 0 {
			s.WithContacts++
		}
		if len(r.Errors) > 0 {
			s.CompanyErrors++
		}
		for _, c := range r.Contacts {
			if c.Validation.IsValid {
				s.ValidContacts++
			}
		}
	}
	return s
}
