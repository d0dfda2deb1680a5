package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/resilience"
)

const defaultTimeout = 30 * time.Second

// Call outcomes recorded in metrics.
const (
	OutcomeOK          = "ok"
	OutcomeNoMatch     = "no_match"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeRateLimited = "rate_limited"
	OutcomeCooldown    = "cooldown"
	OutcomeCached      = "cached"

	OutcomeNotApplicable = "not_applicable"
)

// CallInfo describes one adapter invocation.
type CallInfo struct {
	Provider string
	CacheKey string
	// Cached is true when no network call was made by this caller.
	Cached   bool
	CostUSD  float64
	Attempts int
	Duration time.Duration
}

// Caller runs adapter calls through the shared cross-cutting layers:
// cooldown check, cache, retry, per-provider concurrency and rate limits,
// and a per-call timeout.
type Caller struct {
	cache     *cache.Cache
	cooldowns *resilience.Cooldowns
	retry     resilience.RetryConfig
	metrics   *monitoring.Metrics
	ledger    *cost.Ledger
	costs     *cost.Calculator

	mu     sync.Mutex
	limits map[string]*limits
}

type limits struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithRetry overrides the retry policy for transient provider errors.
func WithRetry(cfg resilience.RetryConfig) CallerOption {
	return func(c *Caller) { c.retry = cfg }
}

// WithMetrics records call outcomes and spend.
func WithMetrics(m *monitoring.Metrics) CallerOption {
	return func(c *Caller) { c.metrics = m }
}

// WithLedger accumulates per-provider spend.
func WithLedger(l *cost.Ledger) CallerOption {
	return func(c *Caller) { c.ledger = l }
}

// WithCostCalculator overrides adapter unit costs with configured rates.
func WithCostCalculator(calc *cost.Calculator) CallerOption {
	return func(c *Caller) { c.costs = calc }
}

// NewCaller creates a Caller. The cache and cooldown registry are required.
func NewCaller(ch *cache.Cache, cooldowns *resilience.Cooldowns, opts ...CallerOption) *Caller {
	c := &Caller{
		cache:     ch,
		cooldowns: cooldowns,
		retry:     resilience.DefaultRetryConfig(),
		limits:    make(map[string]*limits),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Cooldowns returns the caller's back-off registry.
func (c *Caller) Cooldowns() *resilience.Cooldowns { return c.cooldowns }

// Ledger returns the caller's spend ledger, which may be nil.
func (c *Caller) Ledger() *cost.Ledger { return c.ledger }

// Discover runs a discovery adapter for company. A confirmed absence is
// returned as resilience.ErrNoMatch.
func (c *Caller) Discover(ctx context.Context, d Discoverer, company model.CompanyRecord) ([]model.CandidateContact, CallInfo, error) {
	meta := d.Metadata()
	query, ok := d.DiscoverQuery(company)
	if !ok {
		return nil, CallInfo{Provider: meta.Name, Cached: true}, ErrNotApplicable
	}

	res, info, err := c.call(ctx, meta, query, func(ctx context.Context) ([]byte, error) {
		return d.FetchDiscover(ctx, company)
	})
	if err != nil {
		return nil, info, err
	}

	found, err := d.ParseDiscover(company, res.Payload)
	if err != nil {
		return nil, info, &resilience.ProviderError{Provider: meta.Name, Err: eris.Wrap(err, "parse discover payload")}
	}

	src := model.SourceTag{Provider: meta.Name, Kind: model.SourceDiscover, Priority: meta.Priority}
	ref := model.PayloadRef{Provider: meta.Name, CacheKey: res.Key}
	var out []model.CandidateContact
	for _, fields := range found {
		if len(nonEmpty(fields)) == 0 {
			continue
		}
		cand, err := model.NewCandidate(src, fields, ref)
		if err != nil {
			return nil, info, err
		}
		out = append(out, cand)
	}
	if len(out) == 0 {
		return nil, info, resilience.ErrNoMatch
	}
	return out, info, nil
}

// Enrich asks an enricher for field f on cand. On success it returns a new
// candidate version carrying every field the provider supplied that cand
// lacked. The result is nil with resilience.ErrNoMatch when f was not found.
func (c *Caller) Enrich(ctx context.Context, e Enricher, company model.CompanyRecord, cand model.CandidateContact, f model.Field) (*model.CandidateContact, CallInfo, error) {
	meta := e.Metadata()
	query, ok := e.EnrichQuery(company, cand, f)
	if !ok {
		return nil, CallInfo{Provider: meta.Name, Cached: true}, ErrNotApplicable
	}

	res, info, err := c.call(ctx, meta, query, func(ctx context.Context) ([]byte, error) {
		return e.FetchEnrich(ctx, company, cand, f)
	})
	if err != nil {
		return nil, info, err
	}

	fields, err := e.ParseEnrich(company, cand, f, res.Payload)
	if err != nil {
		return nil, info, &resilience.ProviderError{Provider: meta.Name, Err: eris.Wrap(err, "parse enrich payload")}
	}
	fields = nonEmpty(fields)
	if fields[f] == "" {
		return nil, info, resilience.ErrNoMatch
	}

	src := model.SourceTag{Provider: meta.Name, Kind: model.SourceEnrich, Priority: meta.Priority}
	ref := model.PayloadRef{Provider: meta.Name, CacheKey: res.Key}
	next := cand.WithField(f, fields[f], src, ref)
	for _, other := range model.AllFields {
		if other == f || fields[other] == "" || next.Has(other) {
			continue
		}
		next = next.WithField(other, fields[other], src, model.PayloadRef{})
	}
	return &next, info, nil
}

// call applies the cooldown check and then fetches through the cache.
// Retries, limits, and the timeout apply only on a cache miss.
func (c *Caller) call(ctx context.Context, meta Metadata, query string, fetch cache.FetchFunc) (cache.Result, CallInfo, error) {
	info := CallInfo{Provider: meta.Name}
	start := time.Now()

	if err := c.cooldowns.Check(meta.Name); err != nil {
		c.metrics.ProviderCall(meta.Name, OutcomeCooldown, 0)
		info.Cached = true
		return cache.Result{}, info, err
	}

	retry := c.retry
	retry.OnRetry = resilience.RetryLogger(meta.Name, "fetch")

	class := meta.TTLClass
	if class == "" {
		class = cache.TTLShort
	}

	// The fetch may outlive this call when ctx is cancelled, so its
	// counters are guarded.
	var mu sync.Mutex
	attempts, spent := 0, 0.0
	res, err := c.cache.GetOrFetch(ctx, meta.Name, query, class, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			payload, usd, err := c.attempt(ctx, meta, fetch)
			mu.Lock()
			attempts++
			spent += usd
			mu.Unlock()
			return payload, err
		})
	})
	mu.Lock()
	info.Attempts, info.CostUSD = attempts, spent
	mu.Unlock()
	info.CacheKey = res.Key
	info.Cached = !res.Fetched
	info.Duration = time.Since(start)
	// Cached absences count as hits too.
	if info.Cached && (err == nil || resilience.IsNoMatch(err)) {
		c.metrics.ProviderCall(meta.Name, OutcomeCached, 0)
	}
	return res, info, err
}

// attempt is one network call under the provider's limits and timeout.
func (c *Caller) attempt(ctx context.Context, meta Metadata, fetch cache.FetchFunc) ([]byte, float64, error) {
	if err := c.cooldowns.Check(meta.Name); err != nil {
		return nil, 0, err
	}

	lim := c.limitsFor(meta)
	if err := lim.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, err
	}
	defer lim.sem.Release(1)
	if err := lim.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	payload, err := fetch(callCtx)
	elapsed := time.Since(start)

	timedOut := err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	err = resilience.Classify(meta.Name, err)
	c.cooldowns.Record(meta.Name, err)

	var usd float64
	if err == nil || resilience.IsNoMatch(err) {
		usd = c.costs.ProviderCall(meta.Name, meta.UnitCostUSD)
		c.ledger.Add(meta.Name, usd)
		c.metrics.ProviderCost(meta.Name, usd)
	}

	outcome := outcomeOf(err, timedOut)
	c.metrics.ProviderCall(meta.Name, outcome, elapsed)
	if outcome != OutcomeOK && outcome != OutcomeNoMatch {
		zap.L().Debug("provider call failed",
			zap.String("provider", meta.Name),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	}
	return payload, usd, err
}

func (c *Caller) limitsFor(meta Metadata) *limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limits[meta.Name]; ok {
		return l
	}
	conc := meta.MaxConcurrency
	if conc <= 0 {
		conc = 1
	}
	r := rate.Inf
	if meta.RatePerSecond > 0 {
		r = rate.Limit(meta.RatePerSecond)
	}
	burst := meta.Burst
	if burst <= 0 {
		burst = conc
	}
	l := &limits{
		sem:     semaphore.NewWeighted(int64(conc)),
		limiter: rate.NewLimiter(r, burst),
	}
	c.limits[meta.Name] = l
	return l
}

// OutcomeOf maps a Discover or Enrich error onto a call outcome.
func OutcomeOf(err error) string {
	if errors.Is(err, ErrNotApplicable) {
		return OutcomeNotApplicable
	}
	return outcomeOf(err, errors.Is(err, context.DeadlineExceeded))
}

func outcomeOf(err error, timedOut bool) string {
	switch {
	case err == nil:
		return OutcomeOK
	case resilience.IsNoMatch(err):
		return OutcomeNoMatch
	case timedOut:
		return OutcomeTimeout
	case resilience.IsCooldown(err):
		return OutcomeCooldown
	}
	if _, ok := resilience.AsRateLimited(err); ok {
		return OutcomeRateLimited
	}
	return OutcomeError
}

func nonEmpty(fields map[model.Field]string) map[model.Field]string {
	out := make(map[model.Field]string, len(fields))
	for f, v := range fields {
		if v != "" {
			out[f] = v
		}
	}
	return out
}
