package main

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/config"
	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/fetcher"
	"github.com/sells-group/contact-cli/internal/input"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/pipeline"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/internal/store"
	"github.com/sells-group/contact-cli/internal/validate"
	"github.com/sells-group/contact-cli/internal/waterfall"
	"github.com/sells-group/contact-cli/pkg/anthropic"
	"github.com/sells-group/contact-cli/pkg/apollo"
	"github.com/sells-group/contact-cli/pkg/google"
	"github.com/sells-group/contact-cli/pkg/hunter"
	"github.com/sells-group/contact-cli/pkg/jina"
	"github.com/sells-group/contact-cli/pkg/perplexity"
)

// env holds every wired pipeline component for one command invocation.
type env struct {
	Store     store.Store
	Cache     *cache.Cache
	Cooldowns *resilience.Cooldowns
	Registry  *provider.Registry
	Caller    *provider.Caller
	Discovery *discovery.Orchestrator
	Waterfall *waterfall.Executor
	Validator validate.Validator
	Pipeline  *pipeline.Pipeline
	Reader    *input.Reader
	Metrics   *monitoring.Metrics
	Costs     *cost.Calculator
	Ledger    *cost.Ledger
	Segment   string

	closers []func() error
}

// envOptions adjust wiring per command.
type envOptions struct {
	// Registerer receives the Prometheus collectors. Nil keeps metrics
	// in-process only.
	Registerer prometheus.Registerer
	// Sheet selects the worksheet of an .xlsx input.
	Sheet string
}

// Close releases the store and any cache connections.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv builds the full component graph from c.
func initEnv(ctx context.Context, c *config.Config, opts envOptions) (*env, error) {
	e := &env{
		Metrics: monitoring.NewMetrics(opts.Registerer),
		Costs:   cost.NewCalculator(c.Pricing),
		Ledger:  cost.NewLedger(),
		Segment: c.Validator.Segment,
	}

	if c.Store.Driver != "none" {
		st, err := initStore(ctx, c.Store)
		if err != nil {
			return nil, err
		}
		e.Store = st
		e.closers = append(e.closers, st.Close)
	}

	backend, err := initCacheBackend(ctx, c, e)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Cache = cache.New(backend, c.Cache.TTLs, cache.WithMetrics(e.Metrics))
	e.Cooldowns = resilience.NewCooldowns(c.Cooldown)

	e.Caller = provider.NewCaller(e.Cache, e.Cooldowns,
		provider.WithRetry(c.Retry),
		provider.WithMetrics(e.Metrics),
		provider.WithLedger(e.Ledger),
		provider.WithCostCalculator(e.Costs),
	)

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Fetch.UserAgent,
		Timeout:   c.Fetch.Timeout,
		MaxBytes:  c.Fetch.MaxBytes,
		HostRate:  rate.Limit(c.Fetch.HostRate),
		HostBurst: c.Fetch.HostBurst,
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: c.Fetch.FTPTimeout})
	var readerOpts []input.ReaderOption
	if opts.Sheet != "" {
		readerOpts = append(readerOpts, input.WithSheet(opts.Sheet))
	}
	e.Reader = input.NewReader(fetcher.NewSourceOpener(httpFetcher, ftpFetcher), readerOpts...)

	var ai anthropic.Client
	if c.Anthropic.Key != "" {
		aiOpts := []anthropic.Option{anthropic.WithMaxRetries(c.Anthropic.MaxRetries)}
		if c.Anthropic.BaseURL != "" {
			aiOpts = append(aiOpts, anthropic.WithBaseURL(c.Anthropic.BaseURL))
		}
		ai = anthropic.NewClient(c.Anthropic.Key, aiOpts...)
	}

	e.Registry = provider.NewRegistry()
	if c.Fixtures != "" {
		fx, err := provider.LoadFixtures(c.Fixtures)
		if err != nil {
			e.Close()
			return nil, err
		}
		if err := fx.Register(e.Registry); err != nil {
			e.Close()
			return nil, err
		}
		zap.L().Info("using static provider fixtures",
			zap.String("path", c.Fixtures),
			zap.Int("providers", e.Registry.Len()),
		)
	} else if err := registerLive(e.Registry, c, httpFetcher, ai, e.Costs); err != nil {
		e.Close()
		return nil, err
	}

	e.Discovery = discovery.New(e.Registry, e.Caller, c.Discovery)
	e.Waterfall = waterfall.NewExecutor(c.Waterfall, e.Registry, e.Caller,
		waterfall.WithCostCalculator(e.Costs),
		waterfall.WithMetrics(e.Metrics),
	)
	e.Validator, err = validate.New(c.Validator,
		validate.WithClient(ai),
		validate.WithCosts(e.Costs, e.Ledger),
		validate.WithMetrics(e.Metrics),
	)
	if err != nil {
		e.Close()
		return nil, err
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithMetrics(e.Metrics),
		pipeline.WithConfig(c.Batch),
	}
	if e.Store != nil {
		pipeOpts = append(pipeOpts, pipeline.WithStore(e.Store))
	}
	e.Pipeline = pipeline.New(e.Discovery, e.Waterfall, e.Validator, pipeOpts...)

	return e, nil
}

// initStore opens and migrates the configured database.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	if sc.Driver == "postgres" {
		pool := sc.Pool
		st, err := store.NewPostgres(ctx, sc.DatabaseURL, &pool)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	}
	return store.Open(ctx, sc.Driver, sc.DatabaseURL)
}

func initCacheBackend(ctx context.Context, c *config.Config, e *env) (cache.Backend, error) {
	switch c.Cache.Backend {
	case "redis":
		backend, client, err := cache.NewRedisBackend(ctx, c.Redis)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		return backend, nil
	case "store":
		if e.Store == nil {
			return nil, eris.New("cache backend store needs a store driver")
		}
		return cache.NewStoreBackend(e.Store), nil
	default:
		return cache.NewMemoryBackend(), nil
	}
}

// registerLive registers an adapter for every enabled catalog entry that has
// the credentials it needs.
func registerLive(reg *provider.Registry, c *config.Config, pages fetcher.PageFetcher, ai anthropic.Client, calc *cost.Calculator) error {
	catalog := c.Catalog()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		meta := catalog[name]
		pc := c.Providers[name]

		var a provider.Adapter
		switch name {
		case provider.NameSearch:
			if pc.Key == "" {
				break
			}
			a = provider.NewSearchAdapter(jina.NewClient(pc.Key, jinaOpts(pc, true)...), meta)
		case provider.NameWebsite:
			// The reader is optional; direct fetches need no key.
			var reader jina.Client
			if pc.Key != "" {
				reader = jina.NewClient(pc.Key, jinaOpts(pc, false)...)
			}
			a = provider.NewWebsiteAdapter(pages, reader, meta)
		case provider.NamePlaces:
			if pc.Key == "" {
				break
			}
			var opts []google.Option
			if pc.BaseURL != "" {
				opts = append(opts, google.WithBaseURL(pc.BaseURL))
			}
			a = provider.NewPlacesAdapter(google.NewClient(pc.Key, opts...), meta)
		case provider.NameProfile:
			if pc.Key == "" || ai == nil {
				break
			}
			opts := []perplexity.Option{perplexity.WithModel(pc.Model)}
			if pc.BaseURL != "" {
				opts = append(opts, perplexity.WithBaseURL(pc.BaseURL))
			}
			a = provider.NewProfileAdapter(perplexity.NewClient(pc.Key, opts...), ai, c.Anthropic.ExtractModel, calc, meta)
		case provider.NameHunter:
			if pc.Key == "" {
				break
			}
			var opts []hunter.Option
			if pc.BaseURL != "" {
				opts = append(opts, hunter.WithBaseURL(pc.BaseURL))
			}
			a = provider.NewHunterAdapter(hunter.NewClient(pc.Key, opts...), meta)
		case provider.NameApollo:
			if pc.Key == "" {
				break
			}
			var opts []apollo.Option
			if pc.BaseURL != "" {
				opts = append(opts, apollo.WithBaseURL(pc.BaseURL))
			}
			a = provider.NewApolloAdapter(apollo.NewClient(pc.Key, opts...), meta)
		}

		if a == nil {
			zap.L().Info("provider not configured, skipping", zap.String("provider", name))
			continue
		}
		if err := reg.Register(a); err != nil {
			return err
		}
	}

	if reg.Len() == 0 {
		return eris.New("no providers configured: set provider keys or fixtures")
	}
	return nil
}

func jinaOpts(pc config.ProviderConfig, search bool) []jina.Option {
	switch {
	case pc.BaseURL == "":
		return nil
	case search:
		return []jina.Option{jina.WithSearchBaseURL(pc.BaseURL)}
	default:
		return []jina.Option{jina.WithBaseURL(pc.BaseURL)}
	}
}
