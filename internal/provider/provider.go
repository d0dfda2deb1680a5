// Package provider defines the uniform capability contract over external
// contact sources and the adapters that implement it. Adapters parse their
// native payloads internally; everything downstream sees only
// model.CandidateContact values.
package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/model"
)

// ErrNotApplicable means an adapter cannot form a query for the input,
// for example an email finder given a company without a domain. No call is
// made and nothing is cached.
var ErrNotApplicable = eris.New("provider: not applicable")

// Metadata is the declarative description of an adapter. The orchestrator
// and waterfall order and filter adapters only by these values.
type Metadata struct {
	Name           string         `yaml:"name" mapstructure:"name"`
	UnitCostUSD    float64        `yaml:"unit_cost_usd" mapstructure:"unit_cost_usd"`
	HitRate        float64        `yaml:"hit_rate" mapstructure:"hit_rate"`
	Fields         []model.Field  `yaml:"fields" mapstructure:"fields"`
	TTLClass       cache.TTLClass `yaml:"ttl_class" mapstructure:"ttl_class"`
	Priority       int            `yaml:"priority" mapstructure:"priority"`
	MaxConcurrency int            `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RatePerSecond  float64        `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int            `yaml:"burst" mapstructure:"burst"`
	Timeout        time.Duration  `yaml:"timeout" mapstructure:"timeout"`
}

// Supplies reports whether the adapter can provide field f.
func (m Metadata) Supplies(f model.Field) bool {
	for _, x := range m.Fields {
		if x == f {
			return true
		}
	}
	return false
}

// ExpectedCostPerHit is the unit cost divided by the hit rate, used to rank
// providers by cost per useful answer.
func (m Metadata) ExpectedCostPerHit() float64 {
	if m.HitRate <= 0 {
		return m.UnitCostUSD
	}
	return m.UnitCostUSD / m.HitRate
}

// Adapter is implemented by every provider.
type Adapter interface {
	Metadata() Metadata
}

// Discoverer finds candidate contacts for a company.
type Discoverer interface {
	Adapter
	// DiscoverQuery returns the cache query for company, or false when the
	// adapter cannot search for it.
	DiscoverQuery(company model.CompanyRecord) (string, bool)
	// FetchDiscover performs the network call and returns the raw payload.
	// It returns resilience.ErrNoMatch when the provider has nothing.
	FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error)
	// ParseDiscover extracts contact field sets from a payload.
	ParseDiscover(company model.CompanyRecord, payload []byte) ([]map[model.Field]string, error)
}

// Enricher fills a missing field on an existing candidate.
type Enricher interface {
	Adapter
	EnrichQuery(company model.CompanyRecord, c model.CandidateContact, f model.Field) (string, bool)
	FetchEnrich(ctx context.Context, company model.CompanyRecord, c model.CandidateContact, f model.Field) ([]byte, error)
	// ParseEnrich returns the fields found in payload. Fields the candidate
	// already has are ignored by the caller.
	ParseEnrich(company model.CompanyRecord, c model.CandidateContact, f model.Field, payload []byte) (map[model.Field]string, error)
}
