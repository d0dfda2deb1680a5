package provider

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/apierr"
)

// Failure modes a fixture provider can simulate.
const (
	FailError       = "error"
	FailRateLimited = "rate_limited"
	FailTimeout     = "timeout"
)

// Fixtures describes canned providers for offline runs and tests.
type Fixtures struct {
	Providers []FixtureProvider `yaml:"providers"`
}

// FixtureProvider is one canned provider. Discover is keyed by company key
// (domain, or lowercased name), Enrich by "<company key>|<lowercased person name>".
type FixtureProvider struct {
	Metadata `yaml:",inline"`
	Discover map[string][]map[model.Field]string `yaml:"discover"`
	Enrich   map[string]map[model.Field]string   `yaml:"enrich"`
	Fail     string                              `yaml:"fail"`
}

// LoadFixtures reads a fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fixtures: read %s", path)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "fixtures: parse yaml")
	}
	for i, p := range f.Providers {
		if p.Name == "" {
			return nil, eris.Errorf("fixtures: provider %d has no name", i)
		}
	}
	return &f, nil
}

// Register adds every fixture provider to r.
func (f *Fixtures) Register(r *Registry) error {
	for i := range f.Providers {
		if err := r.Register(NewStaticAdapter(f.Providers[i])); err != nil {
			return err
		}
	}
	return nil
}

// StaticAdapter answers from canned data. It implements both Discoverer and
// Enricher.
type StaticAdapter struct {
	fx FixtureProvider
}

// NewStaticAdapter creates an adapter backed by fx.
func NewStaticAdapter(fx FixtureProvider) *StaticAdapter {
	return &StaticAdapter{fx: fx}
}

// Metadata implements Adapter.
func (a *StaticAdapter) Metadata() Metadata { return a.fx.Metadata }

func (a *StaticAdapter) failure(ctx context.Context) error {
	switch a.fx.Fail {
	case FailError:
		return &apierr.Error{Service: a.fx.Name, StatusCode: 503, Body: "fixture failure"}
	case FailRateLimited:
		return &apierr.Error{Service: a.fx.Name, StatusCode: 429, Retry: time.Minute}
	case FailTimeout:
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// DiscoverQuery implements Discoverer.
func (a *StaticAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if a.fx.Discover == nil && a.fx.Fail == "" {
		return "", false
	}
	return company.Key(), true
}

// FetchDiscover implements Discoverer.
func (a *StaticAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	if err := a.failure(ctx); err != nil {
		return nil, err
	}
	found, ok := a.fx.Discover[company.Key()]
	if !ok || len(found) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(found)
}

// ParseDiscover implements Discoverer.
func (a *StaticAdapter) ParseDiscover(_ model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var out []map[model.Field]string
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, eris.Wrap(err, "static: unmarshal payload")
	}
	return out, nil
}

func enrichKey(company model.CompanyRecord, cand model.CandidateContact) string {
	return company.Key() + "|" + strings.ToLower(strings.TrimSpace(cand.Name))
}

// EnrichQuery implements Enricher.
func (a *StaticAdapter) EnrichQuery(company model.CompanyRecord, cand model.CandidateContact, f model.Field) (string, bool) {
	if !a.fx.Supplies(f) || cand.Name == "" {
		return "", false
	}
	return enrichKey(company, cand), true
}

// FetchEnrich implements Enricher.
func (a *StaticAdapter) FetchEnrich(ctx context.Context, company model.CompanyRecord, cand model.CandidateContact, _ model.Field) ([]byte, error) {
	if err := a.failure(ctx); err != nil {
		return nil, err
	}
	found, ok := a.fx.Enrich[enrichKey(company, cand)]
	if !ok || len(found) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(found)
}

// ParseEnrich implements Enricher.
func (a *StaticAdapter) ParseEnrich(_ model.CompanyRecord, _ model.CandidateContact, _ model.Field, payload []byte) (map[model.Field]string, error) {
	var out map[model.Field]string
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, eris.Wrap(err, "static: unmarshal payload")
	}
	return out, nil
}
