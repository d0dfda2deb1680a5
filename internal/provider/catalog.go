package provider

import (
	"time"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/model"
)

// Built-in adapter names.
const (
	NameSearch  = "search"
	NamePlaces  = "places"
	NameWebsite = "website"
	NameProfile = "profile"
	NameHunter  = "hunter"
	NameApollo  = "apollo"
)

// DefaultCatalog returns the default metadata for the built-in adapters.
// Priorities encode known reliability: lower wins field conflicts.
func DefaultCatalog() map[string]Metadata {
	return map[string]Metadata{
		NameSearch: {
			Name: NameSearch, UnitCostUSD: 0.005, HitRate: 0.35,
			Fields:   []model.Field{model.FieldName, model.FieldTitle, model.FieldProfileURL},
			TTLClass: cache.TTLShort, Priority: 40,
			MaxConcurrency: 4, RatePerSecond: 2, Burst: 2, Timeout: 20 * time.Second,
		},
		NamePlaces: {
			Name: NamePlaces, UnitCostUSD: 0.032, HitRate: 0.7,
			Fields:   []model.Field{model.FieldPhone},
			TTLClass: cache.TTLShort, Priority: 30,
			MaxConcurrency: 8, RatePerSecond: 10, Burst: 10, Timeout: 15 * time.Second,
		},
		NameWebsite: {
			Name: NameWebsite, UnitCostUSD: 0.001, HitRate: 0.45,
			Fields:   []model.Field{model.FieldName, model.FieldTitle, model.FieldEmail, model.FieldPhone},
			TTLClass: cache.TTLShort, Priority: 20,
			MaxConcurrency: 8, RatePerSecond: 4, Burst: 4, Timeout: 45 * time.Second,
		},
		NameProfile: {
			Name: NameProfile, UnitCostUSD: 0.012, HitRate: 0.5,
			Fields:   []model.Field{model.FieldName, model.FieldTitle, model.FieldProfileURL},
			TTLClass: cache.TTLLong, Priority: 10,
			MaxConcurrency: 4, RatePerSecond: 1, Burst: 2, Timeout: 60 * time.Second,
		},
		NameHunter: {
			Name: NameHunter, UnitCostUSD: 0.034, HitRate: 0.55,
			Fields:   []model.Field{model.FieldEmail},
			TTLClass: cache.TTLMedium, Priority: 15,
			MaxConcurrency: 4, RatePerSecond: 5, Burst: 5, Timeout: 20 * time.Second,
		},
		NameApollo: {
			Name: NameApollo, UnitCostUSD: 0.10, HitRate: 0.6,
			Fields:   []model.Field{model.FieldEmail, model.FieldPhone, model.FieldProfileURL, model.FieldTitle},
			TTLClass: cache.TTLLong, Priority: 12,
			MaxConcurrency: 2, RatePerSecond: 1, Burst: 1, Timeout: 20 * time.Second,
		},
	}
}

// Merge returns base with every non-zero field of override applied.
func (m Metadata) Merge(override Metadata) Metadata {
	if override.UnitCostUSD > 0 {
		m.UnitCostUSD = override.UnitCostUSD
	}
	if override.HitRate > 0 {
		m.HitRate = override.HitRate
	}
	if len(override.Fields) > 0 {
		m.Fields = override.Fields
	}
	if override.TTLClass != "" {
		m.TTLClass = override.TTLClass
	}
	if override.Priority > 0 {
		m.Priority = override.Priority
	}
	if override.MaxConcurrency > 0 {
		m.MaxConcurrency = override.MaxConcurrency
	}
	if override.RatePerSecond > 0 {
		m.RatePerSecond = override.RatePerSecond
	}
	if override.Burst > 0 {
		m.Burst = override.Burst
	}
	if override.Timeout > 0 {
		m.Timeout = override.Timeout
	}
	return m
}
