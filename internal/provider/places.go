package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/input"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/google"
)

// PlacesAdapter reads the business listing from a local-business directory.
// Listings carry a main phone line but no people, so discovery yields a
// phone-only candidate that merges with any person sharing that line.
type PlacesAdapter struct {
	meta   Metadata
	client google.Client
}

// NewPlacesAdapter creates the local-business directory adapter.
func NewPlacesAdapter(client google.Client, meta Metadata) *PlacesAdapter {
	return &PlacesAdapter{meta: meta, client: client}
}

// Metadata implements Adapter.
func (a *PlacesAdapter) Metadata() Metadata { return a.meta }

func placesQuery(company model.CompanyRecord) string {
	q := company.Name
	if loc := company.Location(); loc != "" {
		q += " " + loc
	}
	return q
}

// DiscoverQuery implements Discoverer. Discovery and enrichment share one
// query so they share one cached payload.
func (a *PlacesAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Name == "" {
		return "", false
	}
	return placesQuery(company), true
}

// FetchDiscover implements Discoverer.
func (a *PlacesAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	resp, err := a.client.TextSearch(ctx, placesQuery(company))
	if err != nil {
		return nil, err
	}
	if len(resp.Places) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(resp)
}

// ParseDiscover implements Discoverer.
func (a *PlacesAdapter) ParseDiscover(company model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	place, err := bestPlace(company, payload)
	if err != nil || place == nil {
		return nil, err
	}
	phone := NormalizePhone(place.Phone())
	if phone == "" {
		return nil, nil
	}
	return []map[model.Field]string{{model.FieldPhone: phone}}, nil
}

// EnrichQuery implements Enricher.
func (a *PlacesAdapter) EnrichQuery(company model.CompanyRecord, _ model.CandidateContact, f model.Field) (string, bool) {
	if f != model.FieldPhone {
		return "", false
	}
	return a.DiscoverQuery(company)
}

// FetchEnrich implements Enricher.
func (a *PlacesAdapter) FetchEnrich(ctx context.Context, company model.CompanyRecord, _ model.CandidateContact, _ model.Field) ([]byte, error) {
	return a.FetchDiscover(ctx, company)
}

// ParseEnrich implements Enricher.
func (a *PlacesAdapter) ParseEnrich(company model.CompanyRecord, _ model.CandidateContact, _ model.Field, payload []byte) (map[model.Field]string, error) {
	found, err := a.ParseDiscover(company, payload)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// bestPlace prefers a listing whose website matches the company domain,
// then one whose name shares a token with the company name.
func bestPlace(company model.CompanyRecord, payload []byte) (*google.Place, error) {
	var resp google.TextSearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal payload")
	}
	if company.Domain != "" {
		for i := range resp.Places {
			if input.NormalizeDomain(resp.Places[i].WebsiteURI) == company.Domain {
				return &resp.Places[i], nil
			}
		}
	}
	want := strings.Fields(strings.ToLower(company.Name))
	for i := range resp.Places {
		got := strings.ToLower(resp.Places[i].DisplayName.Text)
		for _, w := range want {
			if len(w) > 2 && strings.Contains(got, w) {
				return &resp.Places[i], nil
			}
		}
	}
	return nil, nil
}
