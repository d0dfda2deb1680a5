package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/jina"
)

const (
	searchMaxPeople     = 5
	searchMaxContentLen = 4000
)

// SearchAdapter finds owner mentions in web search results.
type SearchAdapter struct {
	meta   Metadata
	client jina.Client
}

// NewSearchAdapter creates the OSINT web search adapter.
func NewSearchAdapter(client jina.Client, meta Metadata) *SearchAdapter {
	return &SearchAdapter{meta: meta, client: client}
}

// Metadata implements Adapter.
func (a *SearchAdapter) Metadata() Metadata { return a.meta }

func searchQuery(company model.CompanyRecord) string {
	q := fmt.Sprintf("%q owner", company.Name)
	if loc := company.Location(); loc != "" {
		q += " " + loc
	}
	return q
}

// DiscoverQuery implements Discoverer.
func (a *SearchAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Name == "" {
		return "", false
	}
	return searchQuery(company), true
}

// FetchDiscover implements Discoverer.
func (a *SearchAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	resp, err := a.client.Search(ctx, searchQuery(company))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, resilience.ErrNoMatch
	}
	for i := range resp.Data {
		if len(resp.Data[i].Content) > searchMaxContentLen {
			resp.Data[i].Content = resp.Data[i].Content[:searchMaxContentLen]
		}
	}
	return json.Marshal(resp)
}

// ParseDiscover implements Discoverer.
func (a *SearchAdapter) ParseDiscover(company model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var resp jina.SearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, eris.Wrap(err, "search: unmarshal payload")
	}

	seen := make(map[string]bool)
	var out []map[model.Field]string
	for _, r := range resp.Data {
		text := r.Title + "\n" + r.Description + "\n" + r.Content
		profile := ExtractProfileURL(r.URL)
		for _, p := range ExtractPeople(text) {
			key := strings.ToLower(p.Name)
			if seen[key] || NameOverlapsCompany(p.Name, company.Name) {
				continue
			}
			seen[key] = true
			fields := map[model.Field]string{model.FieldName: p.Name, model.FieldTitle: p.Title}
			// A profile result page is about the person named in its title.
			if profile != "" && strings.Contains(strings.ToLower(r.Title), key) {
				fields[model.FieldProfileURL] = profile
			}
			out = append(out, fields)
			if len(out) == searchMaxPeople {
				return out, nil
			}
		}
	}
	return out, nil
}
