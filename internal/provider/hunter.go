package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/hunter"
)

const (
	hunterSeniority   = "executive"
	hunterMaxDiscover = 5
	hunterMinScore    = 40
)

// HunterAdapter finds work email addresses for people at a domain.
type HunterAdapter struct {
	meta   Metadata
	client hunter.Client
}

// NewHunterAdapter creates the email-finder adapter.
func NewHunterAdapter(client hunter.Client, meta Metadata) *HunterAdapter {
	return &HunterAdapter{meta: meta, client: client}
}

// Metadata implements Adapter.
func (a *HunterAdapter) Metadata() Metadata { return a.meta }

// DiscoverQuery implements Discoverer.
func (a *HunterAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Domain == "" {
		return "", false
	}
	return "domain:" + company.Domain, true
}

// FetchDiscover implements Discoverer.
func (a *HunterAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	res, err := a.client.DomainSearch(ctx, company.Domain,
		hunter.WithSeniority(hunterSeniority), hunter.WithLimit(hunterMaxDiscover))
	if err != nil {
		return nil, err
	}
	if len(res.Emails) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(res)
}

// ParseDiscover implements Discoverer.
func (a *HunterAdapter) ParseDiscover(_ model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var res hunter.DomainSearchResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal payload")
	}
	var out []map[model.Field]string
	for _, e := range res.Emails {
		// Generic mailboxes carry no person.
		if e.Type == "generic" || e.FirstName == "" {
			continue
		}
		fields := map[model.Field]string{
			model.FieldName:  strings.TrimSpace(e.FirstName + " " + e.LastName),
			model.FieldTitle: e.Position,
		}
		if e.Confidence >= hunterMinScore {
			fields[model.FieldEmail] = e.Value
		}
		if p := NormalizePhone(e.PhoneNumber); p != "" {
			fields[model.FieldPhone] = p
		}
		if u := ExtractProfileURL(e.LinkedIn); u != "" {
			fields[model.FieldProfileURL] = u
		}
		out = append(out, fields)
	}
	return out, nil
}

// EnrichQuery implements Enricher.
func (a *HunterAdapter) EnrichQuery(company model.CompanyRecord, cand model.CandidateContact, f model.Field) (string, bool) {
	if f != model.FieldEmail || cand.Name == "" {
		return "", false
	}
	org := company.Domain
	if org == "" {
		org = strings.ToLower(company.Name)
	}
	if org == "" {
		return "", false
	}
	return "person:" + strings.ToLower(cand.Name) + "|" + org, true
}

// FetchEnrich implements Enricher.
func (a *HunterAdapter) FetchEnrich(ctx context.Context, company model.CompanyRecord, cand model.CandidateContact, _ model.Field) ([]byte, error) {
	first, last := SplitName(cand.Name)
	req := hunter.EmailFinderRequest{Domain: company.Domain, FirstName: first, LastName: last}
	if company.Domain == "" {
		req.Company = company.Name
	}
	if last == "" {
		req.FirstName, req.FullName = "", cand.Name
	}
	res, err := a.client.EmailFinder(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Email == "" || res.Score < hunterMinScore {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(res)
}

// ParseEnrich implements Enricher.
func (a *HunterAdapter) ParseEnrich(_ model.CompanyRecord, _ model.CandidateContact, _ model.Field, payload []byte) (map[model.Field]string, error) {
	var res hunter.EmailFinderResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, eris.Wrap(err, "hunter: unmarshal payload")
	}
	fields := map[model.Field]string{model.FieldEmail: res.Email}
	if res.Position != "" {
		fields[model.FieldTitle] = res.Position
	}
	if u := ExtractProfileURL(res.LinkedInURL); u != "" {
		fields[model.FieldProfileURL] = u
	}
	if p := NormalizePhone(res.PhoneNumber); p != "" {
		fields[model.FieldPhone] = p
	}
	return fields, nil
}
