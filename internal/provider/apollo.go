package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/apollo"
)

const apolloMaxDiscover = 5

var apolloSeniorities = []string{"owner", "founder", "c_suite"}

// apolloLockedEmail is the placeholder Apollo returns for addresses that
// have not been revealed.
const apolloLockedEmail = "email_not_unlocked@domain.com"

// ApolloAdapter looks people up in a contact database.
type ApolloAdapter struct {
	meta   Metadata
	client apollo.Client
}

// NewApolloAdapter creates the contact-database adapter.
func NewApolloAdapter(client apollo.Client, meta Metadata) *ApolloAdapter {
	return &ApolloAdapter{meta: meta, client: client}
}

// Metadata implements Adapter.
func (a *ApolloAdapter) Metadata() Metadata { return a.meta }

// DiscoverQuery implements Discoverer.
func (a *ApolloAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Domain == "" {
		return "", false
	}
	return "domain:" + company.Domain, true
}

// FetchDiscover implements Discoverer.
func (a *ApolloAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	resp, err := a.client.SearchPeople(ctx, apollo.SearchRequest{
		OrganizationDomains: []string{company.Domain},
		PersonSeniorities:   apolloSeniorities,
		PerPage:             apolloMaxDiscover,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.People) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(resp)
}

// ParseDiscover implements Discoverer.
func (a *ApolloAdapter) ParseDiscover(_ model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var resp apollo.SearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal payload")
	}
	var out []map[model.Field]string
	for i := range resp.People {
		fields := personFields(&resp.People[i])
		if fields[model.FieldName] == "" {
			continue
		}
		out = append(out, fields)
	}
	return out, nil
}

// EnrichQuery implements Enricher. One match serves every field.
func (a *ApolloAdapter) EnrichQuery(company model.CompanyRecord, cand model.CandidateContact, f model.Field) (string, bool) {
	if !a.meta.Supplies(f) || (cand.Name == "" && cand.Email == "" && cand.ProfileURL == "") {
		return "", false
	}
	if company.Domain == "" && company.Name == "" {
		return "", false
	}
	key := cand.Email
	if key == "" {
		key = strings.ToLower(cand.Name)
	}
	return "match:" + key + "|" + company.Domain, true
}

// FetchEnrich implements Enricher.
func (a *ApolloAdapter) FetchEnrich(ctx context.Context, company model.CompanyRecord, cand model.CandidateContact, _ model.Field) ([]byte, error) {
	first, last := SplitName(cand.Name)
	p, err := a.client.PeopleMatch(ctx, apollo.MatchRequest{
		FirstName:        first,
		LastName:         last,
		Name:             cand.Name,
		Email:            cand.Email,
		OrganizationName: company.Name,
		Domain:           company.Domain,
		LinkedInURL:      cand.ProfileURL,
	})
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(p)
}

// ParseEnrich implements Enricher.
func (a *ApolloAdapter) ParseEnrich(_ model.CompanyRecord, _ model.CandidateContact, _ model.Field, payload []byte) (map[model.Field]string, error) {
	var p apollo.Person
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal payload")
	}
	fields := personFields(&p)
	delete(fields, model.FieldName)
	return fields, nil
}

func personFields(p *apollo.Person) map[model.Field]string {
	name := p.Name
	if name == "" {
		name = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	fields := map[model.Field]string{model.FieldName: name}
	if p.Title != "" {
		fields[model.FieldTitle] = p.Title
	}
	if p.Email != "" && p.Email != apolloLockedEmail && p.EmailStatus != "unavailable" {
		fields[model.FieldEmail] = p.Email
	}
	if ph := NormalizePhone(p.Phone()); ph != "" {
		fields[model.FieldPhone] = ph
	}
	if u := ExtractProfileURL(p.LinkedInURL); u != "" {
		fields[model.FieldProfileURL] = u
	}
	return fields
}
