package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/anthropic"
	"github.com/sells-group/contact-cli/pkg/perplexity"
)

const profileResearchPrompt = `Who owns or runs "%s"%s? Name the owner, founder, president or CEO,
with their exact job title and their LinkedIn profile URL if one exists.
Only name people you find in sources. Return the raw information as text.`

const profilePersonPrompt = `Find the professional profile for %s at "%s"%s.
Give their current job title and LinkedIn profile URL. Return the raw information as text.`

const profileExtractPeoplePrompt = `Extract the people who own or lead the company from the research below.
Return a valid JSON object: {"people": [{"name": string, "title": string, "profile_url": string}]}.
Only include people explicitly named. Use an empty string for unknown fields.
Return {"people": []} if nobody is named.

Research data:
%s`

const profileExtractPersonPrompt = `Extract the profile of %s from the research below.
Return a valid JSON object: {"name": string, "title": string, "profile_url": string}.
Use an empty string for unknown fields. profile_url must be a linkedin.com/in/ URL or empty.

Research data:
%s`

// ProfilePerson is one person extracted from profile research.
type ProfilePerson struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	ProfileURL string `json:"profile_url"`
}

type profilePeople struct {
	People []ProfilePerson `json:"people"`
}

// ProfileAdapter researches people with a search-grounded model and
// extracts structured profiles with a small extraction model.
type ProfileAdapter struct {
	meta      Metadata
	research  perplexity.Client
	extractor anthropic.Client
	model     string
	costs     *cost.Calculator
}

// NewProfileAdapter creates the professional-profile adapter.
func NewProfileAdapter(research perplexity.Client, extractor anthropic.Client, extractModel string, costs *cost.Calculator, meta Metadata) *ProfileAdapter {
	return &ProfileAdapter{meta: meta, research: research, extractor: extractor, model: extractModel, costs: costs}
}

// Metadata implements Adapter.
func (a *ProfileAdapter) Metadata() Metadata { return a.meta }

func companyHint(company model.CompanyRecord) string {
	var parts []string
	if company.Domain != "" {
		parts = append(parts, company.Domain)
	}
	if loc := company.Location(); loc != "" {
		parts = append(parts, loc)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// DiscoverQuery implements Discoverer.
func (a *ProfileAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Name == "" {
		return "", false
	}
	return "company:" + strings.ToLower(company.Name) + "|" + company.Domain, true
}

// FetchDiscover implements Discoverer.
func (a *ProfileAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	raw, err := a.researchText(ctx, fmt.Sprintf(profileResearchPrompt, company.Name, companyHint(company)))
	if err != nil {
		return nil, err
	}
	text, err := a.extract(ctx, fmt.Sprintf(profileExtractPeoplePrompt, raw))
	if err != nil {
		return nil, err
	}
	var out profilePeople
	if err := json.Unmarshal([]byte(CleanJSON(text)), &out); err != nil {
		return nil, eris.Wrap(err, "profile: parse extraction json")
	}
	if len(out.People) == 0 {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(out)
}

// ParseDiscover implements Discoverer.
func (a *ProfileAdapter) ParseDiscover(company model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var in profilePeople
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, eris.Wrap(err, "profile: unmarshal payload")
	}
	var out []map[model.Field]string
	for _, p := range in.People {
		if strings.TrimSpace(p.Name) == "" || NameOverlapsCompany(p.Name, company.Name) {
			continue
		}
		out = append(out, p.fields())
	}
	return out, nil
}

// EnrichQuery implements Enricher. One lookup serves every field, so the
// query does not include the field.
func (a *ProfileAdapter) EnrichQuery(company model.CompanyRecord, cand model.CandidateContact, f model.Field) (string, bool) {
	if cand.Name == "" || company.Name == "" || !a.meta.Supplies(f) || f == model.FieldName {
		return "", false
	}
	return "person:" + strings.ToLower(cand.Name) + "|" + strings.ToLower(company.Name), true
}

// FetchEnrich implements Enricher.
func (a *ProfileAdapter) FetchEnrich(ctx context.Context, company model.CompanyRecord, cand model.CandidateContact, _ model.Field) ([]byte, error) {
	raw, err := a.researchText(ctx, fmt.Sprintf(profilePersonPrompt, cand.Name, company.Name, companyHint(company)))
	if err != nil {
		return nil, err
	}
	text, err := a.extract(ctx, fmt.Sprintf(profileExtractPersonPrompt, cand.Name, raw))
	if err != nil {
		return nil, err
	}
	var p ProfilePerson
	if err := json.Unmarshal([]byte(CleanJSON(text)), &p); err != nil {
		return nil, eris.Wrap(err, "profile: parse extraction json")
	}
	if p.Title == "" && p.ProfileURL == "" {
		return nil, resilience.ErrNoMatch
	}
	return json.Marshal(p)
}

// ParseEnrich implements Enricher.
func (a *ProfileAdapter) ParseEnrich(_ model.CompanyRecord, _ model.CandidateContact, _ model.Field, payload []byte) (map[model.Field]string, error) {
	var p ProfilePerson
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrap(err, "profile: unmarshal payload")
	}
	fields := p.fields()
	delete(fields, model.FieldName)
	return fields, nil
}

func (p ProfilePerson) fields() map[model.Field]string {
	fields := map[model.Field]string{model.FieldName: p.Name}
	if p.Title != "" {
		fields[model.FieldTitle] = p.Title
	}
	if u := ExtractProfileURL(p.ProfileURL); u != "" {
		fields[model.FieldProfileURL] = u
	}
	return fields
}

func (a *ProfileAdapter) researchText(ctx context.Context, prompt string) (string, error) {
	temp := 0.2
	resp, err := a.research.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages:    []perplexity.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "profile: research")
	}
	text := resp.Content()
	if strings.TrimSpace(text) == "" {
		return "", resilience.ErrNoMatch
	}
	if len(resp.Citations) > 0 {
		text += "\n\nSources:\n" + strings.Join(resp.Citations, "\n")
	}
	return text, nil
}

func (a *ProfileAdapter) extract(ctx context.Context, prompt string) (string, error) {
	resp, err := a.extractor.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "profile: extraction")
	}
	resp.Usage.LogCost(a.model, NameProfile,
		a.costs.Claude(a.model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)))
	return resp.Text(), nil
}
