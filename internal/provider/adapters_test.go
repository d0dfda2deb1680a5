package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/fetcher"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/contact-cli/pkg/anthropic/mocks"
	"github.com/sells-group/contact-cli/pkg/apierr"
	"github.com/sells-group/contact-cli/pkg/apollo"
	"github.com/sells-group/contact-cli/pkg/google"
	"github.com/sells-group/contact-cli/pkg/hunter"
	"github.com/sells-group/contact-cli/pkg/jina"
	"github.com/sells-group/contact-cli/pkg/perplexity"
)

type fakeJina struct {
	search *jina.SearchResponse
	pages  map[string]string
}

func (f *fakeJina) Read(_ context.Context, u string) (*jina.ReadResponse, error) {
	if text, ok := f.pages[u]; ok {
		return &jina.ReadResponse{Data: jina.ReadData{URL: u, Content: text}}, nil
	}
	return nil, &apierr.Error{Service: "jina", StatusCode: 422}
}

func (f *fakeJina) Search(context.Context, string, ...jina.SearchOption) (*jina.SearchResponse, error) {
	return f.search, nil
}

func roundTrip(t *testing.T, d Discoverer, company model.CompanyRecord) []map[model.Field]string {
	t.Helper()
	payload, err := d.FetchDiscover(context.Background(), company)
	require.NoError(t, err)
	found, err := d.ParseDiscover(company, payload)
	require.NoError(t, err)
	return found
}

func TestSearchAdapter(t *testing.T) {
	client := &fakeJina{search: &jina.SearchResponse{Data: []jina.SearchResult{
		{Title: "Acme Plumbing - About", Description: "Acme Plumbing, Owner. Jane Smith, Owner of the shop."},
		{Title: "Jane Smith - Owner - Acme Plumbing | LinkedIn", URL: "https://www.linkedin.com/in/janesmith"},
	}}}
	a := NewSearchAdapter(client, DefaultCatalog()[NameSearch])

	q, ok := a.DiscoverQuery(acme)
	require.True(t, ok)
	assert.Equal(t, `"Acme Plumbing" owner`, q)

	found := roundTrip(t, a, acme)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Smith", found[0][model.FieldName])
	assert.Equal(t, "Owner", found[0][model.FieldTitle])
}

func TestSearchAdapter_ProfileURLFromResult(t *testing.T) {
	client := &fakeJina{search: &jina.SearchResponse{Data: []jina.SearchResult{
		{Title: "Jane Smith - Owner - Acme Plumbing | LinkedIn", URL: "https://www.linkedin.com/in/janesmith"},
	}}}
	a := NewSearchAdapter(client, DefaultCatalog()[NameSearch])

	found := roundTrip(t, a, acme)
	require.Len(t, found, 1)
	assert.Equal(t, "https://www.linkedin.com/in/janesmith", found[0][model.FieldProfileURL])
}

func TestSearchAdapter_NoResults(t *testing.T) {
	a := NewSearchAdapter(&fakeJina{search: &jina.SearchResponse{}}, DefaultCatalog()[NameSearch])
	_, err := a.FetchDiscover(context.Background(), acme)
	assert.ErrorIs(t, err, resilience.ErrNoMatch)
}

type fakePlaces struct{ resp *google.TextSearchResponse }

func (f fakePlaces) TextSearch(context.Context, string) (*google.TextSearchResponse, error) {
	return f.resp, nil
}

func TestPlacesAdapter(t *testing.T) {
	client := fakePlaces{resp: &google.TextSearchResponse{Places: []google.Place{
		{DisplayName: google.DisplayName{Text: "Other Plumbing"}, NationalPhoneNumber: "(555) 000-0000"},
		{DisplayName: google.DisplayName{Text: "Acme"}, WebsiteURI: "https://www.acme.com/", InternationalPhoneNumber: "+1 555-123-4567"},
	}}}
	a := NewPlacesAdapter(client, DefaultCatalog()[NamePlaces])

	found := roundTrip(t, a, acme)
	assert.Equal(t, []map[model.Field]string{{model.FieldPhone: "+15551234567"}}, found)

	dq, _ := a.DiscoverQuery(acme)
	eq, ok := a.EnrichQuery(acme, model.CandidateContact{}, model.FieldPhone)
	require.True(t, ok)
	assert.Equal(t, dq, eq, "discover and enrich share a cache entry")

	_, ok = a.EnrichQuery(acme, model.CandidateContact{}, model.FieldEmail)
	assert.False(t, ok)
}

func TestPlacesAdapter_NoMatchingListing(t *testing.T) {
	client := fakePlaces{resp: &google.TextSearchResponse{Places: []google.Place{
		{DisplayName: google.DisplayName{Text: "Unrelated Bakery"}, NationalPhoneNumber: "(555) 000-0000"},
	}}}
	a := NewPlacesAdapter(client, DefaultCatalog()[NamePlaces])
	assert.Empty(t, roundTrip(t, a, acme))
}

type fakePages map[string]string

func (f fakePages) Get(_ context.Context, u string) (*fetcher.Page, error) {
	body, ok := f[u]
	if !ok {
		return nil, &apierr.Error{Service: "acme.com", StatusCode: 404}
	}
	return &fetcher.Page{URL: u, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
}

func TestWebsiteAdapter(t *testing.T) {
	pages := fakePages{
		"https://acme.com": `<html><body><h1>Acme Plumbing</h1><p>Family owned since 1982. Call (555) 123-4567 for a free estimate today.` +
			` We serve the whole county with licensed plumbers and fast service.</p></body></html>`,
		"https://acme.com/about": `<div><h3>Jane Smith</h3><p>Owner</p></div><div><h3>Bob Jones</h3><p>General Manager</p></div>` +
			`<p>Email info@acme.com or jane@acme.com or bjones@acme.com</p>`,
	}
	a := NewWebsiteAdapter(pages, nil, DefaultCatalog()[NameWebsite])

	found := roundTrip(t, a, acme)
	require.Len(t, found, 2)
	assert.Equal(t, map[model.Field]string{
		model.FieldName:  "Jane Smith",
		model.FieldTitle: "Owner",
		model.FieldEmail: "jane@acme.com",
		model.FieldPhone: "+15551234567",
	}, found[0])
	assert.Equal(t, map[model.Field]string{
		model.FieldName:  "Bob Jones",
		model.FieldTitle: "General Manager",
		model.FieldEmail: "bjones@acme.com",
	}, found[1])
}

func TestWebsiteAdapter_NoPeopleFallsBackToDetails(t *testing.T) {
	pages := fakePages{"https://acme.com": `<p>Write to info@acme.com or mike@acme.com.</p>`}
	a := NewWebsiteAdapter(pages, nil, DefaultCatalog()[NameWebsite])

	found := roundTrip(t, a, acme)
	assert.Equal(t, []map[model.Field]string{{model.FieldEmail: "mike@acme.com"}}, found)
}

func TestWebsiteAdapter_AllPagesMissing(t *testing.T) {
	a := NewWebsiteAdapter(fakePages{}, nil, DefaultCatalog()[NameWebsite])
	_, err := a.FetchDiscover(context.Background(), acme)
	assert.ErrorIs(t, err, resilience.ErrNoMatch)
}

func TestWebsiteAdapter_ReaderForThinPages(t *testing.T) {
	pages := fakePages{"https://acme.com": `<div id="root"></div>`}
	reader := &fakeJina{pages: map[string]string{"https://acme.com": "Jane Smith, Owner"}}
	a := NewWebsiteAdapter(pages, reader, DefaultCatalog()[NameWebsite])

	found := roundTrip(t, a, acme)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Smith", found[0][model.FieldName])
}

func TestWebsiteAdapter_RequiresDomain(t *testing.T) {
	a := NewWebsiteAdapter(fakePages{}, nil, DefaultCatalog()[NameWebsite])
	_, ok := a.DiscoverQuery(model.CompanyRecord{Name: "Acme"})
	assert.False(t, ok)
}

type fakePerplexity struct{ content string }

func (f fakePerplexity) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	return &perplexity.ChatCompletionResponse{
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: f.content}}},
		Citations: []string{"https://acme.com/about"},
	}, nil
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: s}}}
}

func TestProfileAdapter_Discover(t *testing.T) {
	ai := anthropicmocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "haiku" && len(req.Messages) == 1
	})).Return(textResponse("```json\n"+`{"people":[{"name":"Jane Smith","title":"Owner","profile_url":"https://linkedin.com/in/jsmith/"},{"name":"Acme Plumbing","title":"Owner"}]}`+"\n```"), nil).Once()

	a := NewProfileAdapter(fakePerplexity{content: "Jane Smith owns Acme Plumbing."}, ai, "haiku", nil, DefaultCatalog()[NameProfile])
	found := roundTrip(t, a, acme)

	require.Len(t, found, 1)
	assert.Equal(t, map[model.Field]string{
		model.FieldName:       "Jane Smith",
		model.FieldTitle:      "Owner",
		model.FieldProfileURL: "https://linkedin.com/in/jsmith",
	}, found[0])
}

func TestProfileAdapter_EnrichSharesQueryAcrossFields(t *testing.T) {
	ai := anthropicmocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"name":"Jane Smith","title":"Chief Executive Officer","profile_url":"https://www.linkedin.com/in/jsmith"}`), nil).Once()

	a := NewProfileAdapter(fakePerplexity{content: "Jane Smith is CEO."}, ai, "haiku", nil, DefaultCatalog()[NameProfile])
	cand := model.CandidateContact{Name: "Jane Smith"}

	q1, ok := a.EnrichQuery(acme, cand, model.FieldTitle)
	require.True(t, ok)
	q2, _ := a.EnrichQuery(acme, cand, model.FieldProfileURL)
	assert.Equal(t, q1, q2)
	_, ok = a.EnrichQuery(acme, cand, model.FieldEmail)
	assert.False(t, ok)

	payload, err := a.FetchEnrich(context.Background(), acme, cand, model.FieldTitle)
	require.NoError(t, err)
	fields, err := a.ParseEnrich(acme, cand, model.FieldTitle, payload)
	require.NoError(t, err)
	assert.Equal(t, "Chief Executive Officer", fields[model.FieldTitle])
	assert.Equal(t, "https://www.linkedin.com/in/jsmith", fields[model.FieldProfileURL])
	assert.NotContains(t, fields, model.FieldName)
}

type fakeHunter struct {
	finder *hunter.EmailFinderResult
	search *hunter.DomainSearchResult
	req    hunter.EmailFinderRequest
}

func (f *fakeHunter) EmailFinder(_ context.Context, req hunter.EmailFinderRequest) (*hunter.EmailFinderResult, error) {
	f.req = req
	return f.finder, nil
}

func (f *fakeHunter) DomainSearch(context.Context, string, ...hunter.SearchOption) (*hunter.DomainSearchResult, error) {
	return f.search, nil
}

func TestHunterAdapter_Enrich(t *testing.T) {
	client := &fakeHunter{finder: &hunter.EmailFinderResult{Email: "jane@acme.com", Score: 91, Position: "Owner"}}
	a := NewHunterAdapter(client, DefaultCatalog()[NameHunter])
	cand := model.CandidateContact{Name: "Jane Q Smith"}

	_, ok := a.EnrichQuery(acme, cand, model.FieldEmail)
	require.True(t, ok)
	_, ok = a.EnrichQuery(acme, cand, model.FieldPhone)
	assert.False(t, ok)

	payload, err := a.FetchEnrich(context.Background(), acme, cand, model.FieldEmail)
	require.NoError(t, err)
	assert.Equal(t, hunter.EmailFinderRequest{Domain: "acme.com", FirstName: "Jane", LastName: "Smith"}, client.req)

	fields, err := a.ParseEnrich(acme, cand, model.FieldEmail, payload)
	require.NoError(t, err)
	assert.Equal(t, map[model.Field]string{model.FieldEmail: "jane@acme.com", model.FieldTitle: "Owner"}, fields)
}

func TestHunterAdapter_LowScoreIsNoMatch(t *testing.T) {
	client := &fakeHunter{finder: &hunter.EmailFinderResult{Email: "jane@acme.com", Score: 10}}
	a := NewHunterAdapter(client, DefaultCatalog()[NameHunter])
	_, err := a.FetchEnrich(context.Background(), acme, model.CandidateContact{Name: "Jane Smith"}, model.FieldEmail)
	assert.ErrorIs(t, err, resilience.ErrNoMatch)
}

func TestHunterAdapter_Discover(t *testing.T) {
	client := &fakeHunter{search: &hunter.DomainSearchResult{Emails: []hunter.Email{
		{Value: "info@acme.com", Type: "generic"},
		{Value: "jane@acme.com", Type: "personal", Confidence: 95, FirstName: "Jane", LastName: "Smith", Position: "Owner"},
		{Value: "bob@acme.com", Type: "personal", Confidence: 20, FirstName: "Bob", LastName: "Jones"},
	}}}
	a := NewHunterAdapter(client, DefaultCatalog()[NameHunter])

	found := roundTrip(t, a, acme)
	require.Len(t, found, 2)
	assert.Equal(t, "jane@acme.com", found[0][model.FieldEmail])
	assert.Equal(t, "Bob Jones", found[1][model.FieldName])
	assert.NotContains(t, found[1], model.FieldEmail)
}

type fakeApollo struct {
	person *apollo.Person
	search *apollo.SearchResponse
}

func (f fakeApollo) PeopleMatch(context.Context, apollo.MatchRequest) (*apollo.Person, error) {
	return f.person, nil
}

func (f fakeApollo) SearchPeople(context.Context, apollo.SearchRequest) (*apollo.SearchResponse, error) {
	return f.search, nil
}

func TestApolloAdapter_Enrich(t *testing.T) {
	client := fakeApollo{person: &apollo.Person{
		ID: "p1", Name: "Jane Smith", Title: "Owner",
		Email: "email_not_unlocked@domain.com", EmailStatus: "locked",
		PhoneNumbers: []apollo.PhoneNumber{{SanitizedNumber: "+15551234567"}},
		LinkedInURL:  "http://www.linkedin.com/in/jane-smith",
	}}
	a := NewApolloAdapter(client, DefaultCatalog()[NameApollo])
	cand := model.CandidateContact{Name: "Jane Smith"}

	payload, err := a.FetchEnrich(context.Background(), acme, cand, model.FieldPhone)
	require.NoError(t, err)
	fields, err := a.ParseEnrich(acme, cand, model.FieldPhone, payload)
	require.NoError(t, err)
	assert.Equal(t, map[model.Field]string{
		model.FieldTitle:      "Owner",
		model.FieldPhone:      "+15551234567",
		model.FieldProfileURL: "http://www.linkedin.com/in/jane-smith",
	}, fields)
}

func TestApolloAdapter_NoPerson(t *testing.T) {
	a := NewApolloAdapter(fakeApollo{person: &apollo.Person{}}, DefaultCatalog()[NameApollo])
	_, err := a.FetchEnrich(context.Background(), acme, model.CandidateContact{Name: "Jane Smith"}, model.FieldEmail)
	assert.ErrorIs(t, err, resilience.ErrNoMatch)
}

func TestApolloAdapter_Discover(t *testing.T) {
	client := fakeApollo{search: &apollo.SearchResponse{People: []apollo.Person{
		{FirstName: "Jane", LastName: "Smith", Title: "Founder", Email: "jane@acme.com", EmailStatus: "verified"},
		{Title: "Unknown"},
	}}}
	a := NewApolloAdapter(client, DefaultCatalog()[NameApollo])

	found := roundTrip(t, a, acme)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Smith", found[0][model.FieldName])
	assert.Equal(t, "jane@acme.com", found[0][model.FieldEmail])
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - name: dir
    unit_cost_usd: 0.01
    priority: 20
    fields: [name, title, email]
    ttl_class: medium
    timeout: 5s
    discover:
      acme.com:
        - {name: Jane Smith, title: Owner}
    enrich:
      "acme.com|jane smith": {email: jane@acme.com}
  - name: broken
    fields: [phone]
    fail: rate_limited
`), 0o644))

	fx, err := LoadFixtures(path)
	require.NoError(t, err)
	require.Len(t, fx.Providers, 2)
	assert.Equal(t, "5s", fx.Providers[0].Timeout.String())

	r := NewRegistry()
	require.NoError(t, fx.Register(r))
	dir := r.Get("dir").(*StaticAdapter)

	found := roundTrip(t, dir, acme)
	assert.Equal(t, []map[model.Field]string{{model.FieldName: "Jane Smith", model.FieldTitle: "Owner"}}, found)

	cand := model.CandidateContact{Name: "Jane Smith"}
	payload, err := dir.FetchEnrich(context.Background(), acme, cand, model.FieldEmail)
	require.NoError(t, err)
	fields, err := dir.ParseEnrich(acme, cand, model.FieldEmail, payload)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", fields[model.FieldEmail])

	broken := r.Get("broken").(*StaticAdapter)
	_, err = broken.FetchEnrich(context.Background(), acme, cand, model.FieldPhone)
	_, limited := resilience.AsRateLimited(resilience.Classify("broken", err))
	assert.True(t, limited)
}

func TestLoadFixtures_MissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  - unit_cost_usd: 1\n"), 0o644))
	_, err := LoadFixtures(path)
	assert.ErrorContains(t, err, "no name")
}
