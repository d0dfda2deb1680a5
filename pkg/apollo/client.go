// Package apollo provides a client for the Apollo.io people match and people
// search endpoints.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/pkg/apierr"
)

const defaultBaseURL = "https://api.apollo.io/api/v1"

// Client performs Apollo.io lookups.
type Client interface {
	// PeopleMatch enriches a single person identified by name and company.
	PeopleMatch(ctx context.Context, req MatchRequest) (*Person, error)
	// SearchPeople lists people at an organization domain filtered by title.
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// MatchRequest is the body of POST /people/match.
type MatchRequest struct {
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	Domain           string `json:"domain,omitempty"`
	LinkedInURL      string `json:"linkedin_url,omitempty"`
	RevealPhone      bool   `json:"reveal_phone_number,omitempty"`
}

// SearchRequest is the body of POST /mixed_people/search.
type SearchRequest struct {
	OrganizationDomains []string `json:"q_organization_domains_list,omitempty"`
	PersonTitles        []string `json:"person_titles,omitempty"`
	PersonSeniorities   []string `json:"person_seniorities,omitempty"`
	Page                int      `json:"page,omitempty"`
	PerPage             int      `json:"per_page,omitempty"`
}

// Person is an Apollo person record.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Name         string        `json:"name"`
	Title        string        `json:"title"`
	Email        string        `json:"email"`
	EmailStatus  string        `json:"email_status"`
	LinkedInURL  string        `json:"linkedin_url"`
	PhoneNumbers []PhoneNumber `json:"phone_numbers,omitempty"`
	Organization *Organization `json:"organization,omitempty"`
}

// Phone returns the first sanitized phone number, if any.
func (p *Person) Phone() string {
	if p == nil {
		return ""
	}
	for _, n := range p.PhoneNumbers {
		if n.SanitizedNumber != "" {
			return n.SanitizedNumber
		}
		if n.RawNumber != "" {
			return n.RawNumber
		}
	}
	return ""
}

// PhoneNumber is one number attached to a person.
type PhoneNumber struct {
	RawNumber       string `json:"raw_number"`
	SanitizedNumber string `json:"sanitized_number"`
	Type            string `json:"type"`
}

// Organization is the employer attached to a person.
type Organization struct {
	Name          string `json:"name"`
	PrimaryDomain string `json:"primary_domain"`
	WebsiteURL    string `json:"website_url"`
}

// SearchResponse is the response from POST /mixed_people/search.
type SearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the current result page.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) PeopleMatch(ctx context.Context, req MatchRequest) (*Person, error) {
	var out struct {
		Person *Person `json:"person"`
	}
	if err := c.post(ctx, "/people/match", req, &out); err != nil {
		return nil, err
	}
	if out.Person == nil {
		return &Person{}, nil
	}
	return out.Person, nil
}

func (c *httpClient) SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if len(req.OrganizationDomains) == 0 {
		return nil, eris.New("apollo: at least one organization domain is required")
	}
	var out SearchResponse
	if err := c.post(ctx, "/mixed_people/search", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) post(ctx context.Context, path string, in, dst any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return eris.Wrap(err, "apollo: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return apierr.New("apollo", resp, respBody)
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return eris.Wrap(err, "apollo: unmarshal response")
	}
	return nil
}
