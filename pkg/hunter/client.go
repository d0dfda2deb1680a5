// Package hunter provides a client for the Hunter.io email finder and domain
// search endpoints.
package hunter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/pkg/apierr"
)

const defaultBaseURL = "https://api.hunter.io/v2"

// Client performs Hunter.io lookups.
type Client interface {
	// EmailFinder guesses the email address of a named person at a domain.
	EmailFinder(ctx context.Context, req EmailFinderRequest) (*EmailFinderResult, error)
	// DomainSearch lists known addresses at a domain, optionally filtered
	// by seniority.
	DomainSearch(ctx context.Context, domain string, opts ...SearchOption) (*DomainSearchResult, error)
}

// EmailFinderRequest names the person to look up.
type EmailFinderRequest struct {
	Domain    string
	Company   string
	FirstName string
	LastName  string
	FullName  string
}

// EmailFinderResult is the data payload of GET /email-finder.
type EmailFinderResult struct {
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Score       int      `json:"score"`
	Domain      string   `json:"domain"`
	Position    string   `json:"position"`
	LinkedInURL string   `json:"linkedin_url"`
	PhoneNumber string   `json:"phone_number"`
	Sources     []Source `json:"sources,omitempty"`
}

// Source is a page where Hunter saw the address.
type Source struct {
	Domain string `json:"domain"`
	URI    string `json:"uri"`
}

// DomainSearchResult is the data payload of GET /domain-search.
type DomainSearchResult struct {
	Domain       string  `json:"domain"`
	Organization string  `json:"organization"`
	Pattern      string  `json:"pattern"`
	Emails       []Email `json:"emails"`
}

// Email is one address from a domain search.
type Email struct {
	Value       string `json:"value"`
	Type        string `json:"type"`
	Confidence  int    `json:"confidence"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Position    string `json:"position"`
	Seniority   string `json:"seniority"`
	LinkedIn    string `json:"linkedin"`
	PhoneNumber string `json:"phone_number"`
}

// SearchOption configures a domain search.
type SearchOption func(url.Values)

// WithSeniority filters results, e.g. "executive" or "senior".
func WithSeniority(levels string) SearchOption {
	return func(v url.Values) { v.Set("seniority", levels) }
}

// WithLimit caps the number of returned addresses.
func WithLimit(n int) SearchOption {
	return func(v url.Values) { v.Set("limit", strconv.Itoa(n)) }
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

// NewClient creates a Hunter.io client.
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

func (c *httpClient) EmailFinder(ctx context.Context, req EmailFinderRequest) (*EmailFinderResult, error) {
	v := url.Values{}
	if req.Domain != "" {
		v.Set("domain", req.Domain)
	} else if req.Company != "" {
		v.Set("company", req.Company)
	} else {
		return nil, eris.New("hunter: domain or company is required")
	}
	switch {
	case req.FirstName != "" && req.LastName != "":
		v.Set("first_name", req.FirstName)
		v.Set("last_name", req.LastName)
	case req.FullName != "":
		v.Set("full_name", req.FullName)
	default:
		return nil, eris.New("hunter: a name is required")
	}

	var out struct {
		Data EmailFinderResult `json:"data"`
	}
	if err := c.get(ctx, "/email-finder", v, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) DomainSearch(ctx context.Context, domain string, opts ...SearchOption) (*DomainSearchResult, error) {
	if domain == "" {
		return nil, eris.New("hunter: domain is required")
	}
	v := url.Values{"domain": {domain}}
	for _, o := range opts {
		o(v)
	}

	var out struct {
		Data DomainSearchResult `json:"data"`
	}
	if err := c.get(ctx, "/domain-search", v, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *httpClient) get(ctx context.Context, path string, v url.Values, dst any) error {
	v.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+v.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "hunter: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "hunter: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "hunter: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return apierr.New("hunter", resp, body)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return eris.Wrap(err, "hunter: unmarshal response")
	}
	return nil
}
