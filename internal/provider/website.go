package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/fetcher"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/pkg/apierr"
	"github.com/sells-group/contact-cli/pkg/jina"
)

// websitePaths are the pages that usually name a small company's people.
var websitePaths = []string{"", "/about", "/about-us", "/contact", "/contact-us", "/team", "/our-team"}

// roleMailboxes are shared inboxes that never belong to one person.
var roleMailboxes = map[string]bool{
	"info": true, "contact": true, "sales": true, "office": true,
	"support": true, "hello": true, "admin": true, "service": true,
	"billing": true, "careers": true, "jobs": true, "marketing": true,
}

// WebsitePage is the stripped text of one company page.
type WebsitePage struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// WebsiteAdapter scrapes the company's own site for named people and
// direct contact details.
type WebsiteAdapter struct {
	meta    Metadata
	fetcher fetcher.PageFetcher
	reader  jina.Client
}

// NewWebsiteAdapter creates the company website adapter. reader is optional
// and used for pages the direct fetch cannot render.
func NewWebsiteAdapter(f fetcher.PageFetcher, reader jina.Client, meta Metadata) *WebsiteAdapter {
	return &WebsiteAdapter{meta: meta, fetcher: f, reader: reader}
}

// Metadata implements Adapter.
func (a *WebsiteAdapter) Metadata() Metadata { return a.meta }

// DiscoverQuery implements Discoverer.
func (a *WebsiteAdapter) DiscoverQuery(company model.CompanyRecord) (string, bool) {
	if company.Domain == "" {
		return "", false
	}
	return company.Domain, true
}

// FetchDiscover implements Discoverer.
func (a *WebsiteAdapter) FetchDiscover(ctx context.Context, company model.CompanyRecord) ([]byte, error) {
	pages, err := a.fetchPages(ctx, company.Domain)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pages)
}

func (a *WebsiteAdapter) fetchPages(ctx context.Context, domain string) ([]WebsitePage, error) {
	var (
		pages   []WebsitePage
		lastErr error
	)
	for _, path := range websitePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u := "https://" + domain + path
		text, err := a.pageText(ctx, u)
		if err != nil {
			lastErr = err
			// A missing page is expected; anything else on the home page is fatal.
			if path == "" && !isNotFound(err) {
				return nil, err
			}
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, WebsitePage{URL: u, Text: text})
		}
	}
	if len(pages) == 0 {
		if lastErr != nil && !isNotFound(lastErr) {
			return nil, lastErr
		}
		return nil, resilience.ErrNoMatch
	}
	return pages, nil
}

func (a *WebsiteAdapter) pageText(ctx context.Context, u string) (string, error) {
	page, err := a.fetcher.Get(ctx, u)
	if err != nil {
		if isNotFound(err) || a.reader == nil {
			return "", err
		}
		// Blocked direct fetches go through the reader.
		resp, rerr := a.reader.Read(ctx, u)
		if rerr != nil {
			return "", err
		}
		return resp.Data.Content, nil
	}

	if !page.HTML() {
		return string(page.Body), nil
	}
	text := StripHTML(string(page.Body))
	if a.reader != nil && len(strings.Fields(text)) < 20 {
		// Script-rendered pages come back nearly empty.
		resp, rerr := a.reader.Read(ctx, u)
		if rerr == nil {
			return resp.Data.Content, nil
		}
		zap.L().Debug("website: reader fallback failed", zap.String("url", u), zap.Error(rerr))
	}
	return text, nil
}

func isNotFound(err error) bool {
	var ae *apierr.Error
	return errors.As(err, &ae) && (ae.StatusCode == 404 || ae.StatusCode == 410)
}

// ParseDiscover implements Discoverer.
func (a *WebsiteAdapter) ParseDiscover(company model.CompanyRecord, payload []byte) ([]map[model.Field]string, error) {
	var pages []WebsitePage
	if err := json.Unmarshal(payload, &pages); err != nil {
		return nil, eris.Wrap(err, "website: unmarshal payload")
	}

	var (
		people []Person
		emails []string
		phones []string
		seen   = make(map[string]bool)
	)
	for _, p := range pages {
		for _, person := range ExtractPeople(p.Text) {
			key := strings.ToLower(person.Name)
			if seen[key] || NameOverlapsCompany(person.Name, company.Name) {
				continue
			}
			seen[key] = true
			people = append(people, person)
		}
		emails = appendUnique(emails, ExtractEmails(p.Text, company.Domain)...)
		phones = appendUnique(phones, ExtractPhones(p.Text)...)
	}

	var personal []string
	for _, e := range emails {
		local, _, _ := strings.Cut(e, "@")
		if !roleMailboxes[local] {
			personal = append(personal, e)
		}
	}

	var out []map[model.Field]string
	used := make(map[string]bool)
	for i, person := range people {
		fields := map[model.Field]string{model.FieldName: person.Name, model.FieldTitle: person.Title}
		if e := matchEmail(person.Name, personal, used); e != "" {
			fields[model.FieldEmail] = e
			used[e] = true
		}
		if i == 0 && len(phones) > 0 {
			fields[model.FieldPhone] = phones[0]
		}
		out = append(out, fields)
	}
	if len(out) > 0 {
		return out, nil
	}

	// No named people: surface direct details so they can merge with a
	// person found elsewhere.
	for _, e := range personal {
		out = append(out, map[model.Field]string{model.FieldEmail: e})
	}
	if len(out) == 0 && len(phones) > 0 {
		out = append(out, map[model.Field]string{model.FieldPhone: phones[0]})
	}
	return out, nil
}

// matchEmail finds an address whose local part fits the person's name:
// first name, first.last, firstlast or initial plus last name.
func matchEmail(name string, emails []string, used map[string]bool) string {
	first, last := SplitName(name)
	first, last = strings.ToLower(first), strings.ToLower(last)
	if first == "" {
		return ""
	}
	candidates := []string{first}
	if last != "" {
		candidates = append(candidates,
			first+"."+last, first+last, first+"_"+last,
			first[:1]+last, first[:1]+"."+last, last)
	}
	for _, c := range candidates {
		for _, e := range emails {
			local, _, _ := strings.Cut(e, "@")
			if local == c && !used[e] {
				return e
			}
		}
	}
	return ""
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
