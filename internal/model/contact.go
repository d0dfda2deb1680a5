package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// SourceKind distinguishes how a provider contributed to a contact.
type SourceKind string

const (
	SourceDiscover SourceKind = "discover"
	SourceEnrich   SourceKind = "enrich"
)

// SourceTag records one provider contribution. Priority is copied from the
// provider's metadata at the time of the call; lower is more reliable.
type SourceTag struct {
	Provider string     `json:"provider"`
	Kind     SourceKind `json:"kind"`
	Priority int        `json:"priority"`
	Field    Field      `json:"field,omitempty"`
}

// PayloadRef points at the cached raw provider response a value came from.
type PayloadRef struct {
	Provider string `json:"provider"`
	CacheKey string `json:"cache_key"`
}

// ErrNoProvenance is returned when a contact would be created without sources.
var ErrNoProvenance = eris.New("model: contact has no sources")

// CandidateContact is an unvalidated person record for a company. Values are
// immutable in practice: WithField and Absorb return new versions and never
// modify the receiver. The source list is unexported so a contact cannot be
// built without going through NewCandidate.
type CandidateContact struct {
	Name        string
	Title       string
	Email       string
	Phone       string
	ProfileURL  string
	PayloadRefs []PayloadRef
	Version     int

	sources []SourceTag
}

// NewCandidate creates a contact from a single provider response.
func NewCandidate(src SourceTag, fields map[Field]string, ref PayloadRef) (CandidateContact, error) {
	if src.Provider == "" {
		return CandidateContact{}, ErrNoProvenance
	}
	c := CandidateContact{sources: []SourceTag{src}, Version: 1}
	for f, v := range fields {
		c.set(f, strings.TrimSpace(v))
	}
	if ref.CacheKey != "" {
		c.PayloadRefs = []PayloadRef{ref}
	}
	return c, nil
}

// Sources returns a copy of the provenance list in discovery order.
func (c CandidateContact) Sources() []SourceTag {
	out := make([]SourceTag, len(c.sources))
	copy(out, c.sources)
	return out
}

// Providers returns the distinct provider names in first-seen order.
func (c CandidateContact) Providers() []string {
	seen := make(map[string]bool, len(c.sources))
	var out []string
	for _, s := range c.sources {
		if !seen[s.Provider] {
			seen[s.Provider] = true
			out = append(out, s.Provider)
		}
	}
	return out
}

// BestPriority returns the lowest source priority on the contact.
func (c CandidateContact) BestPriority() int {
	best := 0
	for i, s := range c.sources {
		if i == 0 || s.Priority < best {
			best = s.Priority
		}
	}
	return best
}

// Get returns the value of field f.
func (c CandidateContact) Get(f Field) string {
	switch f {
	case FieldName:
		return c.Name
	case FieldTitle:
		return c.Title
	case FieldEmail:
		return c.Email
	case FieldPhone:
		return c.Phone
	case FieldProfileURL:
		return c.ProfileURL
	}
	return ""
}

// Has reports whether field f is populated.
func (c CandidateContact) Has(f Field) bool {
	return c.Get(f) != ""
}

// Missing returns the targets the contact does not yet have, in target order.
func (c CandidateContact) Missing(targets []Field) []Field {
	var out []Field
	for _, f := range targets {
		if !c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// WithField returns a new version with f set to value and src appended to
// the provenance. An existing value is never overwritten.
func (c CandidateContact) WithField(f Field, value string, src SourceTag, ref PayloadRef) CandidateContact {
	next := c.clone()
	if !next.Has(f) {
		next.set(f, strings.TrimSpace(value))
	}
	src.Field = f
	next.sources = append(next.sources, src)
	if ref.CacheKey != "" {
		next.PayloadRefs = append(next.PayloadRefs, ref)
	}
	next.Version++
	return next
}

// Absorb returns a new version carrying other's provenance after c's.
// Field values are left to the caller, which picks winners by priority.
func (c CandidateContact) Absorb(other CandidateContact) CandidateContact {
	next := c.clone()
	next.sources = append(next.sources, other.sources...)
	next.PayloadRefs = append(next.PayloadRefs, other.PayloadRefs...)
	return next
}

// Set returns a copy with f replaced by value. It is used when merging
// identities, where the winning value is chosen by source priority.
func (c CandidateContact) Set(f Field, value string) CandidateContact {
	next := c.clone()
	next.set(f, value)
	return next
}

func (c *CandidateContact) set(f Field, v string) {
	switch f {
	case FieldName:
		c.Name = v
	case FieldTitle:
		c.Title = v
	case FieldEmail:
		c.Email = strings.ToLower(v)
	case FieldPhone:
		c.Phone = v
	case FieldProfileURL:
		c.ProfileURL = v
	}
}

func (c CandidateContact) clone() CandidateContact {
	next := c
	next.sources = append([]SourceTag(nil), c.sources...)
	next.PayloadRefs = append([]PayloadRef(nil), c.PayloadRefs...)
	return next
}

type candidateJSON struct {
	Name        string       `json:"name,omitempty"`
	Title       string       `json:"title,omitempty"`
	Email       string       `json:"email,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	ProfileURL  string       `json:"profile_url,omitempty"`
	Sources     []SourceTag  `json:"sources"`
	PayloadRefs []PayloadRef `json:"payload_refs,omitempty"`
	Version     int          `json:"version"`
}

// MarshalJSON implements json.Marshaler.
func (c CandidateContact) MarshalJSON() ([]byte, error) {
	return json.Marshal(candidateJSON{
		Name:        c.Name,
		Title:       c.Title,
		Email:       c.Email,
		Phone:       c.Phone,
		ProfileURL:  c.ProfileURL,
		Sources:     c.sources,
		PayloadRefs: c.PayloadRefs,
		Version:     c.Version,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Contacts without sources are rejected.
func (c *CandidateContact) UnmarshalJSON(data []byte) error {
	var raw candidateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: unmarshal contact")
	}
	if len(raw.Sources) == 0 {
		return ErrNoProvenance
	}
	*c = CandidateContact{
		Name:        raw.Name,
		Title:       raw.Title,
		Email:       raw.Email,
		Phone:       raw.Phone,
		ProfileURL:  raw.ProfileURL,
		PayloadRefs: raw.PayloadRefs,
		Version:     raw.Version,
		sources:     raw.Sources,
	}
	return nil
}
