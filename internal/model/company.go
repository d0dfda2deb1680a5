package model

import (
	"strings"
	"time"
)

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CompanyRecord is the canonical company identifier read from batch input.
// Records are passed by value and never modified after normalization.
type CompanyRecord struct {
	Row      int               `json:"row"`
	Name     string            `json:"name"`
	Domain   string            `json:"domain,omitempty"`
	City     string            `json:"city,omitempty"`
	State    string            `json:"state,omitempty"`
	Industry string            `json:"industry,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Key returns the identifier used to match a company across runs, caches,
// and ground truth: the domain when known, otherwise the lowercased name.
func (c CompanyRecord) Key() string {
	if c.Domain != "" {
		return strings.ToLower(c.Domain)
	}
	return strings.ToLower(strings.Join(strings.Fields(c.Name), " "))
}

// Location returns "City, ST" with whichever parts are present.
func (c CompanyRecord) Location() string {
	switch {
	case c.City != "" && c.State != "":
		return c.City + ", " + c.State
	case c.City != "":
		return c.City
	default:
		return c.State
	}
}

// Clone returns a copy that shares no mutable state with c.
func (c CompanyRecord) Clone() CompanyRecord {
	if c.Extra != nil {
		extra := make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}
	return c
}

// Run is a persisted batch run.
type Run struct {
	ID        string      `json:"id"`
	Input     string      `json:"input"`
	Segment   string      `json:"segment"`
	Total     int         `json:"total"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary holds aggregate counters for a finished run.
type RunSummary struct {
	Companies      int     `json:"companies"`
	WithContacts   int     `json:"with_contacts"`
	ValidContacts  int     `json:"valid_contacts"`
	CompanyErrors  int     `json:"company_errors"`
	Resumed        int     `json:"resumed"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	DurationMillis int64   `json:"duration_ms"`
}
