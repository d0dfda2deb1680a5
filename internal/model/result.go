package model

import "sort"

// Pipeline stages used for error attribution.
const (
	StageDiscovery  = "discovery"
	StageEnrichment = "enrichment"
	StageValidation = "validation"
)

// StageError records a non-fatal failure local to one company.
type StageError struct {
	Stage    string `json:"stage"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message"`
}

// EnrichmentSummary describes how a contact left the waterfall.
type EnrichmentSummary struct {
	State    string  `json:"state"`
	Attempts int     `json:"attempts"`
	Filled   []Field `json:"filled,omitempty"`
	CostUSD  float64 `json:"cost_usd"`
	Reason   string  `json:"reason,omitempty"`
}

// ContactResult pairs a contact with its validation.
type ContactResult struct {
	Candidate  CandidateContact   `json:"candidate"`
	Validation ValidationResult   `json:"validation"`
	Enrichment *EnrichmentSummary `json:"enrichment,omitempty"`
}

// CompanyResult is one batch output record.
type CompanyResult struct {
	CompanyIdentifier string          `json:"company_identifier"`
	Company           CompanyRecord   `json:"company"`
	Contacts          []ContactResult `json:"contacts"`
	Errors            []StageError    `json:"errors,omitempty"`
	CostUSD           float64         `json:"cost_usd"`
}

// Top returns the highest-confidence contact, if any.
func (r CompanyResult) Top() (ContactResult, bool) {
	if len(r.Contacts) == 0 {
		return ContactResult{}, false
	}
	return r.Contacts[0], true
}

// SortContacts orders contacts by descending confidence. Equal confidences
// keep their discovery rank.
func SortContacts(contacts []ContactResult) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].Validation.Confidence > contacts[j].Validation.Confidence
	})
}
