package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
)

// Title categories.
const (
	TitleStrongOwner   = "strong_owner"
	TitleOwnerAdjacent = "owner_adjacent"
	TitleOther         = "other"
	TitleNone          = ""
)

// TitlePoints holds the points per title category.
type TitlePoints struct {
	StrongOwner   int `yaml:"strong_owner" mapstructure:"strong_owner"`
	OwnerAdjacent int `yaml:"owner_adjacent" mapstructure:"owner_adjacent"`
	Other         int `yaml:"other" mapstructure:"other"`
}

// RuleConfig holds the tunable weights of rule scoring.
type RuleConfig struct {
	// SourcePoints are awarded once per distinct provider on the contact.
	SourcePoints        map[string]int `yaml:"source_points" mapstructure:"source_points"`
	DefaultSourcePoints int            `yaml:"default_source_points" mapstructure:"default_source_points"`
	TitlePoints         TitlePoints    `yaml:"title_points" mapstructure:"title_points"`
	PhoneBonus          int            `yaml:"phone_bonus" mapstructure:"phone_bonus"`
	DomainEmailBonus    int            `yaml:"domain_email_bonus" mapstructure:"domain_email_bonus"`
	FullNameBonus       int            `yaml:"full_name_bonus" mapstructure:"full_name_bonus"`
	ProfileURLBonus     int            `yaml:"profile_url_bonus" mapstructure:"profile_url_bonus"`
	Threshold           int            `yaml:"threshold" mapstructure:"threshold"`

	StrongOwnerTitles   []string `yaml:"strong_owner_titles" mapstructure:"strong_owner_titles"`
	OwnerAdjacentTitles []string `yaml:"owner_adjacent_titles" mapstructure:"owner_adjacent_titles"`
	// TitleQualifiers demote a strong-owner match to owner-adjacent
	// ("vice president", "assistant to the owner").
	TitleQualifiers []string `yaml:"title_qualifiers" mapstructure:"title_qualifiers"`
}

// DefaultRuleConfig returns the default SMB scoring weights.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		SourcePoints: map[string]int{
			provider.NameSearch:  10,
			provider.NamePlaces:  15,
			provider.NameWebsite: 20,
			provider.NameProfile: 20,
			provider.NameHunter:  20,
			provider.NameApollo:  25,
		},
		DefaultSourcePoints: 15,
		TitlePoints:         TitlePoints{StrongOwner: 30, OwnerAdjacent: 15, Other: 5},
		PhoneBonus:          10,
		DomainEmailBonus:    20,
		FullNameBonus:       10,
		ProfileURLBonus:     5,
		Threshold:           60,
		StrongOwnerTitles: []string{
			"owner", "co owner", "founder", "co founder", "president", "ceo",
			"chief executive", "proprietor", "principal", "managing partner",
			"managing member", "managing director",
		},
		OwnerAdjacentTitles: []string{
			"general manager", "manager", "director", "partner", "vp", "coo",
			"cfo", "cto", "chief", "head of", "superintendent", "operations",
		},
		TitleQualifiers: []string{"vice", "assistant", "associate", "deputy", "executive assistant", "to the"},
	}
}

// ValidateRuleConfig checks that a RuleConfig is internally consistent.
func ValidateRuleConfig(c RuleConfig) error {
	var errs []string

	for name, p := range c.SourcePoints {
		if p < 0 {
			errs = append(errs, fmt.Sprintf("source_points.%s must be >= 0", name))
		}
	}
	points := map[string]int{
		"default_source_points":       c.DefaultSourcePoints,
		"title_points.strong_owner":   c.TitlePoints.StrongOwner,
		"title_points.owner_adjacent": c.TitlePoints.OwnerAdjacent,
		"title_points.other":          c.TitlePoints.Other,
		"phone_bonus":                 c.PhoneBonus,
		"domain_email_bonus":          c.DomainEmailBonus,
		"full_name_bonus":             c.FullNameBonus,
		"profile_url_bonus":           c.ProfileURLBonus,
	}
	for name, p := range points {
		if p < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if c.TitlePoints.StrongOwner < c.TitlePoints.OwnerAdjacent || c.TitlePoints.OwnerAdjacent < c.TitlePoints.Other {
		errs = append(errs, "title_points must be ordered strong_owner >= owner_adjacent >= other")
	}
	if c.Threshold < 1 || c.Threshold > 100 {
		errs = append(errs, "threshold must be between 1 and 100")
	}
	if len(c.StrongOwnerTitles) == 0 {
		errs = append(errs, "strong_owner_titles must not be empty")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("validate: rule config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// RuleValidator scores contacts with fixed points. It is deterministic:
// the same contact always yields the same result.
type RuleValidator struct {
	cfg      RuleConfig
	strong   []string
	adjacent []string
	demote   []string
}

// NewRuleValidator creates a rule validator.
func NewRuleValidator(cfg RuleConfig) *RuleValidator {
	return &RuleValidator{
		cfg:      cfg,
		strong:   normalizeAll(cfg.StrongOwnerTitles),
		adjacent: normalizeAll(cfg.OwnerAdjacentTitles),
		demote:   normalizeAll(cfg.TitleQualifiers),
	}
}

// Validate implements Validator.
func (v *RuleValidator) Validate(_ context.Context, company model.CompanyRecord, c model.CandidateContact) model.ValidationResult {
	return v.Score(company, c)
}

// Score computes the rule result. Contributions are listed in evaluation
// order: sources, title, phone, domain email, full name, profile URL.
func (v *RuleValidator) Score(company model.CompanyRecord, c model.CandidateContact) model.ValidationResult {
	var breakdown []model.Contribution
	var reasons []string
	add := func(criterion string, points int, reason string) {
		if points == 0 {
			return
		}
		breakdown = append(breakdown, model.Contribution{Criterion: criterion, Points: points})
		reasons = append(reasons, fmt.Sprintf("%s (+%d)", reason, points))
	}

	for _, p := range c.Providers() {
		pts, ok := v.cfg.SourcePoints[p]
		if !ok {
			pts = v.cfg.DefaultSourcePoints
		}
		add("source:"+p, pts, "found by "+p)
	}

	switch cat := v.TitleCategory(c.Title); cat {
	case TitleStrongOwner:
		add("title", v.cfg.TitlePoints.StrongOwner, fmt.Sprintf("title %q is an owner title", c.Title))
	case TitleOwnerAdjacent:
		add("title", v.cfg.TitlePoints.OwnerAdjacent, fmt.Sprintf("title %q is owner-adjacent", c.Title))
	case TitleOther:
		add("title", v.cfg.TitlePoints.Other, fmt.Sprintf("title %q", c.Title))
	}

	if c.Phone != "" {
		add("phone", v.cfg.PhoneBonus, "has phone")
	}
	if c.Email != "" {
		if EmailMatchesDomain(c.Email, company.Domain) {
			add("domain_email", v.cfg.DomainEmailBonus, "email on company domain")
		} else if company.Domain != "" {
			reasons = append(reasons, "email is not on "+company.Domain)
		}
	}
	if len(strings.Fields(c.Name)) >= 2 {
		add("full_name", v.cfg.FullNameBonus, "full name")
	}
	if c.ProfileURL != "" {
		add("profile_url", v.cfg.ProfileURLBonus, "has profile URL")
	}

	res := model.NewValidationResult(model.StrategyRule, breakdown, reasons)
	res.IsValid = res.Confidence >= v.cfg.Threshold
	if res.IsValid {
		res.Reasons = append(res.Reasons, fmt.Sprintf("accepted: %d >= %d", res.Confidence, v.cfg.Threshold))
	} else {
		res.Reasons = append(res.Reasons, fmt.Sprintf("rejected: %d < %d", res.Confidence, v.cfg.Threshold))
	}
	return res
}

// TitleCategory classifies a job title.
func (v *RuleValidator) TitleCategory(title string) string {
	t := normalizeTitle(title)
	if t == "" {
		return TitleNone
	}
	if containsAny(t, v.strong) {
		if containsAny(t, v.demote) {
			return TitleOwnerAdjacent
		}
		return TitleStrongOwner
	}
	if containsAny(t, v.adjacent) {
		return TitleOwnerAdjacent
	}
	return TitleOther
}

// EmailMatchesDomain reports whether email is on domain or one of its
// subdomains.
func EmailMatchesDomain(email, domain string) bool {
	at := strings.LastIndex(email, "@")
	domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www.")
	if at < 0 || domain == "" {
		return false
	}
	host := strings.ToLower(email[at+1:])
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// normalizeTitle lowercases s and replaces punctuation with spaces so that
// phrases can be matched on word boundaries.
func normalizeTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalizeTitle(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(title string, phrases []string) bool {
	padded := " " + title + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
