package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
)

// Failure attributions.
const (
	AttrOK                 = "ok"
	AttrDiscoveryMiss      = "discovery_miss"
	AttrEnrichmentMiss     = "enrichment_miss"
	AttrWrongIdentity      = "wrong_identity"
	AttrValidatorRejection = "validator_rejection"
)

// Config holds evaluation thresholds.
type Config struct {
	// NameThreshold is the name-token similarity for a contact to count as
	// the truth person.
	NameThreshold        float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	IdentityThreshold    float64 `yaml:"identity_threshold" mapstructure:"identity_threshold"`
	EmailThreshold       float64 `yaml:"email_threshold" mapstructure:"email_threshold"`
	PrecisionThreshold   float64 `yaml:"precision_threshold" mapstructure:"precision_threshold"`
	BucketWidth          int     `yaml:"bucket_width" mapstructure:"bucket_width"`
	CalibrationTolerance float64 `yaml:"calibration_tolerance" mapstructure:"calibration_tolerance"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		NameThreshold:        0.5,
		IdentityThreshold:    0.80,
		EmailThreshold:       0.60,
		PrecisionThreshold:   0.80,
		BucketWidth:          10,
		CalibrationTolerance: 15,
	}
}

// Metric is one scored measurement.
type Metric struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	// AtMost marks metrics that pass when Value <= Threshold.
	AtMost bool   `json:"at_most,omitempty"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail"`
}

// CompanyOutcome explains the result for one scored company.
type CompanyOutcome struct {
	Company       string `json:"company"`
	Attribution   string `json:"attribution"`
	TruthName     string `json:"truth_name"`
	TopName       string `json:"top_name,omitempty"`
	TopConfidence int    `json:"top_confidence"`
	IdentityMatch bool   `json:"identity_match"`
	EmailMatch    bool   `json:"email_match"`
}

// ProviderReport compares one provider run in isolation.
type ProviderReport struct {
	Provider       string  `json:"provider"`
	Companies      int     `json:"companies"`
	Covered        int     `json:"covered"`
	Matched        int     `json:"matched"`
	Coverage       float64 `json:"coverage"`
	MatchRate      float64 `json:"match_rate"`
	CostUSD        float64 `json:"cost_usd"`
	CostPerCorrect float64 `json:"cost_per_correct"`
}

// ProviderRun is the discovery output of one provider run alone over the
// dataset. UnitCostUSD prices every answered query, cached or not, so
// providers compare at list price.
type ProviderRun struct {
	Provider    string                       `json:"provider"`
	UnitCostUSD float64                      `json:"unit_cost_usd"`
	Discoveries []discovery.CompanyDiscovery `json:"discoveries"`
}

// Report is the full evaluation result.
type Report struct {
	Dataset     string           `json:"dataset"`
	Companies   int              `json:"companies"`
	Excluded    int              `json:"excluded"`
	Metrics     []Metric         `json:"metrics"`
	Calibration Calibration      `json:"calibration"`
	Providers   []ProviderReport `json:"providers,omitempty"`
	Outcomes    []CompanyOutcome `json:"outcomes"`
	Attribution map[string]int   `json:"attribution"`
}

// PassCount returns how many metrics passed and the total.
func (r *Report) PassCount() (passed, total int) {
	for _, m := range r.Metrics {
		if m.Pass {
			passed++
		}
	}
	return passed, len(r.Metrics)
}

// Evaluate scores results against the dataset. Results are matched to
// truth companies by company key; companies whose truth contacts are all
// weakest-tier are excluded. The dataset is copied first and never modified.
func Evaluate(ds *Dataset, results []model.CompanyResult, probes []ProviderRun, cfg Config) *Report {
	def := DefaultConfig()
	if cfg.NameThreshold <= 0 {
		cfg.NameThreshold = def.NameThreshold
	}
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = def.BucketWidth
	}
	if cfg.CalibrationTolerance <= 0 {
		cfg.CalibrationTolerance = def.CalibrationTolerance
	}

	truth := ds.Clone()
	byKey := make(map[string]model.CompanyResult, len(results))
	for _, r := range results {
		byKey[r.Company.Key()] = r
	}

	rep := &Report{Dataset: truth.Name, Attribution: make(map[string]int)}
	var (
		identity, emailHits, emailTotal int
		accepted, acceptedCorrect       int
		samples                         []Sample
	)
	for _, tc := range truth.Companies {
		scored := tc.Scored()
		if len(scored) == 0 {
			rep.Excluded++
			continue
		}
		rep.Companies++

		res := byKey[tc.Company.Key()]
		o := judgeCompany(tc.Company.Key(), scored, res, cfg.NameThreshold)
		rep.Outcomes = append(rep.Outcomes, o)
		rep.Attribution[o.Attribution]++
		if o.IdentityMatch {
			identity++
		}

		if want := topTruthWithEmail(scored, res, cfg.NameThreshold); want != "" {
			emailTotal++
			if o.EmailMatch {
				emailHits++
			}
		}

		for _, c := range res.Contacts {
			correct := matchTruth(c.Candidate, scored, cfg.NameThreshold) >= 0
			samples = append(samples, Sample{Confidence: c.Validation.Confidence, Correct: correct})
			if c.Validation.IsValid {
				accepted++
				if correct {
					acceptedCorrect++
				}
			}
		}
	}

	rep.Calibration = Calibrate(samples, cfg.BucketWidth, cfg.CalibrationTolerance)

	idVal := ratio(identity, rep.Companies)
	emailVal := ratio(emailHits, emailTotal)
	precision := ratio(acceptedCorrect, accepted)
	rep.Metrics = []Metric{
		{
			ID: "E1", Name: "identity_accuracy", Value: idVal, Threshold: cfg.IdentityThreshold,
			Pass: idVal >= cfg.IdentityThreshold, Detail: fmt.Sprintf("%d/%d", identity, rep.Companies),
		},
		{
			ID: "E2", Name: "email_exact_match", Value: emailVal, Threshold: cfg.EmailThreshold,
			Pass: emailVal >= cfg.EmailThreshold, Detail: fmt.Sprintf("%d/%d", emailHits, emailTotal),
		},
		{
			ID: "E3", Name: "accepted_precision", Value: precision, Threshold: cfg.PrecisionThreshold,
			Pass: precision >= cfg.PrecisionThreshold, Detail: fmt.Sprintf("%d/%d", acceptedCorrect, accepted),
		},
		{
			ID: "E4", Name: "calibration_error", Value: rep.Calibration.ECE, Threshold: cfg.CalibrationTolerance, AtMost: true,
			Pass: rep.Calibration.ECE <= cfg.CalibrationTolerance, Detail: fmt.Sprintf("%d samples", rep.Calibration.Samples),
		},
		{
			ID: "E5", Name: "calibration_max_gap", Value: rep.Calibration.MaxGap, Threshold: cfg.CalibrationTolerance, AtMost: true,
			Pass: rep.Calibration.WithinTolerance, Detail: fmt.Sprintf("%d buckets", len(rep.Calibration.Buckets)),
		},
	}

	rep.Providers = compareProviders(truth, probes, cfg.NameThreshold)
	return rep
}

// judgeCompany attributes one company's outcome to a pipeline stage.
func judgeCompany(key string, scored []TruthContact, res model.CompanyResult, threshold float64) CompanyOutcome {
	o := CompanyOutcome{Company: key, TruthName: scored[0].Name}
	if len(res.Contacts) == 0 {
		o.Attribution = AttrDiscoveryMiss
		return o
	}

	top := res.Contacts[0]
	o.TopName = top.Candidate.Name
	o.TopConfidence = top.Validation.Confidence

	matchedAt := -1
	var truth TruthContact
	for i, c := range res.Contacts {
		if t := matchTruth(c.Candidate, scored, threshold); t >= 0 {
			matchedAt, truth = i, scored[t]
			break
		}
	}
	if matchedAt < 0 {
		o.Attribution = AttrWrongIdentity
		return o
	}

	o.TruthName = truth.Name
	matched := res.Contacts[matchedAt]
	o.IdentityMatch = matchedAt == 0
	o.EmailMatch = o.IdentityMatch && truth.Email != "" && strings.EqualFold(matched.Candidate.Email, truth.Email)

	switch {
	case matchedAt != 0 || !matched.Validation.IsValid:
		o.Attribution = AttrValidatorRejection
	case truth.Email != "" && !o.EmailMatch, truth.Phone != "" && matched.Candidate.Phone == "":
		o.Attribution = AttrEnrichmentMiss
	default:
		o.Attribution = AttrOK
	}
	return o
}

// topTruthWithEmail returns the email expected for the company: that of
// the truth contact matched by the top result, or else of the strongest
// truth contact.
func topTruthWithEmail(scored []TruthContact, res model.CompanyResult, threshold float64) string {
	if len(res.Contacts) > 0 {
		if t := matchTruth(res.Contacts[0].Candidate, scored, threshold); t >= 0 {
			return scored[t].Email
		}
	}
	return scored[0].Email
}

// matchTruth returns the index of the truth contact c identifies, or -1.
// An exact email or profile URL match counts, as does name similarity.
func matchTruth(c model.CandidateContact, truth []TruthContact, threshold float64) int {
	for i, t := range truth {
		if c.Email != "" && strings.EqualFold(c.Email, t.Email) {
			return i
		}
		if c.ProfileURL != "" && strings.EqualFold(strings.TrimRight(c.ProfileURL, "/"), strings.TrimRight(t.ProfileURL, "/")) {
			return i
		}
	}
	ct := discovery.NameTokens(c.Name)
	for i, t := range truth {
		if discovery.Jaccard(ct, discovery.NameTokens(t.Name)) >= threshold {
			return i
		}
	}
	return -1
}

// compareProviders ranks providers by cost per correct contact.
func compareProviders(truth *Dataset, probes []ProviderRun, threshold float64) []ProviderReport {
	if len(probes) == 0 {
		return nil
	}
	scored := make(map[string][]TruthContact, len(truth.Companies))
	for _, tc := range truth.Companies {
		if s := tc.Scored(); len(s) > 0 {
			scored[tc.Company.Key()] = s
		}
	}

	out := make([]ProviderReport, 0, len(probes))
	for _, p := range probes {
		pr := ProviderReport{Provider: p.Provider}
		for _, d := range p.Discoveries {
			s, ok := scored[d.Company.Key()]
			if !ok {
				continue
			}
			pr.Companies++
			if h, ok := d.Hit(p.Provider); ok && billable(h.Outcome) {
				pr.CostUSD += p.UnitCostUSD
			}
			if len(d.Candidates) == 0 {
				continue
			}
			pr.Covered++
			for _, c := range d.Candidates {
				if matchTruth(c, s, threshold) >= 0 {
					pr.Matched++
					break
				}
			}
		}
		pr.Coverage = ratio(pr.Covered, pr.Companies)
		pr.MatchRate = ratio(pr.Matched, pr.Companies)
		if pr.Matched > 0 {
			pr.CostPerCorrect = pr.CostUSD / float64(pr.Matched)
		}
		out = append(out, pr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Matched == 0) != (b.Matched == 0) {
			return a.Matched > 0
		}
		if a.CostPerCorrect != b.CostPerCorrect {
			return a.CostPerCorrect < b.CostPerCorrect
		}
		return a.Provider < b.Provider
	})
	return out
}

func billable(outcome string) bool {
	switch outcome {
	case provider.OutcomeOK, provider.OutcomeNoMatch, provider.OutcomeCached:
		return true
	}
	return false
}

// ratio returns num/denom, or 0 when there is nothing to measure.
func ratio(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
