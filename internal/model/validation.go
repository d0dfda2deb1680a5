package model

// Contribution is one scored criterion in a validation breakdown.
type Contribution struct {
	Criterion string `json:"criterion"`
	Points    int    `json:"points"`
}

// Validation strategies.
const (
	StrategyRule         = "rule"
	StrategyJudge        = "judge"
	StrategyRuleFallback = "rule_fallback"
)

// ValidationResult is the acceptance decision for one contact. Breakdown is
// kept in evaluation order and Confidence is always its sum clipped to 0..100.
type ValidationResult struct {
	IsValid    bool           `json:"is_valid"`
	Confidence int            `json:"confidence"`
	Breakdown  []Contribution `json:"score_breakdown"`
	Reasons    []string       `json:"reasons"`
	Strategy   string         `json:"strategy"`
	Fallback   bool           `json:"fallback,omitempty"`
}

// NewValidationResult builds a result whose confidence is derived from the
// breakdown.
func NewValidationResult(strategy string, breakdown []Contribution, reasons []string) ValidationResult {
	v := ValidationResult{
		Breakdown: breakdown,
		Reasons:   reasons,
		Strategy:  strategy,
	}
	v.Confidence = ClampConfidence(v.Sum())
	return v
}

// Sum returns the unclipped total of all contributions.
func (v ValidationResult) Sum() int {
	total := 0
	for _, c := range v.Breakdown {
		total += c.Points
	}
	return total
}

// ClampConfidence bounds n to 0..100.
func ClampConfidence(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	default:
		return n
	}
}
