// Package cost prices provider calls and language-model usage and keeps a
// running ledger of spend per provider.
package cost

// Rates holds pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	// Providers overrides the per-call price an adapter declares.
	Providers map[string]float64 `yaml:"providers" mapstructure:"providers"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost of one Claude message. Unknown models cost zero.
func (c *Calculator) Claude(model string, input, output int) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// ProviderCall returns the configured per-call price for provider, or
// fallback when none is configured.
func (c *Calculator) ProviderCall(provider string, fallback float64) float64 {
	if c == nil {
		return fallback
	}
	if v, ok := c.rates.Providers[provider]; ok && v >= 0 {
		return v
	}
	return fallback
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Providers: map[string]float64{},
	}
}
