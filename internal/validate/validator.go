// Package validate scores candidate contacts and decides acceptance, either
// with deterministic rules (small-business segment) or with a language-model
// judge (enterprise segment) that falls back to the rules on failure.
package validate

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/pkg/anthropic"
)

// Target segments.
const (
	SegmentSMB        = "smb"
	SegmentEnterprise = "enterprise"
)

// Validator decides whether a candidate is the right contact. It always
// returns a result; failures degrade to a lower-fidelity strategy.
type Validator interface {
	Validate(ctx context.Context, company model.CompanyRecord, c model.CandidateContact) model.ValidationResult
}

// Config selects and tunes the validation strategy.
type Config struct {
	Segment string      `yaml:"segment" mapstructure:"segment"`
	Rules   RuleConfig  `yaml:"rules" mapstructure:"rules"`
	Judge   JudgeConfig `yaml:"judge" mapstructure:"judge"`
}

// DefaultConfig returns the SMB defaults.
func DefaultConfig() Config {
	return Config{
		Segment: SegmentSMB,
		Rules:   DefaultRuleConfig(),
		Judge:   DefaultJudgeConfig(),
	}
}

// ValidatorFallbackError reports that the judge could not produce a result
// and rule scoring was used instead. It is logged, never returned to callers
// of Validate.
type ValidatorFallbackError struct {
	Company string
	Err     error
}

func (e *ValidatorFallbackError) Error() string {
	return fmt.Sprintf("validate: judge failed for %s, fell back to rules: %v", e.Company, e.Err)
}

func (e *ValidatorFallbackError) Unwrap() error { return e.Err }

// Option configures a validator built by New.
type Option func(*options)

type options struct {
	client  anthropic.Client
	costs   *cost.Calculator
	ledger  *cost.Ledger
	metrics *monitoring.Metrics
}

// WithClient supplies the Anthropic client the judge calls.
func WithClient(c anthropic.Client) Option {
	return func(o *options) { o.client = c }
}

// WithCosts prices judge token usage and records it in ledger.
func WithCosts(calc *cost.Calculator, ledger *cost.Ledger) Option {
	return func(o *options) {
		o.costs = calc
		o.ledger = ledger
	}
}

// WithMetrics records validation outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New returns the validator for cfg.Segment.
func New(cfg Config, opts ...Option) (Validator, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if err := ValidateRuleConfig(cfg.Rules); err != nil {
		return nil, err
	}
	rules := NewRuleValidator(cfg.Rules)

	switch cfg.Segment {
	case SegmentSMB, "":
		return &observed{inner: rules, metrics: o.metrics}, nil
	case SegmentEnterprise:
		if o.client == nil {
			return nil, eris.New("validate: enterprise segment requires an anthropic client")
		}
		j := NewJudgeValidator(o.client, rules, cfg.Judge)
		j.costs, j.ledger, j.metrics = o.costs, o.ledger, o.metrics
		return &observed{inner: j, metrics: o.metrics}, nil
	default:
		return nil, eris.Errorf("validate: unknown segment %q", cfg.Segment)
	}
}

// observed records every result in metrics.
type observed struct {
	inner   Validator
	metrics *monitoring.Metrics
}

func (v *observed) Validate(ctx context.Context, company model.CompanyRecord, c model.CandidateContact) model.ValidationResult {
	res := v.inner.Validate(ctx, company, c)
	v.metrics.Validation(res.Strategy, res.IsValid, res.Fallback)
	return res
}
