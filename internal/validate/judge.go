package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/pkg/anthropic"
)

// judgeLedgerName is the ledger entry judge token spend is booked under.
const judgeLedgerName = "judge"

const judgeSystemPrompt = `You verify business contacts. Given a company and one candidate person found by automated data providers, decide whether the candidate is a real decision-maker (owner, founder, executive) currently at that company and whether the contact details belong to them.

Weigh how many independent providers found the person, whether the title fits, and whether the email domain matches the company.

Respond with JSON only:
{"confidence": <integer 0-100>, "is_valid": <true|false>, "rationale": "<one or two sentences>"}`

// JudgeConfig configures the language-model judge.
type JudgeConfig struct {
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// MinConfidence decides acceptance when the judge omits is_valid.
	MinConfidence int `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// DefaultJudgeConfig returns the default judge settings.
func DefaultJudgeConfig() JudgeConfig {
	return JudgeConfig{
		Model:         "claude-haiku-4-5-20251001",
		MaxTokens:     512,
		MinConfidence: 60,
	}
}

// JudgeValidator asks a language model to score a contact. When the call
// fails or the answer cannot be parsed, the rule validator's result is
// returned with Fallback set.
type JudgeValidator struct {
	client   anthropic.Client
	fallback *RuleValidator
	cfg      JudgeConfig
	costs    *cost.Calculator
	ledger   *cost.Ledger
	metrics  *monitoring.Metrics
}

// NewJudgeValidator creates a judge that falls back to rules.
func NewJudgeValidator(client anthropic.Client, rules *RuleValidator, cfg JudgeConfig) *JudgeValidator {
	def := DefaultJudgeConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	return &JudgeValidator{client: client, fallback: rules, cfg: cfg}
}

type verdict struct {
	Confidence *float64 `json:"confidence"`
	IsValid    *bool    `json:"is_valid"`
	Rationale  string   `json:"rationale"`
}

// Validate implements Validator.
func (j *JudgeValidator) Validate(ctx context.Context, company model.CompanyRecord, c model.CandidateContact) model.ValidationResult {
	res, err := j.judge(ctx, company, c)
	if err == nil {
		return res
	}

	fbErr := &ValidatorFallbackError{Company: company.Key(), Err: err}
	zap.L().Warn("validate: judge fallback",
		zap.String("company", company.Key()),
		zap.String("candidate", c.Name),
		zap.Error(fbErr),
	)
	res = j.fallback.Score(company, c)
	res.Strategy = model.StrategyRuleFallback
	res.Fallback = true
	res.Reasons = append(res.Reasons, "judge unavailable, scored by rules: "+err.Error())
	return res
}

func (j *JudgeValidator) judge(ctx context.Context, company model.CompanyRecord, c model.CandidateContact) (model.ValidationResult, error) {
	temp := 0.0
	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       j.cfg.Model,
		MaxTokens:   j.cfg.MaxTokens,
		System:      judgeSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: judgePrompt(company, c)}},
		Temperature: &temp,
	})
	if err != nil {
		return model.ValidationResult{}, eris.Wrap(err, "judge: create message")
	}

	usd := j.costs.Claude(j.cfg.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	resp.Usage.LogCost(j.cfg.Model, "validate", usd)
	j.ledger.Add(judgeLedgerName, usd)
	j.metrics.ProviderCost(judgeLedgerName, usd)

	var v verdict
	if err := json.Unmarshal([]byte(provider.CleanJSON(resp.Text())), &v); err != nil {
		return model.ValidationResult{}, eris.Wrap(err, "judge: parse verdict")
	}
	if v.Confidence == nil {
		return model.ValidationResult{}, eris.New("judge: verdict has no confidence")
	}

	// Clamp before converting so out-of-range floats cannot overflow int.
	conf := int(math.Round(math.Min(100, math.Max(0, *v.Confidence))))
	reasons := []string{}
	if r := strings.TrimSpace(v.Rationale); r != "" {
		reasons = append(reasons, r)
	}
	res := model.NewValidationResult(model.StrategyJudge, []model.Contribution{{Criterion: "judge", Points: conf}}, reasons)
	if v.IsValid != nil {
		res.IsValid = *v.IsValid
	} else {
		res.IsValid = res.Confidence >= j.cfg.MinConfidence
	}
	return res, nil
}

func judgePrompt(company model.CompanyRecord, c model.CandidateContact) string {
	var b strings.Builder
	b.WriteString("Company:\n")
	fmt.Fprintf(&b, "  name: %s\n", company.Name)
	for _, kv := range [][2]string{
		{"domain", company.Domain},
		{"location", company.Location()},
		{"industry", company.Industry},
	} {
		if kv[1] != "" {
			fmt.Fprintf(&b, "  %s: %s\n", kv[0], kv[1])
		}
	}

	b.WriteString("\nCandidate:\n")
	for _, f := range model.AllFields {
		if v := c.Get(f); v != "" {
			fmt.Fprintf(&b, "  %s: %s\n", f, v)
		}
	}

	b.WriteString("\nProvenance (in discovery order):\n")
	for _, s := range c.Sources() {
		if s.Field != "" {
			fmt.Fprintf(&b, "  - %s (%s %s)\n", s.Provider, s.Kind, s.Field)
		} else {
			fmt.Fprintf(&b, "  - %s (%s)\n", s.Provider, s.Kind)
		}
	}
	fmt.Fprintf(&b, "\nDistinct providers: %d\n", len(c.Providers()))
	return b.String()
}
