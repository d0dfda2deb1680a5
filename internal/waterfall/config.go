package waterfall

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-cli/internal/model"
)

// Config is the waterfall configuration.
type Config struct {
	// Targets are the fields every candidate should end up with.
	Targets []model.Field `yaml:"targets" mapstructure:"targets"`
	// MaxCostPerCandidateUSD caps enrichment spend per candidate. A provider
	// whose price would cross it is skipped. Zero allows only free providers.
	MaxCostPerCandidateUSD float64 `yaml:"max_cost_per_candidate_usd" mapstructure:"max_cost_per_candidate_usd"`
	// ParallelCandidates bounds how many candidates EnrichAll works on at once.
	ParallelCandidates int `yaml:"parallel_candidates" mapstructure:"parallel_candidates"`
	// Fields optionally restricts which providers may fill a field.
	Fields map[model.Field]FieldConfig `yaml:"fields" mapstructure:"fields"`
}

// FieldConfig configures the chain for a specific field.
type FieldConfig struct {
	// Sources is an allowlist of provider names. Empty allows every
	// enricher that supplies the field. Order is always by cost.
	Sources []string `yaml:"sources" mapstructure:"sources"`
}

// DefaultConfig returns the default waterfall settings.
func DefaultConfig() Config {
	return Config{
		Targets:                []model.Field{model.FieldEmail, model.FieldPhone},
		MaxCostPerCandidateUSD: 0.25,
		ParallelCandidates:     4,
	}
}

// LoadConfig reads waterfall config from a YAML file with a top-level
// "waterfall" key. Missing keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	wrapper := struct {
		Waterfall Config `yaml:"waterfall"`
	}{Waterfall: DefaultConfig()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrap(err, "waterfall: parse config")
	}
	cfg := wrapper.Waterfall
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string
	if c.MaxCostPerCandidateUSD < 0 {
		problems = append(problems, "max_cost_per_candidate_usd must be >= 0")
	}
	if c.ParallelCandidates < 0 {
		problems = append(problems, "parallel_candidates must be >= 0")
	}
	for _, f := range c.Targets {
		if _, ok := model.ParseField(string(f)); !ok {
			problems = append(problems, "unknown target field "+string(f))
		}
	}
	for f := range c.Fields {
		if _, ok := model.ParseField(string(f)); !ok {
			problems = append(problems, "unknown field "+string(f))
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("waterfall: invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// allows reports whether provider may fill field f.
func (c Config) allows(f model.Field, provider string) bool {
	fc, ok := c.Fields[f]
	if !ok || len(fc.Sources) == 0 {
		return true
	}
	for _, s := range fc.Sources {
		if s == provider {
			return true
		}
	}
	return false
}
