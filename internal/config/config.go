package config

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contact-cli/internal/cache"
	"github.com/sells-group/contact-cli/internal/cost"
	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/eval"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/pipeline"
	"github.com/sells-group/contact-cli/internal/provider"
	"github.com/sells-group/contact-cli/internal/resilience"
	"github.com/sells-group/contact-cli/internal/store"
	"github.com/sells-group/contact-cli/internal/validate"
	"github.com/sells-group/contact-cli/internal/waterfall"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig                 `yaml:"log" mapstructure:"log"`
	Store     StoreConfig               `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig               `yaml:"cache" mapstructure:"cache"`
	Redis     cache.RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Batch     pipeline.Config           `yaml:"batch" mapstructure:"batch"`
	Discovery discovery.Config          `yaml:"discovery" mapstructure:"discovery"`
	Retry     resilience.RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Cooldown  resilience.CooldownConfig `yaml:"cooldown" mapstructure:"cooldown"`
	Fetch     FetchConfig               `yaml:"fetch" mapstructure:"fetch"`
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// Fixtures points at a static provider file used instead of live APIs.
	Fixtures  string                 `yaml:"fixtures" mapstructure:"fixtures"`
	Waterfall waterfall.Config       `yaml:"waterfall" mapstructure:"waterfall"`
	Validator validate.Config        `yaml:"validator" mapstructure:"validator"`
	Anthropic AnthropicConfig        `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing   cost.Rates             `yaml:"pricing" mapstructure:"pricing"`
	Eval      eval.Config            `yaml:"eval" mapstructure:"eval"`
	Alerts    monitoring.AlertConfig `yaml:"alerts" mapstructure:"alerts"`
	Server    ServerConfig           `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is sqlite, postgres, or none.
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// CacheConfig selects where provider responses are cached.
type CacheConfig struct {
	// Backend is store, redis, or memory.
	Backend string     `yaml:"backend" mapstructure:"backend"`
	TTLs    cache.TTLs `yaml:"ttls" mapstructure:"ttls"`
}

// FetchConfig configures the shared HTTP and FTP fetchers.
type FetchConfig struct {
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBytes   int64         `yaml:"max_bytes" mapstructure:"max_bytes"`
	HostRate   float64       `yaml:"host_rate" mapstructure:"host_rate"`
	HostBurst  int           `yaml:"host_burst" mapstructure:"host_burst"`
	FTPTimeout time.Duration `yaml:"ftp_timeout" mapstructure:"ftp_timeout"`
}

// ProviderConfig holds credentials and catalog overrides for one adapter.
// Non-zero metadata fields replace the built-in catalog values.
type ProviderConfig struct {
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	// Model is the research model for the profile adapter.
	Model    string            `yaml:"model" mapstructure:"model"`
	Metadata provider.Metadata `yaml:",inline" mapstructure:",squash"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	// ExtractModel parses profile research into contacts.
	ExtractModel string `yaml:"extract_model" mapstructure:"extract_model"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// MaxCompanies caps one synchronous resolve request.
	MaxCompanies int `yaml:"max_companies" mapstructure:"max_companies"`
}

// Catalog returns the built-in provider metadata with configured overrides
// applied, keyed by provider name. Disabled providers are left out.
func (c *Config) Catalog() map[string]provider.Metadata {
	out := provider.DefaultCatalog()
	for name, pc := range c.Providers {
		base, ok := out[name]
		if !ok {
			continue
		}
		if pc.Disabled {
			delete(out, name)
			continue
		}
		out[name] = base.Merge(pc.Metadata)
	}
	return out
}

// Validate reports every invalid setting for the given command mode
// (resolve, evaluate, or serve) at once.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "resolve", "evaluate":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level "+c.Log.Level+" is not a level")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		problems = append(problems, "log.format must be json or console")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		problems = append(problems, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for postgres")
	}
	switch c.Cache.Backend {
	case "store", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			problems = append(problems, "redis.addr is required for the redis cache")
		}
	default:
		problems = append(problems, "cache.backend must be store, redis or memory")
	}
	if c.Cache.Backend == "store" && c.Store.Driver == "none" {
		problems = append(problems, "cache.backend store needs a store driver")
	}
	catalog := provider.DefaultCatalog()
	for name := range c.Providers {
		if _, ok := catalog[name]; !ok {
			problems = append(problems, "providers."+name+" is not a known provider")
		}
	}
	switch c.Validator.Segment {
	case validate.SegmentSMB, validate.SegmentEnterprise:
	default:
		problems = append(problems, "validator.segment must be smb or enterprise")
	}
	if c.Validator.Segment == validate.SegmentEnterprise && c.Anthropic.Key == "" && c.Fixtures == "" {
		problems = append(problems, "anthropic.key is required for the enterprise segment")
	}
	if err := validate.ValidateRuleConfig(c.Validator.Rules); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Waterfall.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Batch.Concurrency < 1 {
		problems = append(problems, "batch.concurrency must be >= 1")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return eris.Errorf("config: invalid: %s", strings.Join(problems, "; "))
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	fillCollections(&cfg)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contact.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("cache.backend", "store")
	ttls := cache.DefaultTTLs()
	v.SetDefault("cache.ttls.short", ttls.Short)
	v.SetDefault("cache.ttls.medium", ttls.Medium)
	v.SetDefault("cache.ttls.long", ttls.Long)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "contact:cache:")
	v.SetDefault("redis.retention", 7*24*time.Hour)

	batch := pipeline.DefaultConfig()
	v.SetDefault("batch.concurrency", batch.Concurrency)
	v.SetDefault("batch.checkpoint_interval", batch.CheckpointInterval)
	disc := discovery.DefaultConfig()
	v.SetDefault("discovery.concurrency", disc.Concurrency)
	v.SetDefault("discovery.name_threshold", disc.NameThreshold)
	v.SetDefault("discovery.max_candidates", disc.MaxCandidates)

	retry := resilience.DefaultRetryConfig()
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", retry.MaxBackoff)
	v.SetDefault("retry.multiplier", retry.Multiplier)
	v.SetDefault("retry.jitter_fraction", retry.JitterFraction)
	cd := resilience.DefaultCooldownConfig()
	v.SetDefault("cooldown.default_window", cd.DefaultWindow)
	v.SetDefault("cooldown.max_window", cd.MaxWindow)
	v.SetDefault("cooldown.failure_threshold", cd.FailureThreshold)

	v.SetDefault("fetch.user_agent", "contact-cli/1.0")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", 2<<20)
	v.SetDefault("fetch.host_rate", 2.0)
	v.SetDefault("fetch.host_burst", 4)
	v.SetDefault("fetch.ftp_timeout", time.Minute)

	// Registered so CONTACT_PROVIDERS_<NAME>_KEY is picked up from env.
	for name := range provider.DefaultCatalog() {
		v.SetDefault("providers."+name+".key", "")
		v.SetDefault("providers."+name+".base_url", "")
	}
	v.SetDefault("providers."+provider.NameProfile+".model", "sonar-pro")
	v.SetDefault("fixtures", "")

	wf := waterfall.DefaultConfig()
	v.SetDefault("waterfall.max_cost_per_candidate_usd", wf.MaxCostPerCandidateUSD)
	v.SetDefault("waterfall.parallel_candidates", wf.ParallelCandidates)

	val := validate.DefaultConfig()
	v.SetDefault("validator.segment", val.Segment)
	v.SetDefault("validator.rules.default_source_points", val.Rules.DefaultSourcePoints)
	v.SetDefault("validator.rules.title_points.strong_owner", val.Rules.TitlePoints.StrongOwner)
	v.SetDefault("validator.rules.title_points.owner_adjacent", val.Rules.TitlePoints.OwnerAdjacent)
	v.SetDefault("validator.rules.title_points.other", val.Rules.TitlePoints.Other)
	v.SetDefault("validator.rules.phone_bonus", val.Rules.PhoneBonus)
	v.SetDefault("validator.rules.domain_email_bonus", val.Rules.DomainEmailBonus)
	v.SetDefault("validator.rules.full_name_bonus", val.Rules.FullNameBonus)
	v.SetDefault("validator.rules.profile_url_bonus", val.Rules.ProfileURLBonus)
	v.SetDefault("validator.rules.threshold", val.Rules.Threshold)
	v.SetDefault("validator.judge.model", val.Judge.Model)
	v.SetDefault("validator.judge.max_tokens", val.Judge.MaxTokens)
	v.SetDefault("validator.judge.min_confidence", val.Judge.MinConfidence)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("anthropic.extract_model", val.Judge.Model)

	ev := eval.DefaultConfig()
	v.SetDefault("eval.name_threshold", ev.NameThreshold)
	v.SetDefault("eval.identity_threshold", ev.IdentityThreshold)
	v.SetDefault("eval.email_threshold", ev.EmailThreshold)
	v.SetDefault("eval.precision_threshold", ev.PrecisionThreshold)
	v.SetDefault("eval.bucket_width", ev.BucketWidth)
	v.SetDefault("eval.calibration_tolerance", ev.CalibrationTolerance)

	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.check_interval_secs", 300)
	v.SetDefault("alerts.lookback_window_hours", 24)
	v.SetDefault("alerts.failure_rate_threshold", 0.2)
	v.SetDefault("alerts.cost_threshold_usd", 100.0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_companies", 25)
}

// fillCollections applies package defaults to slices and maps the file left
// empty. Scalars are covered by viper defaults.
func fillCollections(cfg *Config) {
	rules := validate.DefaultRuleConfig()
	if len(cfg.Validator.Rules.SourcePoints) == 0 {
		cfg.Validator.Rules.SourcePoints = rules.SourcePoints
	}
	if len(cfg.Validator.Rules.StrongOwnerTitles) == 0 {
		cfg.Validator.Rules.StrongOwnerTitles = rules.StrongOwnerTitles
	}
	if len(cfg.Validator.Rules.OwnerAdjacentTitles) == 0 {
		cfg.Validator.Rules.OwnerAdjacentTitles = rules.OwnerAdjacentTitles
	}
	if len(cfg.Validator.Rules.TitleQualifiers) == 0 {
		cfg.Validator.Rules.TitleQualifiers = rules.TitleQualifiers
	}
	if len(cfg.Waterfall.Targets) == 0 {
		cfg.Waterfall.Targets = waterfall.DefaultConfig().Targets
	}
	rates := cost.DefaultRates()
	if cfg.Pricing.Anthropic == nil {
		cfg.Pricing.Anthropic = make(map[string]cost.ModelRate)
	}
	for model, r := range rates.Anthropic {
		if _, ok := cfg.Pricing.Anthropic[model]; !ok {
			cfg.Pricing.Anthropic[model] = r
		}
	}
	if cfg.Pricing.Providers == nil {
		cfg.Pricing.Providers = map[string]float64{}
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
