package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
)

// chdirTemp moves into an empty temp dir so no stray config.yaml is read.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "contact.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "store", cfg.Cache.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.TTLs.Medium)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, 25, cfg.Batch.CheckpointInterval)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Cooldown.DefaultWindow)
	assert.InDelta(t, 0.25, cfg.Waterfall.MaxCostPerCandidateUSD, 0.001)
	assert.Equal(t, []model.Field{model.FieldEmail, model.FieldPhone}, cfg.Waterfall.Targets)
	assert.Equal(t, "smb", cfg.Validator.Segment)
	assert.Equal(t, 60, cfg.Validator.Rules.Threshold)
	assert.Equal(t, 25, cfg.Validator.Rules.SourcePoints["apollo"])
	assert.NotEmpty(t, cfg.Validator.Rules.StrongOwnerTitles)
	assert.Equal(t, "sonar-pro", cfg.Providers[provider.NameProfile].Model)
	assert.Contains(t, cfg.Pricing.Anthropic, "claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.8, cfg.Eval.IdentityThreshold, 0.001)

	assert.NoError(t, cfg.Validate("resolve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/contacts
log:
  level: debug
  format: console
batch:
  concurrency: 3
waterfall:
  targets: [email]
  max_cost_per_candidate_usd: 0.1
validator:
  rules:
    threshold: 70
    strong_owner_titles: [owner, founder]
providers:
  hunter:
    key: hk-123
    unit_cost_usd: 0.05
  apollo:
    disabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, []model.Field{model.FieldEmail}, cfg.Waterfall.Targets)
	assert.InDelta(t, 0.1, cfg.Waterfall.MaxCostPerCandidateUSD, 0.001)
	assert.Equal(t, 70, cfg.Validator.Rules.Threshold)
	assert.Equal(t, []string{"owner", "founder"}, cfg.Validator.Rules.StrongOwnerTitles)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Validator.Rules.PhoneBonus)
	assert.Equal(t, 25, cfg.Batch.CheckpointInterval)
	assert.Equal(t, "hk-123", cfg.Providers[provider.NameHunter].Key)

	catalog := cfg.Catalog()
	assert.InDelta(t, 0.05, catalog[provider.NameHunter].UnitCostUSD, 0.0001)
	assert.Equal(t, 15, catalog[provider.NameHunter].Priority)
	assert.NotContains(t, catalog, provider.NameApollo)
	assert.Contains(t, catalog, provider.NameSearch)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CONTACT_STORE_DRIVER", "postgres")
	t.Setenv("CONTACT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CONTACT_SERVER_PORT", "3000")
	t.Setenv("CONTACT_PROVIDERS_HUNTER_KEY", "env-key")
	t.Setenv("CONTACT_COOLDOWN_DEFAULT_WINDOW", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Providers[provider.NameHunter].Key)
	assert.Equal(t, 45*time.Second, cfg.Cooldown.DefaultWindow)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults(t)
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Log.Format = "xml"
	cfg.Store.Driver = "mysql"
	cfg.Cache.Backend = "redis"
	cfg.Batch.Concurrency = 0
	cfg.Waterfall.MaxCostPerCandidateUSD = -1
	cfg.Validator.Rules.Threshold = 0
	cfg.Providers["nosuch"] = ProviderConfig{}

	err := cfg.Validate("resolve")
	require.Error(t, err)
	for _, want := range []string{
		"log.format must be json or console",
		"store.driver must be sqlite, postgres or none",
		"redis.addr is required",
		"batch.concurrency must be >= 1",
		"max_cost_per_candidate_usd must be >= 0",
		"threshold must be between 1 and 100",
		"providers.nosuch is not a known provider",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateStoreRequirements(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for postgres")

	cfg = validDefaults(t)
	cfg.Store.Driver = "none"
	err = cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.backend store needs a store driver")

	cfg.Cache.Backend = "memory"
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateEnterpriseNeedsKey(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Validator.Segment = "enterprise"

	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant"
	assert.NoError(t, cfg.Validate("resolve"))

	cfg.Validator.Segment = "midmarket"
	err = cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validator.segment must be smb or enterprise")
}
