package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-cli/internal/config"
)

const fixturesYAML = `
providers:
  - name: places
    unit_cost_usd: 0.032
    hit_rate: 0.5
    priority: 30
    fields: [name, title, phone]
    discover:
      joesplumbing.com:
        - name: Joe Smith
          title: Owner
          phone: "+1 512 555 0100"
  - name: hunter
    unit_cost_usd: 0.034
    hit_rate: 0.4
    priority: 15
    fields: [email]
    enrich:
      "joesplumbing.com|joe smith":
        email: joe@joesplumbing.com
`

const companiesCSV = "Company,Website,City,State\n" +
	"Joe's Plumbing,joesplumbing.com,Austin,TX\n" +
	"Nobody LLC,nobody.example,Dallas,TX\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testConfig loads defaults from an empty directory and points the store
// and providers at temp files.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(dir, "contact.db")
	c.Fixtures = writeFile(t, dir, "fixtures.yaml", fixturesYAML)
	c.Retry.MaxAttempts = 1
	return c, dir
}
