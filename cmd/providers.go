package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/contact-cli/internal/model"
)

// providerInfo describes one registered adapter.
type providerInfo struct {
	Name            string        `json:"name"`
	Discover        bool          `json:"discover"`
	Enrich          bool          `json:"enrich"`
	Fields          []model.Field `json:"fields"`
	UnitCostUSD     float64       `json:"unit_cost_usd"`
	HitRate         float64       `json:"hit_rate"`
	CostPerHitUSD   float64       `json:"cost_per_hit_usd"`
	Priority        int           `json:"priority"`
	CoolingDownSecs float64       `json:"cooling_down_secs,omitempty"`
}

// providerInfos lists the registry's adapters by name.
func providerInfos(e *env) []providerInfo {
	var active map[string]time.Duration
	if e.Cooldowns != nil {
		active = e.Cooldowns.Active()
	}
	metas := e.Registry.List()
	out := make([]providerInfo, 0, len(metas))
	for _, m := range metas {
		discover, enrich := e.Registry.Capabilities(m.Name)
		out = append(out, providerInfo{
			Name:            m.Name,
			Discover:        discover,
			Enrich:          enrich,
			Fields:          m.Fields,
			UnitCostUSD:     m.UnitCostUSD,
			HitRate:         m.HitRate,
			CostPerHitUSD:   m.ExpectedCostPerHit(),
			Priority:        m.Priority,
			CoolingDownSecs: active[m.Name].Seconds(),
		})
	}
	return out
}

var providersFixtures string

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers, their fields, and unit costs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("fixtures") {
			cfg.Fixtures = providersFixtures
		}
		// Listing never needs the database.
		cfg.Store.Driver = "none"
		cfg.Cache.Backend = "memory"

		e, err := initEnv(cmd.Context(), cfg, envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		formatProviders(os.Stdout, providerInfos(e))
		return nil
	},
}

// formatProviders writes a provider table to out.
func formatProviders(out io.Writer, infos []providerInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tROLE\tFIELDS\tUNIT_COST\tHIT_RATE\tCOST/HIT\tPRIORITY")
	for _, p := range infos {
		var roles []string
		if p.Discover {
			roles = append(roles, "discover")
		}
		if p.Enrich {
			roles = append(roles, "enrich")
		}
		fields := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			fields[i] = string(f)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t$%.4f\t%.0f%%\t$%.4f\t%d\n",
			p.Name,
			strings.Join(roles, ","),
			strings.Join(fields, ","),
			p.UnitCostUSD,
			p.HitRate*100,
			p.CostPerHitUSD,
			p.Priority,
		)
	}
	_ = w.Flush()
}

func init() {
	providersCmd.Flags().StringVar(&providersFixtures, "fixtures", "", "list providers from a static fixtures file")
	rootCmd.AddCommand(providersCmd)
}
