package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
)

// MetricsSnapshot holds a point-in-time view of batch run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Contact yield across finished runs.
	Companies           int     `json:"companies"`
	CompaniesWithResult int     `json:"companies_with_result"`
	ValidContacts       int     `json:"valid_contacts"`
	CostUSD             float64 `json:"cost_usd"`
	CostPerValidContact float64 `json:"cost_per_valid_contact"`

	// Providers currently inside a back-off window.
	CoolingDown []string `json:"cooling_down,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the store methods needed by the collector.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// CooldownSource reports providers that are currently backing off.
type CooldownSource interface {
	Active() map[string]time.Duration
}

// Collector gathers metrics from the run store and provider cooldowns.
type Collector struct {
	runs      RunLister
	cooldowns CooldownSource
}

// NewCollector creates a new metrics collector. cooldowns may be nil.
func NewCollector(runs RunLister, cooldowns CooldownSource) *Collector {
	return &Collector{runs: runs, cooldowns: cooldowns}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, 10000)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Summary != nil {
			snap.Companies += r.Summary.Companies
			snap.CompaniesWithResult += r.Summary.WithContacts
			snap.ValidContacts += r.Summary.ValidContacts
			snap.CostUSD += r.Summary.TotalCostUSD
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.ValidContacts > 0 {
		snap.CostPerValidContact = snap.CostUSD / float64(snap.ValidContacts)
	}

	if c.cooldowns != nil {
		for provider := range c.cooldowns.Active() {
			snap.CoolingDown = append(snap.CoolingDown, provider)
		}
		sort.Strings(snap.CoolingDown)
	}

	return snap, nil
}
