package cost

import (
	"sort"
	"sync"
)

// ProviderSpend is the accumulated usage of one provider.
type ProviderSpend struct {
	Provider string  `json:"provider"`
	Calls    int     `json:"calls"`
	CostUSD  float64 `json:"cost_usd"`
}

// Ledger accumulates spend per provider. It is safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	spend map[string]*ProviderSpend
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{spend: make(map[string]*ProviderSpend)}
}

// Add records one billable call.
func (l *Ledger) Add(provider string, usd float64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.spend[provider]
	if !ok {
		s = &ProviderSpend{Provider: provider}
		l.spend[provider] = s
	}
	s.Calls++
	s.CostUSD += usd
}

// Total returns the spend across all providers.
func (l *Ledger) Total() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, s := range l.spend {
		total += s.CostUSD
	}
	return total
}

// Snapshot returns per-provider spend sorted by provider name.
func (l *Ledger) Snapshot() []ProviderSpend {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ProviderSpend, 0, len(l.spend))
	for _, s := range l.spend {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
