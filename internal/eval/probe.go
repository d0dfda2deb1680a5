package eval

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/discovery"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/provider"
)

// ProviderProbe runs every discoverer alone over companies so providers can
// be compared in isolation. Calls share the orchestrator's cache, so a probe
// after a pipeline run costs nothing extra.
func ProviderProbe(ctx context.Context, orch *discovery.Orchestrator, discoverers []provider.Discoverer, companies []model.CompanyRecord) ([]ProviderRun, error) {
	runs := make([]ProviderRun, 0, len(discoverers))
	for _, d := range discoverers {
		name := d.Metadata().Name
		run := ProviderRun{Provider: name, UnitCostUSD: d.Metadata().UnitCostUSD}
		for _, c := range companies {
			if err := ctx.Err(); err != nil {
				return runs, err
			}
			run.Discoveries = append(run.Discoveries, orch.DiscoverWith(ctx, c, []provider.Discoverer{d}))
		}
		zap.L().Info("eval: provider probed",
			zap.String("provider", name),
			zap.Int("companies", len(companies)),
		)
		runs = append(runs, run)
	}
	return runs, nil
}
