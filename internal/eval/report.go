package eval

import (
	"fmt"
	"sort"
	"strings"
)

// FormatReport renders the report as text.
func FormatReport(r *Report) string {
	var b strings.Builder

	b.WriteString("=== Contact Evaluation Report ===\n")
	fmt.Fprintf(&b, "Dataset:   %s\n", r.Dataset)
	fmt.Fprintf(&b, "Companies: %d scored, %d excluded (weakest tier only)\n\n", r.Companies, r.Excluded)

	b.WriteString("--- Metrics ---\n")
	for _, m := range r.Metrics {
		fmt.Fprintf(&b, "%-3s %-22s %7.2f %-14s %s %s\n",
			m.ID, m.Name, m.Value, "("+m.Detail+")", boolMark(m.Pass), formatThreshold(m))
	}
	passed, total := r.PassCount()
	result := "PASS"
	if passed < total {
		result = "FAIL"
	}
	fmt.Fprintf(&b, "RESULT: %s (%d/%d metrics within threshold)\n\n", result, passed, total)

	if len(r.Calibration.Buckets) > 0 {
		b.WriteString("--- Calibration ---\n")
		for _, bk := range r.Calibration.Buckets {
			fmt.Fprintf(&b, "%3d-%-3d n=%-4d conf=%5.1f acc=%5.1f gap=%5.1f %s\n",
				bk.Lower, bk.Upper, bk.Count, bk.MeanConfidence, bk.Accuracy, bk.Gap,
				boolMark(bk.Gap <= r.Calibration.Tolerance))
		}
		b.WriteString("\n")
	}

	if len(r.Providers) > 0 {
		b.WriteString("--- Providers (by cost per correct contact) ---\n")
		for _, p := range r.Providers {
			cpc := "n/a"
			if p.Matched > 0 {
				cpc = fmt.Sprintf("$%.4f", p.CostPerCorrect)
			}
			fmt.Fprintf(&b, "%-10s coverage=%5.1f%% match=%5.1f%% cost=$%.4f per_correct=%s\n",
				p.Provider, 100*p.Coverage, 100*p.MatchRate, p.CostUSD, cpc)
		}
		b.WriteString("\n")
	}

	b.WriteString("--- Failure attribution ---\n")
	keys := make([]string, 0, len(r.Attribution))
	for k := range r.Attribution {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%-20s %d\n", k, r.Attribution[k])
	}
	b.WriteString("\n")

	b.WriteString("--- Per-company ---\n")
	for _, o := range r.Outcomes {
		top := o.TopName
		if top == "" {
			top = "(none)"
		}
		fmt.Fprintf(&b, "%-30s %-20s truth=%-20s top=%s (%d)\n",
			truncate(o.Company, 30), o.Attribution, truncate(o.TruthName, 20), top, o.TopConfidence)
	}
	return b.String()
}

func formatThreshold(m Metric) string {
	if m.AtMost {
		return fmt.Sprintf("(≤%.2f)", m.Threshold)
	}
	return fmt.Sprintf("(≥%.2f)", m.Threshold)
}

func boolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
