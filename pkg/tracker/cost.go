package tracker

import (
	"sort"

	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/models"
)

// CostReport folds usage summaries into one row per model, priced with the
// catalog's per-1k rates. Models missing from the catalog are reported at
// zero cost with an empty tier.
func CostReport(summaries []models.UsageSummary, c *catalog.Catalog) []models.CostReport {
	byModel := make(map[string]*models.CostReport)
	for _, s := range summaries {
		r, ok := byModel[s.Model]
		if !ok {
			r = &models.CostReport{Model: s.Model, Provider: s.Provider}
			if m, found := c.Find(s.Model); found {
				r.Tier = m.Tier
				r.CostPer1kTokens = m.CostPer1kTokens
			}
			byModel[s.Model] = r
		}
		r.RequestCount += s.RequestCount
		r.TotalTokens += int64(s.TotalTokens)
	}

	out := make([]models.CostReport, 0, len(byModel))
	for _, r := range byModel {
		r.EstimatedCost = float64(r.TotalTokens) / 1000 * r.CostPer1kTokens
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EstimatedCost != out[j].EstimatedCost {
			return out[i].EstimatedCost > out[j].EstimatedCost
		}
		return out[i].Model < out[j].Model
	})
	return out
}
