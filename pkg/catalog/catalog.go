// Package catalog holds the static registry of models the router may use,
// grouped into free, mid and high cost tiers.
package catalog

import (
	"fmt"
	"slices"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Band thresholds for automatic model selection, in estimated prompt tokens.
const (
	SmallPromptTokens  = 1000
	MediumPromptTokens = 3000
)

// builtin is ordered by cost: free entries first, high-tier entries last.
var builtin = []models.Model{
	{
		ID:        "meta-llama/llama-3.1-70b-instruct:free",
		Name:      "Llama 3.1 70B (Free)",
		Provider:  models.ProviderOpenRouter,
		Tier:      models.TierFree,
		MaxTokens: 8192,
		Free:      true,
	},
	{
		ID:        "llama-3.1-8b-instant",
		Name:      "Llama 3.1 8B Instant",
		Provider:  models.ProviderGroq,
		Tier:      models.TierFree,
		MaxTokens: 8192,
		Free:      true,
	},
	{
		ID:        "gemma-7b-it",
		Name:      "Gemma 7B IT",
		Provider:  models.ProviderGroq,
		Tier:      models.TierFree,
		MaxTokens: 8192,
		Free:      true,
	},
	{
		ID:              "llama-3.1-70b-instruct",
		Name:            "Llama 3.1 70B Instruct",
		Provider:        models.ProviderGroq,
		Tier:            models.TierMid,
		MaxTokens:       8192,
		CostPer1kTokens: 0.0001,
	},
	{
		ID:              "mixtral-8x7b-32768",
		Name:            "Mixtral 8x7B",
		Provider:        models.ProviderGroq,
		Tier:            models.TierMid,
		MaxTokens:       32768,
		CostPer1kTokens: 0.0002,
	},
	{
		ID:              "meta-llama/Meta-Llama-3-70B-Instruct",
		Name:            "Meta Llama 3 70B Instruct",
		Provider:        models.ProviderOpenRouter,
		Tier:            models.TierHigh,
		MaxTokens:       8192,
		CostPer1kTokens: 0.0005,
	},
}

// Catalog is an immutable, ordered list of models.
type Catalog struct {
	models []models.Model
}

// New validates the given models and returns a Catalog that owns a copy of them.
func New(entries []models.Model) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no models")
	}
	seen := make(map[string]bool, len(entries))
	for _, m := range entries {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: model with empty id")
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("catalog: duplicate model %q", m.ID)
		}
		seen[m.ID] = true
		if !m.Provider.Valid() {
			return nil, fmt.Errorf("catalog: model %q: unknown provider %q", m.ID, m.Provider)
		}
		if !m.Tier.Valid() {
			return nil, fmt.Errorf("catalog: model %q: unknown tier %q", m.ID, m.Tier)
		}
	}
	return &Catalog{models: slices.Clone(entries)}, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{models: slices.Clone(builtin)}
}

// All returns every model in catalog order.
func (c *Catalog) All() []models.Model {
	return slices.Clone(c.models)
}

// ByTier returns the models of the given tier in catalog order.
func (c *Catalog) ByTier(tier models.Tier) []models.Model {
	var out []models.Model
	for _, m := range c.models {
		if m.Tier == tier {
			out = append(out, m)
		}
	}
	return out
}

// Default returns the first free-tier model, or the first model when no
// free entry exists.
func (c *Catalog) Default() models.Model {
	if free := c.ByTier(models.TierFree); len(free) > 0 {
		return free[0]
	}
	return c.models[0]
}

// FallbackChain returns every model ordered free, mid, high, each tier in
// catalog order.
func (c *Catalog) FallbackChain() []models.Model {
	out := make([]models.Model, 0, len(c.models))
	for _, tier := range models.Tiers {
		out = append(out, c.ByTier(tier)...)
	}
	return out
}

// Find returns the model with the given id.
func (c *Catalog) Find(id string) (models.Model, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return models.Model{}, false
}

// TierOrder returns the tiers to prefer for a prompt of the given size.
// Small and medium prompts start on the free tier, larger ones on mid.
func TierOrder(promptTokens int) []models.Tier {
	switch {
	case promptTokens < SmallPromptTokens:
		return []models.Tier{models.TierFree}
	case promptTokens < MediumPromptTokens:
		return []models.Tier{models.TierFree, models.TierMid}
	default:
		return []models.Tier{models.TierMid, models.TierFree}
	}
}

// Select picks a model for a request that did not pin one.
// A non-empty forceTier overrides the size heuristic.
func (c *Catalog) Select(promptTokens int, forceTier models.Tier) models.Model {
	return c.SelectFor(promptTokens, forceTier, "")
}

// SelectFor is Select restricted to models of the given provider. An empty
// provider, or one that owns no model in the preferred tiers, falls back to
// the unrestricted choice.
func (c *Catalog) SelectFor(promptTokens int, forceTier models.Tier, provider models.ProviderName) models.Model {
	order := TierOrder(promptTokens)
	if forceTier != "" {
		order = []models.Tier{forceTier}
	}
	if provider != "" {
		for _, tier := range order {
			for _, m := range c.ByTier(tier) {
				if m.Provider == provider {
					return m
				}
			}
		}
	}
	for _, tier := range order {
		if ms := c.ByTier(tier); len(ms) > 0 {
			return ms[0]
		}
	}
	return c.Default()
}
