package models

// ProviderName identifies one of the supported LLM vendors.
type ProviderName string

const (
	ProviderGroq        ProviderName = "groq"
	ProviderOpenRouter  ProviderName = "openrouter"
	ProviderHuggingFace ProviderName = "huggingface"
)

// Providers lists every supported vendor in a stable order.
var Providers = []ProviderName{ProviderGroq, ProviderOpenRouter, ProviderHuggingFace}

// Valid reports whether p is one of the supported vendors.
func (p ProviderName) Valid() bool {
	switch p {
	case ProviderGroq, ProviderOpenRouter, ProviderHuggingFace:
		return true
	}
	return false
}

// Tier is the cost/capability class of a model.
type Tier string

const (
	TierFree Tier = "free"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// Tiers lists every tier from cheapest to most expensive.
var Tiers = []Tier{TierFree, TierMid, TierHigh}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierMid, TierHigh:
		return true
	}
	return false
}

// Model is an immutable catalog entry.
type Model struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Provider        ProviderName `json:"provider" yaml:"provider"`
	Tier            Tier         `json:"tier" yaml:"tier"`
	MaxTokens       int          `json:"max_tokens" yaml:"max_tokens"`
	CostPer1kTokens float64      `json:"cost_per_1k_tokens,omitempty" yaml:"cost_per_1k_tokens,omitempty"`
	Free            bool         `json:"free,omitempty" yaml:"free,omitempty"`
}
