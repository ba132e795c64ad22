package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps the tokens a client address may consume per period.
// Client "*" matches every address; an empty Provider matches every vendor.
type BudgetPolicy struct {
	Client    string       `json:"client" yaml:"client" validate:"required"`
	Provider  ProviderName `json:"provider,omitempty" yaml:"provider,omitempty" validate:"omitempty,oneof=groq openrouter huggingface"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens" validate:"gt=0"`
	Period    BudgetPeriod `json:"period" yaml:"period" validate:"oneof=daily monthly"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
