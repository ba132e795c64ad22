package provider

import (
	"strings"

	"github.com/devagent-ai/devagent/pkg/models"
)

// Environment variables holding vendor credentials.
const (
	EnvGroqKey        = "GROQ_API_KEY"
	EnvOpenRouterKey  = "OPENROUTER_API_KEY"
	EnvHuggingFaceKey = "HUGGINGFACE_API_KEY"
	// EnvSharedKey is a fallback credential claimed by at most one vendor,
	// chosen by key prefix.
	EnvSharedKey = "AI_API_KEY"
)

const (
	groqKeyPrefix        = "gsk_"
	huggingFaceKeyPrefix = "hf_"
)

// Credentials holds the API key resolved for each vendor. Empty means absent.
type Credentials struct {
	Groq        string
	OpenRouter  string
	HuggingFace string
}

// ResolveCredentials reads vendor keys through lookup (typically os.Getenv).
// The shared key goes to Groq when it starts with "gsk_", to HuggingFace when
// it starts with "hf_", and to OpenRouter otherwise, and only to a vendor
// whose own variable is unset.
func ResolveCredentials(lookup func(string) string) Credentials {
	c := Credentials{
		Groq:        strings.TrimSpace(lookup(EnvGroqKey)),
		OpenRouter:  strings.TrimSpace(lookup(EnvOpenRouterKey)),
		HuggingFace: strings.TrimSpace(lookup(EnvHuggingFaceKey)),
	}
	shared := strings.TrimSpace(lookup(EnvSharedKey))
	if shared == "" {
		return c
	}
	switch {
	case strings.HasPrefix(shared, groqKeyPrefix):
		if c.Groq == "" {
			c.Groq = shared
		}
	case strings.HasPrefix(shared, huggingFaceKeyPrefix):
		if c.HuggingFace == "" {
			c.HuggingFace = shared
		}
	default:
		if c.OpenRouter == "" {
			c.OpenRouter = shared
		}
	}
	return c
}

// For returns the key resolved for the given vendor.
func (c Credentials) For(p models.ProviderName) string {
	switch p {
	case models.ProviderGroq:
		return c.Groq
	case models.ProviderOpenRouter:
		return c.OpenRouter
	case models.ProviderHuggingFace:
		return c.HuggingFace
	}
	return ""
}

// EnvVar returns the vendor-specific credential variable for p.
func EnvVar(p models.ProviderName) string {
	switch p {
	case models.ProviderGroq:
		return EnvGroqKey
	case models.ProviderOpenRouter:
		return EnvOpenRouterKey
	case models.ProviderHuggingFace:
		return EnvHuggingFaceKey
	}
	return ""
}
