package provider

import (
	"net/http"

	"github.com/devagent-ai/devagent/pkg/models"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "llama-3.1-8b-instant"
	groqCeiling      = 8192
)

// NewGroq returns the Groq adapter. An empty apiKey yields an adapter that
// reports itself unavailable.
func NewGroq(apiKey, baseURL string, hc *http.Client) *OpenAICompatible {
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	return newOpenAICompatible(models.ProviderGroq, apiKey, baseURL, groqDefaultModel, groqCeiling, hc, nil)
}
