package provider

import (
	"net/http"

	"github.com/devagent-ai/devagent/pkg/models"
)

const (
	// OpenRouterBaseURL is OpenRouter's OpenAI-compatible endpoint.
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "meta-llama/llama-3.1-70b-instruct:free"
	openRouterCeiling      = 8192

	// DefaultAppURL identifies the app to OpenRouter when none is configured.
	DefaultAppURL = "http://localhost:3000"
	appTitle      = "AI Dev Agent"
)

// OpenRouterHeaders returns the attribution headers OpenRouter expects.
func OpenRouterHeaders(appURL string) map[string]string {
	if appURL == "" {
		appURL = DefaultAppURL
	}
	return map[string]string{
		"HTTP-Referer": appURL,
		"X-Title":      appTitle,
	}
}

// NewOpenRouter returns the OpenRouter adapter.
func NewOpenRouter(apiKey, baseURL, appURL string, hc *http.Client) *OpenAICompatible {
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}
	return newOpenAICompatible(models.ProviderOpenRouter, apiKey, baseURL, openRouterDefaultModel, openRouterCeiling, hc, OpenRouterHeaders(appURL))
}
