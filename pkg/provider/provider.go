// Package provider adapts the normalized chat request to each supported LLM
// vendor's HTTP API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tokens"
)

// DefaultTemperature is sent when a request leaves temperature unset.
const DefaultTemperature = 0.7

// ErrNotConfigured is returned by Chat when the adapter has no credential.
var ErrNotConfigured = errors.New("API key not configured")

// Adapter is the capability every vendor integration exposes.
// Adapters never retry; fallback is the router's job.
type Adapter interface {
	Name() models.ProviderName
	Available() bool
	Chat(ctx context.Context, req models.Request) (models.Response, error)
}

// Error wraps a vendor failure with the provider that produced it.
type Error struct {
	Provider models.ProviderName
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s API error: %v", DisplayName(e.Provider), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DisplayName returns the vendor's human-readable name.
func DisplayName(p models.ProviderName) string {
	switch p {
	case models.ProviderGroq:
		return "Groq"
	case models.ProviderOpenRouter:
		return "OpenRouter"
	case models.ProviderHuggingFace:
		return "HuggingFace"
	}
	return string(p)
}

// Set holds one adapter per supported vendor. A nil field means the vendor
// has no registered adapter.
type Set struct {
	Groq        Adapter
	OpenRouter  Adapter
	HuggingFace Adapter
}

// For returns the adapter registered for name, or nil.
func (s Set) For(name models.ProviderName) Adapter {
	switch name {
	case models.ProviderGroq:
		return s.Groq
	case models.ProviderOpenRouter:
		return s.OpenRouter
	case models.ProviderHuggingFace:
		return s.HuggingFace
	}
	return nil
}

// Options configures the built-in adapters. Empty base URLs select the
// vendors' public endpoints.
type Options struct {
	GroqBaseURL        string
	OpenRouterBaseURL  string
	HuggingFaceBaseURL string
	// AppURL is sent to OpenRouter as HTTP-Referer.
	AppURL     string
	HTTPClient *http.Client
}

// NewSet builds the three vendor adapters from resolved credentials.
func NewSet(creds Credentials, opts Options) Set {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return Set{
		Groq:        NewGroq(creds.Groq, opts.GroqBaseURL, hc),
		OpenRouter:  NewOpenRouter(creds.OpenRouter, opts.OpenRouterBaseURL, opts.AppURL, hc),
		HuggingFace: NewHuggingFace(creds.HuggingFace, opts.HuggingFaceBaseURL, hc),
	}
}

// maxTokensFor bounds the requested output budget by a vendor ceiling.
func maxTokensFor(requested, ceiling int) int {
	if requested <= 0 {
		requested = tokens.SafeDefault
	}
	return min(requested, ceiling)
}

func temperatureFor(t *float64) float64 {
	if t == nil {
		return DefaultTemperature
	}
	return *t
}
