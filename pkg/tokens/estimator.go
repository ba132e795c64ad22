// Package tokens approximates token counts and keeps requests inside the
// per-request output budget. The estimate is a fixed chars/4 heuristic, not
// a tokenizer.
package tokens

import (
	"fmt"
	"unicode/utf8"

	"github.com/devagent-ai/devagent/pkg/models"
)

const (
	// MaxTokensPerRequest is the hard cap on prompt plus output tokens. A
	// request whose estimate reaches it is unsafe.
	MaxTokensPerRequest = 4096
	// WarningThreshold is the total above which a safe request carries a warning.
	WarningThreshold = 3072
	// SafeDefault is the output budget assumed when a request sets none.
	SafeDefault = 2048
	// MinRecommended floors the recommendation on the unsafe path.
	MinRecommended = 256
	// PromptReserve is subtracted from the remaining budget when clamping.
	PromptReserve = 100
)

const approachingWarning = "Request is approaching token limit. Consider summarizing context."

// Estimate returns ceil(len(text)/4), counting characters rather than bytes.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// PromptTokens sums the estimate of every message's content.
func PromptTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += Estimate(m.Content)
	}
	return total
}

// Check classifies req into one of three bands: unsafe (clamp), safe with a
// warning, or silently safe.
func Check(req models.Request) models.SafetyVerdict {
	prompt := PromptTokens(req.Messages)
	requested := req.MaxTokens
	if requested <= 0 {
		requested = SafeDefault
	}
	total := prompt + requested

	if total >= MaxTokensPerRequest {
		recommended := max(MaxTokensPerRequest-prompt-PromptReserve, MinRecommended)
		return models.SafetyVerdict{
			Safe:                 false,
			RecommendedMaxTokens: recommended,
			Warning:              fmt.Sprintf("Request exceeds maximum token limit. Reducing max_tokens to %d", recommended),
		}
	}
	if total > WarningThreshold {
		return models.SafetyVerdict{Safe: true, RecommendedMaxTokens: requested, Warning: approachingWarning}
	}
	return models.SafetyVerdict{Safe: true, RecommendedMaxTokens: requested}
}

// Clamp checks req and returns the request to dispatch. Unsafe requests come
// back as a copy carrying the recommended MaxTokens; req itself is untouched.
func Clamp(req models.Request) (models.Request, models.SafetyVerdict) {
	v := Check(req)
	if v.Safe {
		return req, v
	}
	return req.WithMaxTokens(v.RecommendedMaxTokens), v
}

// CapRequested bounds a caller-supplied output budget to the hard cap before
// the estimator runs. Non-positive values are left unset.
func CapRequested(n int) int {
	if n <= 0 {
		return 0
	}
	return min(n, MaxTokensPerRequest)
}
