package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
	"github.com/devagent-ai/devagent/pkg/tokens"
)

// maxListedAttempts caps how many failures ExhaustedError spells out.
const maxListedAttempts = 3

// Attempt records why one candidate did not produce a response.
type Attempt struct {
	Provider models.ProviderName
	Model    string
	Err      error
}

// ExhaustedError is returned when every candidate was skipped or failed.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if e.unconfigured() {
		vars := make([]string, 0, len(models.Providers)+1)
		for _, p := range models.Providers {
			vars = append(vars, provider.EnvVar(p))
		}
		return fmt.Sprintf("No LLM providers are configured. Please set at least one API key: %s (or %s)",
			strings.Join(vars, ", "), provider.EnvSharedKey)
	}

	listed := e.Attempts
	if len(listed) > maxListedAttempts {
		listed = listed[:maxListedAttempts]
	}
	details := make([]string, len(listed))
	for i, a := range listed {
		details[i] = fmt.Sprintf("%s/%s: %v", a.Provider, a.Model, a.Err)
	}
	msg := "All LLM providers failed. Errors: " + strings.Join(details, "; ")
	if extra := len(e.Attempts) - len(listed); extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

// unconfigured reports whether no candidate had a usable credential.
func (e *ExhaustedError) unconfigured() bool {
	for _, a := range e.Attempts {
		if !errors.Is(a.Err, provider.ErrNotConfigured) {
			return false
		}
	}
	return true
}

// Router picks a model for each request and walks the fallback chain until
// one vendor answers.
type Router struct {
	catalog  *catalog.Catalog
	adapters provider.Set
	ledger   *tokens.Ledger
}

// New creates a Router. A nil ledger disables usage tracking.
func New(c *catalog.Catalog, adapters provider.Set, ledger *tokens.Ledger) *Router {
	return &Router{catalog: c, adapters: adapters, ledger: ledger}
}

// Catalog returns the model registry the router selects from.
func (r *Router) Catalog() *catalog.Catalog { return r.catalog }

// Prepare applies the token clamp and model selection to req, returning the
// request that will be dispatched and the model the chain starts from.
func (r *Router) Prepare(req models.Request) (models.Request, models.Model) {
	req, verdict := tokens.Clamp(req)
	if !verdict.Safe {
		log.Printf("router: %s", verdict.Warning)
	}

	if req.Model == "" {
		selected := r.catalog.SelectFor(tokens.PromptTokens(req.Messages), req.Tier, req.Provider)
		req = req.WithModel(selected)
	}

	start, ok := r.catalog.Find(req.Model)
	if !ok {
		start = r.catalog.Default()
		log.Printf("router: unknown model %q, starting from %s", req.Model, start.ID)
	}
	return req, start
}

// Candidates returns start followed by every model after it in the fallback
// chain, grouped free, mid, high.
func (r *Router) Candidates(start models.Model) []models.Model {
	chain := r.catalog.FallbackChain()
	idx := -1
	for i, m := range chain {
		if m.ID == start.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []models.Model{r.catalog.Default()}
	}

	remaining := chain[idx+1:]
	out := make([]models.Model, 0, len(remaining)+1)
	out = append(out, start)
	for _, tier := range models.Tiers {
		for _, m := range remaining {
			if m.Tier == tier {
				out = append(out, m)
			}
		}
	}
	return out
}

// Route dispatches req to the first candidate that succeeds. Per-candidate
// failures are collected; only exhaustion of the chain is returned.
func (r *Router) Route(ctx context.Context, req models.Request) (models.Response, error) {
	req, start := r.Prepare(req)

	var attempts []Attempt
	for _, m := range r.Candidates(start) {
		adapter := r.adapters.For(m.Provider)
		if adapter == nil {
			continue
		}
		if !adapter.Available() {
			attempts = append(attempts, Attempt{Provider: m.Provider, Model: m.ID, Err: provider.ErrNotConfigured})
			continue
		}
		if err := ctx.Err(); err != nil {
			return models.Response{}, err
		}

		resp, err := adapter.Chat(ctx, req.WithModel(m))
		if err != nil {
			log.Printf("router: %s/%s failed: %v, trying next", m.Provider, m.ID, err)
			attempts = append(attempts, Attempt{Provider: m.Provider, Model: m.ID, Err: err})
			continue
		}

		if r.ledger != nil {
			r.ledger.Track(resp.Usage)
		}
		if resp.Truncated {
			log.Printf("router: response truncated for model %s, consider a larger model", m.ID)
		}
		return resp, nil
	}
	return models.Response{}, &ExhaustedError{Attempts: attempts}
}
