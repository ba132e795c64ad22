package router_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/devagent-ai/devagent/pkg/catalog"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
	"github.com/devagent-ai/devagent/pkg/provider/mock"
	"github.com/devagent-ai/devagent/pkg/router"
	"github.com/devagent-ai/devagent/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hi() models.Request {
	return models.Request{Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}}}
}

func okChat(p models.ProviderName) func(context.Context, models.Request) (models.Response, error) {
	return func(_ context.Context, req models.Request) (models.Response, error) {
		return models.Response{
			Content:  "ok from " + string(p),
			Model:    req.Model,
			Provider: p,
			Usage:    models.TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3, Model: req.Model, Provider: p},
		}, nil
	}
}

// threeTier has one model per provider so each provider is a distinct candidate.
func threeTier(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]models.Model{
		{ID: "p1-free", Provider: models.ProviderHuggingFace, Tier: models.TierFree},
		{ID: "p2-free", Provider: models.ProviderGroq, Tier: models.TierFree},
		{ID: "p3-mid", Provider: models.ProviderOpenRouter, Tier: models.TierMid},
	})
	require.NoError(t, err)
	return c
}

func TestRouteSkipsUnavailableAndFailing(t *testing.T) {
	t.Parallel()
	p1 := &mock.Adapter{ProviderName: models.ProviderHuggingFace, AvailableFn: mock.Unavailable}
	p2 := &mock.Adapter{
		ProviderName: models.ProviderGroq,
		ChatFn: func(context.Context, models.Request) (models.Response, error) {
			return models.Response{}, errors.New("boom")
		},
	}
	p3 := &mock.Adapter{ProviderName: models.ProviderOpenRouter, ChatFn: okChat(models.ProviderOpenRouter)}

	ledger := tokens.NewLedger()
	r := router.New(threeTier(t), provider.Set{HuggingFace: p1, Groq: p2, OpenRouter: p3}, ledger)
	resp, err := r.Route(context.Background(), hi())
	require.NoError(t, err)

	assert.Equal(t, models.ProviderOpenRouter, resp.Provider)
	assert.Equal(t, "p3-mid", resp.Model)
	assert.Equal(t, 0, p1.ChatCalls())
	assert.Equal(t, 1, p2.ChatCalls())
	assert.Equal(t, 1, p3.ChatCalls())
	assert.Equal(t, 3, ledger.Total())
}

func TestRouteFirstSuccessShortCircuits(t *testing.T) {
	t.Parallel()
	p1 := &mock.Adapter{ProviderName: models.ProviderHuggingFace, ChatFn: okChat(models.ProviderHuggingFace)}
	p2 := &mock.Adapter{ProviderName: models.ProviderGroq, ChatFn: okChat(models.ProviderGroq)}
	r := router.New(threeTier(t), provider.Set{HuggingFace: p1, Groq: p2}, nil)

	resp, err := r.Route(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "p1-free", resp.Model)
	assert.Equal(t, 0, p2.ChatCalls())
}

func TestRouteSkipsUnregisteredProvider(t *testing.T) {
	t.Parallel()
	p3 := &mock.Adapter{ProviderName: models.ProviderOpenRouter, ChatFn: okChat(models.ProviderOpenRouter)}
	r := router.New(threeTier(t), provider.Set{OpenRouter: p3}, nil)

	resp, err := r.Route(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, models.ProviderOpenRouter, resp.Provider)
}

func TestRouteFreeTierOnlyCredential(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"model":"llama-3.1-8b-instant","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	creds := provider.ResolveCredentials(func(k string) string {
		if k == provider.EnvSharedKey {
			return "gsk_free"
		}
		return ""
	})
	set := provider.NewSet(creds, provider.Options{GroqBaseURL: srv.URL, HTTPClient: srv.Client()})
	r := router.New(catalog.Default(), set, tokens.NewLedger())

	resp, err := r.Route(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "llama-3.1-8b-instant", resp.Model)
	assert.Equal(t, models.ProviderGroq, resp.Provider)
	assert.False(t, resp.Truncated)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRouteNoCredentialsExhaustsWithoutNetwork(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	set := provider.NewSet(provider.Credentials{}, provider.Options{
		GroqBaseURL:        srv.URL,
		OpenRouterBaseURL:  srv.URL,
		HuggingFaceBaseURL: srv.URL,
		HTTPClient:         srv.Client(),
	})
	r := router.New(catalog.Default(), set, nil)

	long := models.Request{Messages: []models.Message{{Role: models.RoleUser, Content: strings.Repeat("abcd", 5000)}}}
	_, err := r.Route(context.Background(), long)
	require.Error(t, err)

	var exhausted *router.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.NotEmpty(t, exhausted.Attempts)
	assert.Contains(t, err.Error(), "No LLM providers are configured")
	assert.Contains(t, err.Error(), "GROQ_API_KEY")
	assert.Equal(t, int32(0), calls.Load())
}

func TestExhaustedErrorListsFirstThree(t *testing.T) {
	t.Parallel()
	e := &router.ExhaustedError{Attempts: []router.Attempt{
		{Provider: models.ProviderGroq, Model: "a", Err: errors.New("e1")},
		{Provider: models.ProviderGroq, Model: "b", Err: errors.New("e2")},
		{Provider: models.ProviderOpenRouter, Model: "c", Err: provider.ErrNotConfigured},
		{Provider: models.ProviderOpenRouter, Model: "d", Err: errors.New("e4")},
		{Provider: models.ProviderHuggingFace, Model: "e", Err: errors.New("e5")},
	}}
	assert.Equal(t,
		"All LLM providers failed. Errors: groq/a: e1; groq/b: e2; openrouter/c: API key not configured (and 2 more)",
		e.Error())
}

func TestRouteAllFailing(t *testing.T) {
	t.Parallel()
	fail := func(context.Context, models.Request) (models.Response, error) {
		return models.Response{}, errors.New("down")
	}
	set := provider.Set{
		HuggingFace: &mock.Adapter{ProviderName: models.ProviderHuggingFace, ChatFn: fail},
		Groq:        &mock.Adapter{ProviderName: models.ProviderGroq, ChatFn: fail},
		OpenRouter:  &mock.Adapter{ProviderName: models.ProviderOpenRouter, ChatFn: fail},
	}
	_, err := router.New(threeTier(t), set, nil).Route(context.Background(), hi())
	var exhausted *router.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Len(t, exhausted.Attempts, 3)
	assert.True(t, strings.HasPrefix(err.Error(), "All LLM providers failed."))
}

func TestPrepareClampsWithoutMutatingCaller(t *testing.T) {
	t.Parallel()
	r := router.New(catalog.Default(), provider.Set{}, nil)
	orig := models.Request{
		Messages:  []models.Message{{Role: models.RoleUser, Content: strings.Repeat("abcd", 3000)}},
		MaxTokens: 4000,
	}
	req, start := r.Prepare(orig)
	assert.Equal(t, 996, req.MaxTokens)
	assert.Equal(t, 4000, orig.MaxTokens)
	assert.Empty(t, orig.Model)
	// 3000 prompt tokens lands in the mid band.
	assert.Equal(t, models.TierMid, start.Tier)
	assert.Equal(t, start.ID, req.Model)
}

func TestPrepareUnknownModelFallsBackToDefault(t *testing.T) {
	t.Parallel()
	c := catalog.Default()
	r := router.New(c, provider.Set{}, nil)
	req := hi()
	req.Model = "no-such-model"
	_, start := r.Prepare(req)
	assert.Equal(t, c.Default().ID, start.ID)
}

func TestPreparePinnedProvider(t *testing.T) {
	t.Parallel()
	r := router.New(catalog.Default(), provider.Set{}, nil)
	req := hi()
	req.Provider = models.ProviderGroq
	out, start := r.Prepare(req)
	assert.Equal(t, "llama-3.1-8b-instant", start.ID)
	assert.Equal(t, models.ProviderGroq, out.Provider)
}

func TestPrepareForceTier(t *testing.T) {
	t.Parallel()
	r := router.New(catalog.Default(), provider.Set{}, nil)
	req := hi()
	req.Tier = models.TierHigh
	_, start := r.Prepare(req)
	assert.Equal(t, "meta-llama/Meta-Llama-3-70B-Instruct", start.ID)
}

func TestCandidates(t *testing.T) {
	t.Parallel()
	c := catalog.Default()
	r := router.New(c, provider.Set{}, nil)

	ids := func(ms []models.Model) []string {
		out := make([]string, len(ms))
		for i, m := range ms {
			out[i] = m.ID
		}
		return out
	}

	first, _ := c.Find("meta-llama/llama-3.1-70b-instruct:free")
	assert.Equal(t, ids(c.FallbackChain()), ids(r.Candidates(first)))

	mid, _ := c.Find("llama-3.1-70b-instruct")
	assert.Equal(t, []string{
		"llama-3.1-70b-instruct",
		"mixtral-8x7b-32768",
		"meta-llama/Meta-Llama-3-70B-Instruct",
	}, ids(r.Candidates(mid)))

	assert.Equal(t, []string{c.Default().ID}, ids(r.Candidates(models.Model{ID: "ghost"})))
}

func TestRouteHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	p := &mock.Adapter{ProviderName: models.ProviderHuggingFace, ChatFn: okChat(models.ProviderHuggingFace)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := router.New(threeTier(t), provider.Set{HuggingFace: p}, nil).Route(ctx, hi())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.ChatCalls())
}
