package provider_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedChat struct {
	header http.Header
	body   map[string]any
}

// chatUpstream serves a canned chat completion and records the last request.
func chatUpstream(t *testing.T, finishReason string) (*httptest.Server, *capturedChat) {
	t.Helper()
	got := &capturedChat{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		got.header = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "vendor-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello there"}, "finish_reason": "` + finishReason + `"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func userRequest(content string) models.Request {
	return models.Request{Messages: []models.Message{{Role: models.RoleUser, Content: content}}}
}

func TestGroqChat(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "stop")
	g := provider.NewGroq("gsk_test", srv.URL, srv.Client())

	resp, err := g.Chat(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "vendor-model", resp.Model)
	assert.Equal(t, models.ProviderGroq, resp.Provider)
	assert.False(t, resp.Truncated)
	assert.Equal(t, models.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10, Model: "vendor-model", Provider: models.ProviderGroq}, resp.Usage)

	assert.Equal(t, "Bearer gsk_test", got.header.Get("Authorization"))
	assert.Equal(t, "llama-3.1-8b-instant", got.body["model"])
	assert.InDelta(t, 2048, got.body["max_tokens"], 0)
	assert.InDelta(t, 0.7, got.body["temperature"], 1e-6)
}

func TestGroqClampsToCeiling(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "stop")
	g := provider.NewGroq("gsk_test", srv.URL, srv.Client())

	req := userRequest("hi")
	req.MaxTokens = 50000
	temp := 0.2
	req.Temperature = &temp
	req.Model = "gemma-7b-it"
	_, err := g.Chat(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 8192, got.body["max_tokens"], 0)
	assert.InDelta(t, 0.2, got.body["temperature"], 1e-6)
	assert.Equal(t, "gemma-7b-it", got.body["model"])
}

func TestGroqSendsExplicitZeroTemperature(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "stop")
	g := provider.NewGroq("gsk_test", srv.URL, srv.Client())

	req := userRequest("hi")
	zero := 0.0
	req.Temperature = &zero
	_, err := g.Chat(context.Background(), req)
	require.NoError(t, err)

	temp, ok := got.body["temperature"]
	require.True(t, ok, "temperature must be sent when explicitly zero")
	assert.InDelta(t, 0, temp, 1e-6)
}

func TestOpenRouterHeadersAndTruncation(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "length")
	o := provider.NewOpenRouter("sk-or", srv.URL, "", srv.Client())

	resp, err := o.Chat(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.True(t, resp.Truncated)
	assert.Equal(t, models.ProviderOpenRouter, resp.Provider)
	assert.Equal(t, "http://localhost:3000", got.header.Get("HTTP-Referer"))
	assert.Equal(t, "AI Dev Agent", got.header.Get("X-Title"))
	assert.Equal(t, "meta-llama/llama-3.1-70b-instruct:free", got.body["model"])
}

func TestOpenRouterCustomAppURL(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "stop")
	o := provider.NewOpenRouter("sk-or", srv.URL, "https://agent.example.com", srv.Client())
	_, err := o.Chat(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "https://agent.example.com", got.header.Get("HTTP-Referer"))
}

func TestChatSendsImageParts(t *testing.T) {
	t.Parallel()
	srv, got := chatUpstream(t, "stop")
	g := provider.NewOpenRouter("sk-or", srv.URL, "", srv.Client())

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	req := models.Request{Messages: []models.Message{{
		Role:    models.RoleUser,
		Content: "what is this",
		Images:  []string{base64.StdEncoding.EncodeToString(png), "data:image/jpeg;base64,AAAA"},
	}}}
	_, err := g.Chat(context.Background(), req)
	require.NoError(t, err)

	msgs := got.body["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	first := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Contains(t, first, "data:image/png;base64,")
	second := parts[2].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", second)
}

func TestChatVendorError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	g := provider.NewGroq("gsk_bad", srv.URL, srv.Client())
	_, err := g.Chat(context.Background(), userRequest("hi"))
	require.Error(t, err)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.ProviderGroq, perr.Provider)
	assert.Contains(t, err.Error(), "Groq API error:")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChatWithoutCredential(t *testing.T) {
	t.Parallel()
	g := provider.NewGroq("", "http://127.0.0.1:1", nil)
	assert.False(t, g.Available())
	_, err := g.Chat(context.Background(), userRequest("hi"))
	assert.ErrorIs(t, err, provider.ErrNotConfigured)
	assert.Equal(t, "Groq API error: API key not configured", err.Error())
}
