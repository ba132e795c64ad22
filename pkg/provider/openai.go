package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"
)

// OpenAICompatible is an adapter for vendors that speak the OpenAI chat
// completions API. Groq and OpenRouter are both built on it.
type OpenAICompatible struct {
	name         models.ProviderName
	apiKey       string
	defaultModel string
	ceiling      int
	client       *openai.Client
}

func newOpenAICompatible(name models.ProviderName, apiKey, baseURL, defaultModel string, ceiling int, hc *http.Client, headers map[string]string) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if hc == nil {
		hc = http.DefaultClient
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cfg.HTTPClient = &http.Client{
		Timeout:   hc.Timeout,
		Transport: &headerTransport{base: base, headers: headers},
	}
	return &OpenAICompatible{
		name:         name,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		ceiling:      ceiling,
		client:       openai.NewClientWithConfig(cfg),
	}
}

// Name implements Adapter.
func (o *OpenAICompatible) Name() models.ProviderName { return o.name }

// Available reports whether a credential was resolved.
func (o *OpenAICompatible) Available() bool { return o.apiKey != "" }

// Chat sends one chat completion and normalizes the result.
func (o *OpenAICompatible) Chat(ctx context.Context, req models.Request) (models.Response, error) {
	if !o.Available() {
		return models.Response{}, &Error{Provider: o.name, Err: ErrNotConfigured}
	}
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(req.Messages),
		MaxTokens:   maxTokensFor(req.MaxTokens, o.ceiling),
		Temperature: wireTemperature(req.Temperature),
	})
	if err != nil {
		return models.Response{}, &Error{Provider: o.name, Err: err}
	}
	if len(resp.Choices) == 0 {
		return models.Response{}, &Error{Provider: o.name, Err: errors.New("no choices in response")}
	}

	if resp.Model != "" {
		model = resp.Model
	}
	choice := resp.Choices[0]
	return models.Response{
		Content: choice.Message.Content,
		Usage: models.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Model:            model,
			Provider:         o.name,
		},
		Model:     model,
		Provider:  o.name,
		Truncated: choice.FinishReason == openai.FinishReasonLength,
	}, nil
}

// wireTemperature converts the request temperature for go-openai, whose
// omitempty tag would drop an explicit 0 and let the vendor apply its own
// default.
func wireTemperature(t *float64) float32 {
	v := float32(temperatureFor(t))
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}

func toChatMessages(msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.Images) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
		if m.Content != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Content})
		}
		for _, img := range m.Images {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: imageURL(img)},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), MultiContent: parts})
	}
	return out
}

// imageURL turns an attachment into something a vendor accepts as an image
// URL. Bare base64 payloads become data URLs with a sniffed content type.
func imageURL(img string) string {
	if strings.HasPrefix(img, "data:") || strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		return img
	}
	mime := "image/png"
	if raw, err := base64.StdEncoding.DecodeString(img); err == nil {
		if mt := mimetype.Detect(raw); strings.HasPrefix(mt.String(), "image/") {
			mime = mt.String()
		}
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, img)
}

// headerTransport adds fixed headers to every outbound request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		r = r.Clone(r.Context())
		for k, v := range t.headers {
			r.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(r)
}
