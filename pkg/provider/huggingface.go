package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tokens"
)

const (
	// HuggingFaceBaseURL is the Inference API root; the model id is appended.
	HuggingFaceBaseURL      = "https://api-inference.huggingface.co/models"
	huggingFaceDefaultModel = "meta-llama/Llama-3.1-70B-Instruct"
	huggingFaceCeiling      = 4096
)

// HuggingFace calls the text-generation Inference API. The API reports no
// usage, so token counts are estimated.
type HuggingFace struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHuggingFace returns the HuggingFace adapter.
func NewHuggingFace(apiKey, baseURL string, hc *http.Client) *HuggingFace {
	if baseURL == "" {
		baseURL = HuggingFaceBaseURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HuggingFace{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: hc}
}

// Name implements Adapter.
func (h *HuggingFace) Name() models.ProviderName { return models.ProviderHuggingFace }

// Available reports whether a credential was resolved.
func (h *HuggingFace) Available() bool { return h.apiKey != "" }

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// Chat renders the conversation as a single prompt and posts it to the
// model's inference endpoint. Images are dropped.
func (h *HuggingFace) Chat(ctx context.Context, req models.Request) (models.Response, error) {
	if !h.Available() {
		return models.Response{}, h.fail(ErrNotConfigured)
	}
	model := req.Model
	if model == "" {
		model = huggingFaceDefaultModel
	}

	body, err := json.Marshal(hfRequest{
		Inputs: FormatPrompt(req.Messages),
		Parameters: hfParameters{
			MaxNewTokens:   maxTokensFor(req.MaxTokens, huggingFaceCeiling),
			Temperature:    temperatureFor(req.Temperature),
			ReturnFullText: false,
		},
	})
	if err != nil {
		return models.Response{}, h.fail(fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+model, bytes.NewReader(body))
	if err != nil {
		return models.Response{}, h.fail(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return models.Response{}, h.fail(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Response{}, h.fail(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Response{}, h.fail(fmt.Errorf("status %d: %s", resp.StatusCode, vendorMessage(respBody)))
	}

	content, err := parseGeneration(respBody)
	if err != nil {
		return models.Response{}, h.fail(err)
	}

	promptText := joinContents(req.Messages)
	prompt, completion := tokens.Estimate(promptText), tokens.Estimate(content)
	return models.Response{
		Content: content,
		Usage: models.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
			Model:            model,
			Provider:         models.ProviderHuggingFace,
		},
		Model:    model,
		Provider: models.ProviderHuggingFace,
	}, nil
}

func (h *HuggingFace) fail(err error) error {
	return &Error{Provider: models.ProviderHuggingFace, Err: err}
}

// FormatPrompt renders messages as "System:", "User:" and "Assistant:"
// blocks separated by blank lines, ending with an open assistant turn.
func FormatPrompt(msgs []models.Message) string {
	blocks := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			blocks = append(blocks, "System: "+m.Content)
		case models.RoleUser:
			blocks = append(blocks, "User: "+m.Content)
		default:
			blocks = append(blocks, "Assistant: "+m.Content)
		}
	}
	return strings.Join(blocks, "\n\n") + "\n\nAssistant:"
}

// parseGeneration accepts either a list of generations or a single object.
func parseGeneration(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var gens []hfGeneration
		if err := json.Unmarshal(trimmed, &gens); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if len(gens) == 0 {
			return "", nil
		}
		return gens[0].GeneratedText, nil
	}
	var gen hfGeneration
	if err := json.Unmarshal(trimmed, &gen); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return gen.GeneratedText, nil
}

// vendorMessage extracts {"error": "..."} from a failure body when present.
func vendorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func joinContents(msgs []models.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
