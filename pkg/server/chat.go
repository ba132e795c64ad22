package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/devagent-ai/devagent/pkg/audit"
	"github.com/devagent-ai/devagent/pkg/budget"
	cachepkg "github.com/devagent-ai/devagent/pkg/cache/sqlite"
	"github.com/devagent-ai/devagent/pkg/models"
	"github.com/devagent-ai/devagent/pkg/tokens"
)

const msgMessagesRequired = "Messages array is required"

var validate = validator.New(validator.WithRequiredStructEnabled())

// chatBody is the JSON accepted by POST /api/chat.
type chatBody struct {
	Messages    []models.Message    `json:"messages" validate:"required,dive"`
	MaxTokens   int                 `json:"maxTokens"`
	Temperature *float64            `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	Model       string              `json:"model"`
	Provider    models.ProviderName `json:"provider" validate:"omitempty,oneof=groq openrouter huggingface"`
	Tier        models.Tier         `json:"tier" validate:"omitempty,oneof=free mid high"`
}

// chatResponse is the success payload of POST /api/chat.
type chatResponse struct {
	Content   string              `json:"content"`
	Usage     models.TokenUsage   `json:"usage"`
	Model     string              `json:"model"`
	Provider  models.ProviderName `json:"provider"`
	Truncated bool                `json:"truncated"`
	Warning   string              `json:"warning,omitempty"`
}

// toRequest converts the body into a router request. MaxTokens is capped
// before the estimator sees it.
func (b chatBody) toRequest() models.Request {
	return models.Request{
		Messages:    b.Messages,
		MaxTokens:   tokens.CapRequested(b.MaxTokens),
		Temperature: b.Temperature,
		Model:       b.Model,
		Provider:    b.Provider,
		Tier:        b.Tier,
	}
}

// decodeChat reads and validates a chat body. Errors wrap models.ErrValidation.
func decodeChat(raw []byte) (models.Request, error) {
	var body chatBody
	if err := json.Unmarshal(raw, &body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "messages" {
			return models.Request{}, fmt.Errorf("%s: %w", msgMessagesRequired, models.ErrValidation)
		}
		return models.Request{}, fmt.Errorf("invalid request body: %w", models.ErrValidation)
	}
	if body.Messages == nil {
		return models.Request{}, fmt.Errorf("%s: %w", msgMessagesRequired, models.ErrValidation)
	}
	if err := validate.Struct(body); err != nil {
		return models.Request{}, fmt.Errorf("%s: %w", describeValidation(err), models.ErrValidation)
	}
	req := body.toRequest()
	if err := req.Validate(); err != nil {
		return models.Request{}, err
	}
	return req, nil
}

// describeValidation turns the first validator failure into a short message.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("invalid %s: %v", fe.Namespace(), fe.Value())
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	client := s.clientAddr(r)
	if !s.chatLimit.Allow(client) {
		writeJSONError(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = audit.NewRequestID()
	}
	w.Header().Set(HeaderRequestID, requestID)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	req, err := decodeChat(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	verdict := tokens.Check(req)

	if s.deps.Enforcer != nil {
		if err := s.deps.Enforcer.Check(r.Context(), client, req.Provider); err != nil {
			if errors.Is(err, budget.ErrBudgetExceeded) {
				writeJSONError(w, http.StatusTooManyRequests, budget.ErrBudgetExceeded.Error())
				return
			}
			log.Printf("server: budget check: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "budget check failed")
			return
		}
	}

	var cacheKey string
	if s.deps.Cache != nil {
		cacheKey = cachepkg.HashRequest(req)
		if cached, ok := s.deps.Cache.Get(cacheKey); ok {
			w.Header().Set(HeaderCache, "hit")
			writeJSON(w, http.StatusOK, toChatResponse(cached, verdict.Warning))
			return
		}
		w.Header().Set(HeaderCache, "miss")
	}

	sessionID := s.resolveSession(r, client)
	if sessionID != "" {
		w.Header().Set(HeaderSession, sessionID)
	}

	start := time.Now()
	resp, err := s.deps.Router.Route(r.Context(), req)
	latency := time.Since(start).Milliseconds()

	entry := s.auditEntry(requestID, client, sessionID, raw, r.Header, latency)
	if err != nil {
		log.Printf("server: chat failed: %v", err)
		entry.Model = req.Model
		entry.Provider = req.Provider
		entry.StatusCode = http.StatusInternalServerError
		entry.Error = err.Error()
		s.logAudit(entry)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.deps.Tracker != nil {
		rec := models.UsageRecord{
			Client:           client,
			Model:            resp.Model,
			Provider:         resp.Provider,
			SessionID:        sessionID,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Truncated:        resp.Truncated,
			CreatedAt:        time.Now().UTC(),
		}
		if err := s.deps.Tracker.Record(r.Context(), rec); err != nil {
			log.Printf("server: record usage: %v", err)
		}
	}

	if s.deps.Cache != nil && !resp.Truncated {
		if err := s.deps.Cache.Put(cacheKey, resp); err != nil {
			log.Printf("server: cache put: %v", err)
		}
	}

	payload := toChatResponse(resp, verdict.Warning)
	if s.deps.Auditor != nil {
		body, _ := json.Marshal(payload)
		entry.Model = resp.Model
		entry.Provider = resp.Provider
		entry.StatusCode = http.StatusOK
		entry.ResponseBody = string(body)
		entry.PromptTokens = resp.Usage.PromptTokens
		entry.CompletionTokens = resp.Usage.CompletionTokens
		entry.TotalTokens = resp.Usage.TotalTokens
		s.logAudit(entry)
	}

	writeJSON(w, http.StatusOK, payload)
}

func toChatResponse(resp models.Response, warning string) chatResponse {
	return chatResponse{
		Content:   resp.Content,
		Usage:     resp.Usage,
		Model:     resp.Model,
		Provider:  resp.Provider,
		Truncated: resp.Truncated,
		Warning:   warning,
	}
}

// validationMessage strips the sentinel suffix so clients see the reason only.
func validationMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+models.ErrValidation.Error())
}

// resolveSession returns the session for this request, honoring an explicit
// X-Devagent-Session header.
func (s *Server) resolveSession(r *http.Request, client string) string {
	if s.deps.Tracker == nil {
		return ""
	}
	sid, err := s.deps.Tracker.ResolveSession(r.Context(), client, r.Header.Get(HeaderSession), s.cfg.Session.GapTimeout)
	if err != nil {
		log.Printf("server: session resolve error: %v", err)
		return ""
	}
	return sid
}

func (s *Server) auditEntry(requestID, client, sessionID string, body []byte, h http.Header, latency int64) models.AuditEntry {
	hash, prefix := audit.HashClient(client)
	headers := make(map[string]string)
	for _, k := range []string{"Content-Type", "User-Agent", "Origin", HeaderSession} {
		if v := h.Get(k); v != "" {
			headers[k] = v
		}
	}
	return models.AuditEntry{
		RequestID:      requestID,
		ClientHash:     hash,
		ClientPrefix:   prefix,
		SessionID:      sessionID,
		RequestBody:    string(body),
		RequestHeaders: headers,
		LatencyMs:      latency,
		CreatedAt:      time.Now().UTC(),
	}
}

func (s *Server) logAudit(entry models.AuditEntry) {
	if s.deps.Auditor == nil {
		return
	}
	s.goBackground(func() {
		if err := s.deps.Auditor.Log(context.Background(), entry); err != nil {
			log.Printf("server: audit log error: %v", err)
		}
	})
}
