package server

import (
	"net/http"

	"github.com/devagent-ai/devagent/pkg/models"
)

type usageResponse struct {
	Total   int                 `json:"total"`
	Entries []models.TokenUsage `json:"entries"`
}

// handleUsage reports or resets the in-memory token ledger.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := s.deps.Ledger.Entries()
		if entries == nil {
			entries = []models.TokenUsage{}
		}
		writeJSON(w, http.StatusOK, usageResponse{Total: s.deps.Ledger.Total(), Entries: entries})
	case http.MethodDelete:
		s.deps.Ledger.Reset()
		writeJSON(w, http.StatusOK, usageResponse{Entries: []models.TokenUsage{}})
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleModels lists the catalog in fallback order.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  s.deps.Catalog.FallbackChain(),
		"default": s.deps.Catalog.Default().ID,
	})
}
