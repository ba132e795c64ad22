package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/devagent-ai/devagent/pkg/media"
	"github.com/devagent-ai/devagent/pkg/models"
)

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.genLimit.Allow(s.clientAddr(r)) {
		writeJSONError(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	var req media.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	gen := s.deps.Media
	if gen == nil {
		gen = media.NewGenerator(nil)
	}
	res, err := gen.Generate(r.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			writeJSONError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		log.Printf("server: generate: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
