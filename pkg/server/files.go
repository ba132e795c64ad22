package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/devagent-ai/devagent/pkg/workspace"
)

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Workspace == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "workspace not configured")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		tree, err := s.deps.Workspace.Tree()
		if err != nil {
			log.Printf("server: list workspace: %v", err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
		return
	}

	file, err := s.deps.Workspace.Read(path)
	if err != nil {
		if errors.Is(err, workspace.ErrOutsideRoot) {
			writeJSONError(w, http.StatusForbidden, msgAccessDenied)
			return
		}
		log.Printf("server: read %s: %v", path, err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, file)
}
