package opsapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/opsmedia/catalogpipe/internal/orchestrator"
)

// createRunRequest mirrors the CLI surface distilled §6 names, as JSON.
type createRunRequest struct {
	Phase             string `json:"phase"`
	StartPage         int    `json:"start_page"`
	EndPage           int    `json:"end_page"`
	AllMode           bool   `json:"all_mode"`
	URL               string `json:"url"`
	IgnoreHistory     bool   `json:"ignore_history"`
	IgnoreReleaseDate bool   `json:"ignore_release_date"`
	UseProxy          bool   `json:"use_proxy"`
	UseBypass         bool   `json:"use_bypass"`
	DryRun            bool   `json:"dry_run"`
	OutputFile        string `json:"output_file"`
	UploadMode        string `json:"upload_mode"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	runID := newRunID()
	args := orchestrator.Args{
		Phase:             req.Phase,
		StartPage:         req.StartPage,
		EndPage:           req.EndPage,
		AllMode:           req.AllMode,
		URL:               req.URL,
		IgnoreHistory:     req.IgnoreHistory,
		IgnoreReleaseDate: req.IgnoreReleaseDate,
		UseProxy:          req.UseProxy,
		UseBypass:         req.UseBypass,
		DryRun:            req.DryRun,
		OutputFile:        req.OutputFile,
		UploadMode:        req.UploadMode,
	}

	// The request's context ends when the handler returns; the run itself
	// outlives the HTTP response, so it gets its own background context.
	go func() {
		status := s.orch.Run(context.Background(), runID, args)
		s.recordRun(status)
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, ok := s.lookupRun(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
