package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillcoder/watchhamster/internal/logic/alert"
	"github.com/skillcoder/watchhamster/internal/logic/delivery"
	"github.com/skillcoder/watchhamster/internal/logic/stability"
)

type submitAlertRequest struct {
	Severity string `json:"severity" validate:"required"`
	Source   string `json:"source" validate:"max=64"`
	Route    string `json:"route" validate:"max=64"`
	Title    string `json:"title" validate:"required,max=256"`
	Body     string `json:"body" validate:"max=8192"`
}

type submitAlertResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type failedResponse struct {
	Count  int                       `json:"count"`
	Failed []delivery.FailedDelivery `json:"failed"`
}

type clearedResponse struct {
	Cleared int `json:"cleared"`
}

type findingsResponse struct {
	Count    int                 `json:"count"`
	Findings []stability.Finding `json:"findings"`
}

func (s *Server) handleSubmitAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "decode request: " + err.Error()})

		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})

		return
	}

	severity, err := alert.ParseSeverity(req.Severity)
	if err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})

		return
	}

	source := req.Source
	if source == "" {
		source = apiAlertSource
	}

	event := alert.NewEvent(severity, source, req.Route, req.Title, req.Body)

	id, err := s.deps.Pipeline.Submit(ctx, event)

	switch {
	case err == nil:
		s.writeJSON(w, r, http.StatusAccepted, submitAlertResponse{ID: id})
	case errors.Is(err, delivery.ErrInvalidEvent):
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, delivery.ErrQueueFull), errors.Is(err, delivery.ErrPipelineClosed):
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

// handleHealth serves the latest cycle. Only when none has run yet does it sample,
// detached from the request so a disconnect cannot abort restarts midway.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.deps.Supervisor.Snapshot(); ok {
		s.writeJSON(w, r, http.StatusOK, snap)

		return
	}

	snap, err := s.deps.Supervisor.SampleOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	s.writeJSON(w, r, http.StatusOK, snap)
}

func (s *Server) handleDeliveryStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.deps.Pipeline.Stats())
}

func (s *Server) handleDeliveryFailed(w http.ResponseWriter, r *http.Request) {
	failed := s.deps.Pipeline.Failed()
	if failed == nil {
		failed = []delivery.FailedDelivery{}
	}

	s.writeJSON(w, r, http.StatusOK, failedResponse{Count: len(failed), Failed: failed})
}

func (s *Server) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, clearedResponse{Cleared: s.deps.Pipeline.ClearFailed()})
}

func (s *Server) handleValidateConfigs(w http.ResponseWriter, r *http.Request) {
	findings := s.deps.Stability.ValidateConfigs(r.Context())
	if findings == nil {
		findings = []stability.Finding{}
	}

	s.writeJSON(w, r, http.StatusOK, findingsResponse{Count: len(findings), Findings: findings})
}

func (s *Server) handleSelfHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.deps.Stability.CheckSelfHealth(r.Context()))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctx := r.Context()
		s.logger.ErrorContext(ctx, "failed to encode response",
			"reason", err,
			"path", r.URL.Path,
			"traceID", middleware.GetReqID(ctx),
		)
	}
}
