package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

type errorResponse struct {
	Error         string               `json:"error"`
	Message       string               `json:"message"`
	SectionKey    domain.SectionKey    `json:"section_key,omitempty"`
	CurrentStatus domain.SectionStatus `json:"current_status,omitempty"`
	Outstanding   []domain.SectionKey  `json:"outstanding,omitempty"`
	FailedRules   []string             `json:"failed_rules,omitempty"`
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

// writeError maps domain errors onto HTTP status codes and the JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid    *domain.InvalidTransitionError
		incomplete *domain.IncompleteWorkflowError
		genFailure *domain.GenerationFailureError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:         "invalid_transition",
			Message:       err.Error(),
			SectionKey:    invalid.SectionKey,
			CurrentStatus: invalid.Current,
		})
	case errors.As(err, &incomplete):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:       "incomplete_workflow",
			Message:     err.Error(),
			Outstanding: incomplete.Outstanding,
		})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflict", Message: err.Error()})
	case errors.As(err, &genFailure):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:      "generation_failure",
			Message:    genFailure.Error(),
			SectionKey: genFailure.SectionKey,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
	}
}
