package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rechtstreeks/internal/domain"
	"rechtstreeks/internal/summons"
)

type sectionsResponse struct {
	SummonsID string               `json:"summons_id"`
	Status    domain.SummonsStatus `json:"status"`
	Sections  []domain.Section     `json:"sections"`
}

type rejectRequest struct {
	Feedback string `json:"feedback"`
}

func (h *Handler) InitSummons(w http.ResponseWriter, r *http.Request) {
	sm, err := h.summons.InitSummons(r.Context(), caseFrom(r.Context()).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sm)
}

func (h *Handler) GetSummons(w http.ResponseWriter, r *http.Request) {
	sm, err := h.summons.GetSummons(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sm)
}

func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	sm, err := h.summons.GetSummons(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sectionsResponse{SummonsID: sm.ID, Status: sm.Status, Sections: sm.Sections})
}

func (h *Handler) GenerateSection(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sectionKey(w, r)
	if !ok {
		return
	}
	reopen := false
	if v := r.URL.Query().Get("reopen"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, "reopen must be a boolean")
			return
		}
		reopen = parsed
	}

	sec, err := h.summons.GenerateSection(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"), key, reopen)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sec)
}

func (h *Handler) ApproveSection(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sectionKey(w, r)
	if !ok {
		return
	}
	sec, err := h.summons.ApproveSection(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (h *Handler) RejectSection(w http.ResponseWriter, r *http.Request) {
	key, ok := h.sectionKey(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid json")
		return
	}
	feedback, ok := domain.NormalizeFeedback(req.Feedback)
	if !ok {
		writeBadRequest(w, fmt.Sprintf("feedback must be valid text of at most %d characters", domain.MaxFeedbackLength))
		return
	}

	sec, err := h.summons.RejectSection(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"), key, feedback)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (h *Handler) Assemble(w http.ResponseWriter, r *http.Request) {
	rec, err := h.summons.Assemble(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) DownloadPrintable(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, summons.OutputPrintable)
}

func (h *Handler) DownloadHTML(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, summons.OutputHTML)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request, kind summons.OutputKind) {
	content, contentType, err := h.summons.OpenAssemblyOutput(r.Context(), caseFrom(r.Context()).ID, chi.URLParam(r, "summonsId"), kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *Handler) sectionKey(w http.ResponseWriter, r *http.Request) (domain.SectionKey, bool) {
	key, err := domain.ParseSectionKey(chi.URLParam(r, "sectionKey"))
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	return key, true
}
