package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

type statusRequest struct {
	Status string `json:"status"`
	// Force allows moving the case backwards, e.g. to correct a mistake.
	Force bool `json:"force,omitempty"`
}

func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	var in domain.CaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if failed := domain.ValidateCaseInput(in); len(failed) > 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid case", FailedRules: failed})
		return
	}

	now := h.now().UTC()
	c := domain.Case{
		ID:               uuid.NewString(),
		OwnerID:          userFrom(r.Context()),
		Title:            strings.TrimSpace(in.Title),
		ClaimantName:     strings.TrimSpace(in.ClaimantName),
		DefendantName:    strings.TrimSpace(in.DefendantName),
		ClaimAmountCents: in.ClaimAmountCents,
		Description:      strings.TrimSpace(in.Description),
		Status:           domain.CaseNewIntake,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.store.CreateCase(r.Context(), c); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.ViewOf(c))
}

func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cases, err := h.store.ListCases(ctx, userFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]domain.CaseView, 0, len(cases))
	for _, c := range cases {
		views = append(views, domain.ViewOf(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": views})
}

func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.ViewOf(caseFrom(r.Context())))
}

func (h *Handler) UpdateCaseStatus(w http.ResponseWriter, r *http.Request) {
	c := caseFrom(r.Context())
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	status := domain.CaseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !domain.KnownCaseStatus(status) {
		writeBadRequest(w, "unknown case status")
		return
	}

	if req.Force {
		if err := h.store.SetCaseStatus(r.Context(), c.ID, status); err != nil {
			h.writeError(w, r, err)
			return
		}
	} else if _, err := h.store.AdvanceCaseStatus(r.Context(), c.ID, status); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.store.GetCase(r.Context(), c.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ViewOf(updated))
}

// UploadDocument stores the file in object storage. The bucket notification completes the
// document and advances the case, so this handler returns before that happens.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	c := caseFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.AllowedUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeBadRequest(w, "invalid multipart payload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file form field is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeBadRequest(w, "failed to read file")
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeBadRequest(w, "file exceeds size limit")
		return
	}
	contentType, ok := detectUpload(body)
	if !ok {
		writeBadRequest(w, "unsupported file type")
		return
	}

	filename := filepath.Base(strings.TrimSpace(header.Filename))
	if filename == "." || filename == "/" || filename == "" {
		filename = "document"
	}
	rec := domain.DocumentRecord{
		ID:          uuid.NewString(),
		CaseID:      c.ID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		Status:      domain.DocumentReceived,
	}
	if err := h.store.CreateReceivedDocument(ctx, rec); err != nil {
		h.writeError(w, r, err)
		return
	}

	objectKey, err := h.blob.PutDocument(ctx, c.ID, rec.ID, filename, contentType, body)
	if err != nil {
		h.logger.Error("document upload failed", zap.String("case_id", c.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "failed to upload file"})
		return
	}
	if err := h.store.SetDocumentObjectKey(ctx, rec.ID, objectKey); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec.ObjectKey = objectKey

	writeJSON(w, http.StatusAccepted, rec)
}
