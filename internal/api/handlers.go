package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rechtstreeks/internal/config"
	"rechtstreeks/internal/domain"
	"rechtstreeks/internal/summons"
)

type CaseStore interface {
	CreateCase(ctx context.Context, c domain.Case) error
	GetCase(ctx context.Context, caseID string) (domain.Case, error)
	ListCases(ctx context.Context, ownerID string) ([]domain.Case, error)
	AdvanceCaseStatus(ctx context.Context, caseID string, to domain.CaseStatus) (bool, error)
	SetCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus) error
	CreateReceivedDocument(ctx context.Context, rec domain.DocumentRecord) error
	SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error
	Ping(ctx context.Context) error
}

type SummonsService interface {
	InitSummons(ctx context.Context, caseID string) (domain.Summons, error)
	GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error)
	GenerateSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, reopen bool) (domain.Section, error)
	ApproveSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey) (domain.Section, error)
	RejectSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error)
	Assemble(ctx context.Context, caseID, summonsID string) (domain.AssemblyRecord, error)
	OpenAssemblyOutput(ctx context.Context, caseID, summonsID string, kind summons.OutputKind) ([]byte, string, error)
}

type EventSource interface {
	Subscribe(summonsID string) (<-chan domain.SectionEvent, func())
}

type uploadBlobStore interface {
	PutDocument(ctx context.Context, caseID, documentID, filename, contentType string, content []byte) (string, error)
}

type Handler struct {
	cfg     config.Config
	store   CaseStore
	summons SummonsService
	blob    uploadBlobStore
	events  EventSource
	logger  *zap.Logger
	now     func() time.Time

	heartbeat time.Duration
}

func NewHandler(cfg config.Config, store CaseStore, svc SummonsService, blob uploadBlobStore, events EventSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:       cfg,
		store:     store,
		summons:   svc,
		blob:      blob,
		events:    events,
		logger:    logger,
		now:       time.Now,
		heartbeat: 15 * time.Second,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
