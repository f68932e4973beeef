// Package summons orchestrates the section-by-section summons workflow: guarded section
// commands, asynchronous generation dispatch and versioned assembly.
package summons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
	"rechtstreeks/internal/render"
	"rechtstreeks/internal/storage"
)

type Store interface {
	GetCase(ctx context.Context, caseID string) (domain.Case, error)
	AdvanceCaseStatus(ctx context.Context, caseID string, to domain.CaseStatus) (bool, error)
	CreateSummons(ctx context.Context, summonsID, caseID string) error
	GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error)
	ListSections(ctx context.Context, summonsID string) ([]domain.Section, error)
	BeginGeneration(ctx context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, generationID string) (domain.Section, error)
	FailGeneration(ctx context.Context, summonsID string, key domain.SectionKey, generationID, reason string) (domain.Section, error)
	ApproveSection(ctx context.Context, summonsID string, key domain.SectionKey) (domain.Section, error)
	RejectSection(ctx context.Context, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error)
	ExpireGenerations(ctx context.Context, cutoff time.Time, reason string) ([]domain.Section, error)
	InsertAudit(ctx context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, status domain.SectionStatus, detail any) error
	NextAssemblyVersion(ctx context.Context, summonsID string) (int, error)
	SaveAssembly(ctx context.Context, rec domain.AssemblyRecord) error
	LatestAssembly(ctx context.Context, summonsID string) (domain.AssemblyRecord, error)
}

// Dispatcher hands a generation to the asynchronous generation backend.
type Dispatcher interface {
	StartGeneration(ctx context.Context, req domain.GenerationRequest) error
}

type Renderer interface {
	Render(ctx context.Context, doc render.Document) (render.Output, error)
}

type BlobStore interface {
	PutObject(ctx context.Context, objectKey, contentType string, content []byte) error
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

type Service struct {
	Store      Store
	Dispatcher Dispatcher
	Renderer   Renderer
	Blob       BlobStore
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
}

func NewService(store Store, dispatcher Dispatcher, renderer Renderer, blob BlobStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:      store,
		Dispatcher: dispatcher,
		Renderer:   renderer,
		Blob:       blob,
		Logger:     logger,
		Now:        time.Now,
		NewID:      uuid.NewString,
	}
}

// InitSummons creates a summons with one pending section per canonical key.
func (s *Service) InitSummons(ctx context.Context, caseID string) (domain.Summons, error) {
	if _, err := s.Store.GetCase(ctx, caseID); err != nil {
		return domain.Summons{}, err
	}
	summonsID := s.NewID()
	if err := s.Store.CreateSummons(ctx, summonsID, caseID); err != nil {
		return domain.Summons{}, fmt.Errorf("create summons: %w", err)
	}
	s.Logger.Info("summons initialised", zap.String("case_id", caseID), zap.String("summons_id", summonsID))
	return s.GetSummons(ctx, caseID, summonsID)
}

func (s *Service) GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error) {
	sm, err := s.Store.GetSummons(ctx, caseID, summonsID)
	if err != nil {
		return domain.Summons{}, err
	}
	sections, err := s.ListSections(ctx, summonsID)
	if err != nil {
		return domain.Summons{}, err
	}
	sm.Sections = sections
	sm.Status = domain.DeriveSummonsStatus(sections)

	latest, err := s.Store.LatestAssembly(ctx, summonsID)
	switch {
	case err == nil:
		sm.LatestAssembly = &latest
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Summons{}, err
	}
	return sm, nil
}

// ListSections returns all sections of a summons in canonical order.
func (s *Service) ListSections(ctx context.Context, summonsID string) ([]domain.Section, error) {
	sections, err := s.Store.ListSections(ctx, summonsID)
	if err != nil {
		return nil, err
	}
	return domain.SortSections(sections), nil
}

// GenerateSection moves the section to generating and dispatches the generation.
// reopen additionally allows regenerating an approved section.
func (s *Service) GenerateSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, reopen bool) (domain.Section, error) {
	if _, err := s.Store.GetSummons(ctx, caseID, summonsID); err != nil {
		return domain.Section{}, err
	}

	cmd := domain.CommandGenerate
	if reopen {
		cmd = domain.CommandReopen
	}
	generationID := s.NewID()
	sec, err := s.Store.BeginGeneration(ctx, summonsID, key, cmd, generationID)
	if err != nil {
		return sec, err
	}

	var feedback *string
	if sec.PriorStatus == domain.SectionRejected {
		feedback = sec.UserFeedback
	}
	s.audit(ctx, sec, cmd, map[string]any{"generation_id": generationID, "from": sec.PriorStatus})

	err = s.Dispatcher.StartGeneration(ctx, domain.GenerationRequest{
		SummonsID:    summonsID,
		CaseID:       caseID,
		SectionKey:   key,
		GenerationID: generationID,
		Feedback:     feedback,
	})
	if err != nil {
		s.Logger.Error("dispatch generation failed",
			zap.String("summons_id", summonsID),
			zap.String("section_key", string(key)),
			zap.Error(err),
		)
		// The revert must land even if the caller has gone away.
		revertCtx := context.WithoutCancel(ctx)
		reverted, failErr := s.Store.FailGeneration(revertCtx, summonsID, key, generationID, "dispatch failed: "+err.Error())
		if failErr != nil {
			s.Logger.Error("revert after dispatch failure", zap.String("summons_id", summonsID), zap.Error(failErr))
		} else {
			s.audit(revertCtx, reverted, domain.CommandFail, map[string]any{"generation_id": generationID, "reason": err.Error()})
		}
		return reverted, &domain.GenerationFailureError{SectionKey: key, Reason: "could not start generation", Err: err}
	}

	s.Logger.Info("section generation started",
		zap.String("summons_id", summonsID),
		zap.String("section_key", string(key)),
		zap.String("generation_id", generationID),
		zap.Bool("reopen", reopen),
	)
	return sec, nil
}

func (s *Service) ApproveSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey) (domain.Section, error) {
	if _, err := s.Store.GetSummons(ctx, caseID, summonsID); err != nil {
		return domain.Section{}, err
	}
	sec, err := s.Store.ApproveSection(ctx, summonsID, key)
	if err != nil {
		return sec, err
	}
	s.audit(ctx, sec, domain.CommandApprove, nil)
	return sec, nil
}

// RejectSection records feedback; empty feedback is accepted.
func (s *Service) RejectSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error) {
	if _, err := s.Store.GetSummons(ctx, caseID, summonsID); err != nil {
		return domain.Section{}, err
	}
	sec, err := s.Store.RejectSection(ctx, summonsID, key, feedback)
	if err != nil {
		return sec, err
	}
	s.audit(ctx, sec, domain.CommandReject, map[string]any{"feedback_length": len(feedback)})
	return sec, nil
}

// maxAssemblyAttempts bounds retries when a concurrent assembly takes the same version.
const maxAssemblyAttempts = 3

// Assemble builds a new assembly version from one snapshot of the sections. The commit fails
// with ErrConflict if any section changed after the snapshot was taken.
func (s *Service) Assemble(ctx context.Context, caseID, summonsID string) (domain.AssemblyRecord, error) {
	c, err := s.Store.GetCase(ctx, caseID)
	if err != nil {
		return domain.AssemblyRecord{}, err
	}
	if _, err := s.Store.GetSummons(ctx, caseID, summonsID); err != nil {
		return domain.AssemblyRecord{}, err
	}

	snapshot, err := s.ListSections(ctx, summonsID)
	if err != nil {
		return domain.AssemblyRecord{}, err
	}
	if outstanding := domain.OutstandingSections(snapshot); len(outstanding) > 0 {
		return domain.AssemblyRecord{}, &domain.IncompleteWorkflowError{SummonsID: summonsID, Outstanding: outstanding}
	}

	var rec domain.AssemblyRecord
	for attempt := 1; ; attempt++ {
		rec, err = s.assembleVersion(ctx, c, summonsID, snapshot)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrAssemblyVersionTaken) || attempt == maxAssemblyAttempts {
			return domain.AssemblyRecord{}, err
		}
		s.Logger.Info("assembly version taken, retrying",
			zap.String("summons_id", summonsID),
			zap.Int("version", rec.Version),
			zap.Int("attempt", attempt),
		)
	}

	advanced, err := s.Store.AdvanceCaseStatus(ctx, caseID, domain.CaseSummonsDrafted)
	if err != nil {
		s.Logger.Warn("advance case status after assembly", zap.String("case_id", caseID), zap.Error(err))
	}
	s.Logger.Info("summons assembled",
		zap.String("case_id", caseID),
		zap.String("summons_id", summonsID),
		zap.Int("version", rec.Version),
		zap.Bool("case_advanced", advanced),
	)
	return rec, nil
}

// assembleVersion renders the snapshot under the next free version and commits it. Outputs are
// uploaded under keys unique to this attempt so a losing attempt never overwrites a committed one.
func (s *Service) assembleVersion(ctx context.Context, c domain.Case, summonsID string, snapshot []domain.Section) (domain.AssemblyRecord, error) {
	version, err := s.Store.NextAssemblyVersion(ctx, summonsID)
	if err != nil {
		return domain.AssemblyRecord{}, err
	}
	sections := render.SectionsInOrder(snapshot)
	now := s.Now()
	out, err := s.Renderer.Render(ctx, render.Document{
		Case:        c,
		SummonsID:   summonsID,
		Version:     version,
		Sections:    sections,
		GeneratedAt: now,
	})
	if err != nil {
		return domain.AssemblyRecord{}, fmt.Errorf("render summons: %w", err)
	}

	attemptID := s.NewID()
	rec := domain.AssemblyRecord{
		SummonsID:            summonsID,
		Version:              version,
		Body:                 render.Body(sections),
		HTMLKey:              storage.AssemblyObjectKey(c.ID, summonsID, version, attemptID, "dagvaarding.html"),
		PrintableKey:         storage.AssemblyObjectKey(c.ID, summonsID, version, attemptID, out.PrintableFilename),
		PrintableContentType: out.PrintableContentType,
		SectionVersions:      make(map[domain.SectionKey]int64, len(snapshot)),
		CreatedAt:            now,
	}
	for _, sec := range snapshot {
		rec.SectionVersions[sec.Key] = sec.Version
	}

	if err := s.Blob.PutObject(ctx, rec.HTMLKey, render.ContentTypeHTML, out.HTML); err != nil {
		return rec, fmt.Errorf("upload html: %w", err)
	}
	if err := s.Blob.PutObject(ctx, rec.PrintableKey, out.PrintableContentType, out.Printable); err != nil {
		return rec, fmt.Errorf("upload printable: %w", err)
	}
	if err := s.Store.SaveAssembly(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Service) LatestAssembly(ctx context.Context, caseID, summonsID string) (domain.AssemblyRecord, error) {
	if _, err := s.Store.GetSummons(ctx, caseID, summonsID); err != nil {
		return domain.AssemblyRecord{}, err
	}
	return s.Store.LatestAssembly(ctx, summonsID)
}

type OutputKind string

const (
	OutputHTML      OutputKind = "html"
	OutputPrintable OutputKind = "printable"
)

// OpenAssemblyOutput returns the stored bytes and content type of the latest assembly.
func (s *Service) OpenAssemblyOutput(ctx context.Context, caseID, summonsID string, kind OutputKind) ([]byte, string, error) {
	rec, err := s.LatestAssembly(ctx, caseID, summonsID)
	if err != nil {
		return nil, "", err
	}
	key, contentType := rec.PrintableKey, rec.PrintableContentType
	if kind == OutputHTML {
		key, contentType = rec.HTMLKey, render.ContentTypeHTML
	}
	content, err := s.Blob.GetObject(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("read %s output: %w", kind, err)
	}
	return content, contentType, nil
}

func (s *Service) audit(ctx context.Context, sec domain.Section, cmd domain.SectionCommand, detail any) {
	if err := s.Store.InsertAudit(ctx, sec.SummonsID, sec.Key, cmd, sec.Status, detail); err != nil {
		s.Logger.Warn("audit insert failed",
			zap.String("summons_id", sec.SummonsID),
			zap.String("section_key", string(sec.Key)),
			zap.Error(err),
		)
	}
}
