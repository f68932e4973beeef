package summons

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rechtstreeks/internal/domain"
)

// memStore mirrors the conditional-update semantics of the Postgres store in memory.
type memStore struct {
	mu         sync.Mutex
	now        time.Time
	cases      map[string]domain.Case
	summonses  map[string]domain.Summons
	sections   map[string]map[domain.SectionKey]domain.Section
	assemblies map[string][]domain.AssemblyRecord
	audit      []domain.SectionCommand

	// beforeSave runs inside SaveAssembly before the fencing check.
	beforeSave func()
}

func newMemStore() *memStore {
	return &memStore{
		now:        time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC),
		cases:      make(map[string]domain.Case),
		summonses:  make(map[string]domain.Summons),
		sections:   make(map[string]map[domain.SectionKey]domain.Section),
		assemblies: make(map[string][]domain.AssemblyRecord),
	}
}

func (m *memStore) addCase(c domain.Case) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Status == "" {
		c.Status = domain.CaseServed
	}
	m.cases[c.ID] = c
}

func (m *memStore) caseStatus(caseID string) domain.CaseStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cases[caseID].Status
}

func (m *memStore) GetCase(_ context.Context, caseID string) (domain.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return domain.Case{}, domain.NotFoundf("case %s", caseID)
	}
	return c, nil
}

func (m *memStore) AdvanceCaseStatus(_ context.Context, caseID string, to domain.CaseStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return false, domain.NotFoundf("case %s", caseID)
	}
	if !domain.IsForwardMove(c.Status, to) {
		return false, nil
	}
	c.Status = to
	m.cases[caseID] = c
	return true, nil
}

func (m *memStore) CreateSummons(_ context.Context, summonsID, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.summonses[summonsID]; ok {
		return fmt.Errorf("summons %s exists", summonsID)
	}
	m.summonses[summonsID] = domain.Summons{ID: summonsID, CaseID: caseID, CreatedAt: m.now}
	secs := make(map[domain.SectionKey]domain.Section, len(domain.CanonicalSectionKeys))
	for _, key := range domain.CanonicalSectionKeys {
		secs[key] = domain.Section{SummonsID: summonsID, Key: key, Status: domain.SectionPending, PriorStatus: domain.SectionPending, Version: 1}
	}
	m.sections[summonsID] = secs
	return nil
}

func (m *memStore) GetSummons(_ context.Context, caseID, summonsID string) (domain.Summons, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.summonses[summonsID]
	if !ok || sm.CaseID != caseID {
		return domain.Summons{}, domain.NotFoundf("summons %s", summonsID)
	}
	return sm, nil
}

func (m *memStore) ListSections(_ context.Context, summonsID string) ([]domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	secs, ok := m.sections[summonsID]
	if !ok {
		return nil, domain.NotFoundf("summons %s", summonsID)
	}
	// Map iteration order stands in for arbitrary row order.
	out := make([]domain.Section, 0, len(secs))
	for _, s := range secs {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) GetSection(_ context.Context, summonsID string, key domain.SectionKey) (domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sectionLocked(summonsID, key)
}

func (m *memStore) sectionLocked(summonsID string, key domain.SectionKey) (domain.Section, error) {
	sec, ok := m.sections[summonsID][key]
	if !ok {
		return domain.Section{}, domain.NotFoundf("section %s of summons %s", key, summonsID)
	}
	return sec, nil
}

func (m *memStore) update(summonsID string, key domain.SectionKey, cmd domain.SectionCommand, generationID string, apply func(*domain.Section)) (domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sec, err := m.sectionLocked(summonsID, key)
	if err != nil {
		return domain.Section{}, err
	}
	if !domain.CanTransition(sec.Status, cmd) || (generationID != "" && sec.GenerationID != generationID) {
		return sec, &domain.InvalidTransitionError{SectionKey: key, Command: cmd, Current: sec.Status}
	}
	apply(&sec)
	sec.Version++
	sec.UpdatedAt = m.now
	m.sections[summonsID][key] = sec
	return sec, nil
}

func (m *memStore) BeginGeneration(_ context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, generationID string) (domain.Section, error) {
	return m.update(summonsID, key, cmd, "", func(s *domain.Section) {
		s.PriorStatus = s.Status
		s.Status = domain.SectionGenerating
		s.GenerationID = generationID
		started := m.now
		s.GenerationStartedAt = &started
		s.LastError = nil
	})
}

func (m *memStore) CompleteGeneration(_ context.Context, summonsID string, key domain.SectionKey, generationID, text string) (domain.Section, error) {
	return m.update(summonsID, key, domain.CommandComplete, generationID, func(s *domain.Section) {
		s.Status = domain.SectionReadyForReview
		s.GeneratedText = &text
		s.GenerationStartedAt = nil
	})
}

func (m *memStore) FailGeneration(_ context.Context, summonsID string, key domain.SectionKey, generationID, reason string) (domain.Section, error) {
	return m.update(summonsID, key, domain.CommandFail, generationID, func(s *domain.Section) {
		next, _ := domain.Transition(key, s.Status, domain.CommandFail, s.PriorStatus)
		s.Status = next
		s.LastError = &reason
		s.GenerationStartedAt = nil
	})
}

func (m *memStore) ApproveSection(_ context.Context, summonsID string, key domain.SectionKey) (domain.Section, error) {
	return m.update(summonsID, key, domain.CommandApprove, "", func(s *domain.Section) {
		s.Status = domain.SectionApproved
	})
}

func (m *memStore) RejectSection(_ context.Context, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error) {
	return m.update(summonsID, key, domain.CommandReject, "", func(s *domain.Section) {
		s.Status = domain.SectionRejected
		s.UserFeedback = &feedback
	})
}

func (m *memStore) ExpireGenerations(_ context.Context, cutoff time.Time, reason string) ([]domain.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := make([]domain.Section, 0)
	for summonsID, secs := range m.sections {
		for key, s := range secs {
			if s.Status != domain.SectionGenerating || s.GenerationStartedAt == nil || !s.GenerationStartedAt.Before(cutoff) {
				continue
			}
			next, _ := domain.Transition(key, s.Status, domain.CommandFail, s.PriorStatus)
			s.Status = next
			r := reason
			s.LastError = &r
			s.GenerationStartedAt = nil
			s.Version++
			m.sections[summonsID][key] = s
			expired = append(expired, s)
		}
	}
	return expired, nil
}

func (m *memStore) InsertAudit(_ context.Context, _ string, _ domain.SectionKey, cmd domain.SectionCommand, _ domain.SectionStatus, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, cmd)
	return nil
}

func (m *memStore) NextAssemblyVersion(_ context.Context, summonsID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assemblies[summonsID]) + 1, nil
}

func (m *memStore) SaveAssembly(_ context.Context, rec domain.AssemblyRecord) error {
	if m.beforeSave != nil {
		m.beforeSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current := make([]domain.Section, 0)
	for _, s := range m.sections[rec.SummonsID] {
		current = append(current, s)
	}
	if outstanding := domain.OutstandingSections(current); len(outstanding) > 0 {
		return &domain.IncompleteWorkflowError{SummonsID: rec.SummonsID, Outstanding: outstanding}
	}
	for _, s := range current {
		if rec.SectionVersions[s.Key] != s.Version {
			return fmt.Errorf("section %s changed during assembly: %w", s.Key, domain.ErrConflict)
		}
	}
	if rec.Version != len(m.assemblies[rec.SummonsID])+1 {
		return fmt.Errorf("assembly version %d: %w", rec.Version, domain.ErrAssemblyVersionTaken)
	}
	m.assemblies[rec.SummonsID] = append(m.assemblies[rec.SummonsID], rec)
	return nil
}

func (m *memStore) LatestAssembly(_ context.Context, summonsID string) (domain.AssemblyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.assemblies[summonsID]
	if len(list) == 0 {
		return domain.AssemblyRecord{}, domain.NotFoundf("assembly for summons %s", summonsID)
	}
	return list[len(list)-1], nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []domain.GenerationRequest
	err      error
}

func (d *recordingDispatcher) StartGeneration(_ context.Context, req domain.GenerationRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

func (d *recordingDispatcher) last() domain.GenerationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (b *memBlob) PutObject(_ context.Context, key, contentType string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), content...)
	b.types[key] = contentType
	return nil
}

func (b *memBlob) GetObject(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.objects[key]
	if !ok {
		return nil, domain.NotFoundf("object %s", key)
	}
	return content, nil
}
