package api

import (
	"context"
	"fmt"
	"sync"

	"rechtstreeks/internal/domain"
	"rechtstreeks/internal/summons"
)

type fakeCaseStore struct {
	mu        sync.Mutex
	cases     map[string]domain.Case
	documents map[string]domain.DocumentRecord
	pingErr   error
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{cases: map[string]domain.Case{}, documents: map[string]domain.DocumentRecord{}}
}

func (s *fakeCaseStore) CreateCase(ctx context.Context, c domain.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
	return nil
}

func (s *fakeCaseStore) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return domain.Case{}, domain.NotFoundf("case %s", caseID)
	}
	return c, nil
}

func (s *fakeCaseStore) ListCases(ctx context.Context, ownerID string) ([]domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Case, 0)
	for _, c := range s.cases {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCaseStore) AdvanceCaseStatus(ctx context.Context, caseID string, to domain.CaseStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return false, domain.NotFoundf("case %s", caseID)
	}
	if !domain.IsForwardMove(c.Status, to) {
		return false, nil
	}
	c.Status = to
	s.cases[caseID] = c
	return true, nil
}

func (s *fakeCaseStore) SetCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return domain.NotFoundf("case %s", caseID)
	}
	c.Status = status
	s.cases[caseID] = c
	return nil
}

func (s *fakeCaseStore) CreateReceivedDocument(ctx context.Context, rec domain.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[rec.ID] = rec
	return nil
}

func (s *fakeCaseStore) SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.documents[documentID]
	if !ok {
		return domain.NotFoundf("document %s", documentID)
	}
	rec.ObjectKey = objectKey
	s.documents[documentID] = rec
	return nil
}

func (s *fakeCaseStore) Ping(ctx context.Context) error {
	return s.pingErr
}

type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBlob) PutDocument(ctx context.Context, caseID, documentID, filename, contentType string, content []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	key := fmt.Sprintf("%s/documents/%s/%s", caseID, documentID, filename)
	b.objects[key] = content
	return key, nil
}

// fakeSummons answers with a fixed summons and lets tests inject command errors.
type fakeSummons struct {
	mu       sync.Mutex
	summons  domain.Summons
	err      error
	reopened []bool
	feedback []string
	output   []byte
}

func (f *fakeSummons) InitSummons(ctx context.Context, caseID string) (domain.Summons, error) {
	return f.summons, f.err
}

func (f *fakeSummons) GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error) {
	if f.summons.CaseID != caseID || f.summons.ID != summonsID {
		return domain.Summons{}, domain.NotFoundf("summons %s", summonsID)
	}
	return f.summons, nil
}

func (f *fakeSummons) section(key domain.SectionKey, status domain.SectionStatus) domain.Section {
	return domain.Section{SummonsID: f.summons.ID, Key: key, Status: status, Version: 2}
}

func (f *fakeSummons) GenerateSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, reopen bool) (domain.Section, error) {
	f.mu.Lock()
	f.reopened = append(f.reopened, reopen)
	f.mu.Unlock()
	if f.err != nil {
		return domain.Section{}, f.err
	}
	return f.section(key, domain.SectionGenerating), nil
}

func (f *fakeSummons) ApproveSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey) (domain.Section, error) {
	if f.err != nil {
		return domain.Section{}, f.err
	}
	return f.section(key, domain.SectionApproved), nil
}

func (f *fakeSummons) RejectSection(ctx context.Context, caseID, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error) {
	f.mu.Lock()
	f.feedback = append(f.feedback, feedback)
	f.mu.Unlock()
	if f.err != nil {
		return domain.Section{}, f.err
	}
	return f.section(key, domain.SectionRejected), nil
}

func (f *fakeSummons) Assemble(ctx context.Context, caseID, summonsID string) (domain.AssemblyRecord, error) {
	if f.err != nil {
		return domain.AssemblyRecord{}, f.err
	}
	return domain.AssemblyRecord{SummonsID: summonsID, Version: 1}, nil
}

func (f *fakeSummons) OpenAssemblyOutput(ctx context.Context, caseID, summonsID string, kind summons.OutputKind) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if kind == summons.OutputHTML {
		return []byte("<html></html>"), "text/html; charset=utf-8", nil
	}
	return f.output, "application/pdf", nil
}
