package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rechtstreeks/internal/domain"
)

// SectionEventsChannel is the NOTIFY channel carrying domain.SectionEvent payloads.
const SectionEventsChannel = "section_events"

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const caseColumns = `
	c.id, c.owner_id, c.title, c.claimant_name, c.defendant_name, c.claim_amount_cents,
	c.description, c.status, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM documents d WHERE d.case_id = c.id),
	(SELECT COUNT(*) FROM letters l WHERE l.case_id = c.id),
	(SELECT COUNT(*) FROM summonses m WHERE m.case_id = c.id),
	EXISTS (SELECT 1 FROM analyses a WHERE a.case_id = c.id)`

func scanCase(row interface{ Scan(...any) error }) (domain.Case, error) {
	var c domain.Case
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Title,
		&c.ClaimantName,
		&c.DefendantName,
		&c.ClaimAmountCents,
		&c.Description,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DocumentCount,
		&c.LetterCount,
		&c.SummonsCount,
		&c.HasAnalysis,
	)
	return c, err
}

func (s *PostgresStore) CreateCase(ctx context.Context, c domain.Case) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (id, owner_id, title, claimant_name, defendant_name, claim_amount_cents, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.OwnerID, c.Title, c.ClaimantName, c.DefendantName, c.ClaimAmountCents, c.Description, c.Status)
	return err
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (domain.Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases c WHERE c.id = $1`, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Case{}, domain.NotFoundf("case %s", caseID)
	}
	return c, err
}

func (s *PostgresStore) ListCases(ctx context.Context, ownerID string) ([]domain.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+caseColumns+`
		FROM cases c
		WHERE c.owner_id = $1
		ORDER BY c.created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// AdvanceCaseStatus moves the case forward on the timeline and never backwards.
// It reports whether the status changed.
func (s *PostgresStore) AdvanceCaseStatus(ctx context.Context, caseID string, to domain.CaseStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.CaseStatus
	if err := tx.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.NotFoundf("case %s", caseID)
		}
		return false, err
	}
	if !domain.IsForwardMove(current, to) {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE cases SET status = $2, updated_at = NOW() WHERE id = $1`, caseID, to); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// SetCaseStatus overwrites the status; used for corrections by the case owner.
func (s *PostgresStore) SetCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET status = $2, updated_at = NOW() WHERE id = $1`, caseID, status)
	if err != nil {
		return err
	}
	return requireAffected(res, "case "+caseID)
}

func (s *PostgresStore) CreateReceivedDocument(ctx context.Context, rec domain.DocumentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, case_id, filename, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.CaseID, rec.Filename, rec.ContentType, rec.SizeBytes, domain.DocumentReceived)
	return err
}

func (s *PostgresStore) SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET object_key = $2, updated_at = NOW()
		WHERE id = $1
	`, documentID, objectKey)
	return err
}

// MarkDocumentStored flags an uploaded document as durable and returns its case.
func (s *PostgresStore) MarkDocumentStored(ctx context.Context, documentID, objectKey string) (string, error) {
	var caseID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE documents
		SET status = $2,
		    object_key = COALESCE(NULLIF(object_key, ''), $3),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING case_id
	`, documentID, domain.DocumentStored, objectKey).Scan(&caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFoundf("document %s", documentID)
	}
	return caseID, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context, caseID string) ([]domain.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, case_id, filename, COALESCE(object_key, ''), content_type, size_bytes, status, created_at
		FROM documents
		WHERE case_id = $1
		ORDER BY created_at ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.DocumentRecord, 0)
	for rows.Next() {
		var rec domain.DocumentRecord
		if err := rows.Scan(&rec.ID, &rec.CaseID, &rec.Filename, &rec.ObjectKey, &rec.ContentType, &rec.SizeBytes, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// CreateSummons inserts the summons with one pending placeholder per canonical section.
func (s *PostgresStore) CreateSummons(ctx context.Context, summonsID, caseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO summonses (id, case_id) VALUES ($1, $2)`, summonsID, caseID); err != nil {
		return err
	}
	for i, key := range domain.CanonicalSectionKeys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO summons_sections (summons_id, section_key, section_order, status, prior_status)
			VALUES ($1, $2, $3, $4, $4)
		`, summonsID, key, i, domain.SectionPending); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetSummons(ctx context.Context, caseID, summonsID string) (domain.Summons, error) {
	var sm domain.Summons
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, created_at FROM summonses WHERE id = $1 AND case_id = $2
	`, summonsID, caseID).Scan(&sm.ID, &sm.CaseID, &sm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Summons{}, domain.NotFoundf("summons %s", summonsID)
	}
	if err != nil {
		return domain.Summons{}, err
	}
	return sm, nil
}

const sectionColumns = `
	summons_id, section_key, status, generated_text, user_feedback, prior_status,
	COALESCE(generation_id, ''), generation_started_at, last_error, version, updated_at`

func scanSection(row interface{ Scan(...any) error }) (domain.Section, error) {
	var sec domain.Section
	var status, prior string
	var generated, feedback, lastError sql.NullString
	var startedAt sql.NullTime
	if err := row.Scan(
		&sec.SummonsID,
		&sec.Key,
		&status,
		&generated,
		&feedback,
		&prior,
		&sec.GenerationID,
		&startedAt,
		&lastError,
		&sec.Version,
		&sec.UpdatedAt,
	); err != nil {
		return domain.Section{}, err
	}
	var ok bool
	if sec.Status, ok = domain.ParseSectionStatus(status); !ok {
		return domain.Section{}, fmt.Errorf("section %s has unknown status %q", sec.Key, status)
	}
	if sec.PriorStatus, ok = domain.ParseSectionStatus(prior); !ok {
		sec.PriorStatus = domain.SectionPending
	}
	if generated.Valid {
		sec.GeneratedText = &generated.String
	}
	if feedback.Valid {
		sec.UserFeedback = &feedback.String
	}
	if lastError.Valid {
		sec.LastError = &lastError.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		sec.GenerationStartedAt = &t
	}
	return sec, nil
}

// ListSections returns one consistent snapshot of all sections in canonical order.
func (s *PostgresStore) ListSections(ctx context.Context, summonsID string) ([]domain.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sectionColumns+`
		FROM summons_sections
		WHERE summons_id = $1
		ORDER BY section_order ASC
	`, summonsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Section, 0, len(domain.CanonicalSectionKeys))
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.NotFoundf("summons %s", summonsID)
	}
	return items, nil
}

func (s *PostgresStore) GetSection(ctx context.Context, summonsID string, key domain.SectionKey) (domain.Section, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sectionColumns+`
		FROM summons_sections
		WHERE summons_id = $1 AND section_key = $2
	`, summonsID, key)
	sec, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Section{}, domain.NotFoundf("section %s of summons %s", key, summonsID)
	}
	return sec, err
}

// BeginGeneration flips the section to generating if, and only if, its current status is one the
// command may be issued from. The conditional update is the at-most-one-generation guard.
func (s *PostgresStore) BeginGeneration(ctx context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, generationID string) (domain.Section, error) {
	return s.transition(ctx, cmd, summonsID, key, `
		UPDATE summons_sections
		SET prior_status = status,
		    status = $4,
		    generation_id = $5,
		    generation_started_at = NOW(),
		    last_error = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE summons_id = $1 AND section_key = $2 AND status = ANY($3)
		RETURNING `+sectionColumns,
		summonsID, key, commandGuard(cmd), domain.SectionGenerating, generationID)
}

// CompleteGeneration stores generated text; only the matching in-flight generation may complete.
func (s *PostgresStore) CompleteGeneration(ctx context.Context, summonsID string, key domain.SectionKey, generationID, text string) (domain.Section, error) {
	return s.transition(ctx, domain.CommandComplete, summonsID, key, `
		UPDATE summons_sections
		SET status = $4,
		    generated_text = $5,
		    generation_started_at = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE summons_id = $1 AND section_key = $2 AND status = ANY($3) AND generation_id = $6
		RETURNING `+sectionColumns,
		summonsID, key, commandGuard(domain.CommandComplete), domain.SectionReadyForReview, text, generationID)
}

// FailGeneration reverts the section to its prior stable status and records the reason.
func (s *PostgresStore) FailGeneration(ctx context.Context, summonsID string, key domain.SectionKey, generationID, reason string) (domain.Section, error) {
	return s.transition(ctx, domain.CommandFail, summonsID, key, `
		UPDATE summons_sections
		SET status = CASE WHEN prior_status = $4 THEN $5 ELSE prior_status END,
		    last_error = $6,
		    generation_started_at = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE summons_id = $1 AND section_key = $2 AND status = ANY($3) AND generation_id = $7
		RETURNING `+sectionColumns,
		summonsID, key, commandGuard(domain.CommandFail), domain.SectionGenerating, domain.SectionPending, reason, generationID)
}

func (s *PostgresStore) ApproveSection(ctx context.Context, summonsID string, key domain.SectionKey) (domain.Section, error) {
	return s.transition(ctx, domain.CommandApprove, summonsID, key, `
		UPDATE summons_sections
		SET status = $4, version = version + 1, updated_at = NOW()
		WHERE summons_id = $1 AND section_key = $2 AND status = ANY($3)
		RETURNING `+sectionColumns,
		summonsID, key, commandGuard(domain.CommandApprove), domain.SectionApproved)
}

func (s *PostgresStore) RejectSection(ctx context.Context, summonsID string, key domain.SectionKey, feedback string) (domain.Section, error) {
	return s.transition(ctx, domain.CommandReject, summonsID, key, `
		UPDATE summons_sections
		SET status = $4, user_feedback = $5, version = version + 1, updated_at = NOW()
		WHERE summons_id = $1 AND section_key = $2 AND status = ANY($3)
		RETURNING `+sectionColumns,
		summonsID, key, commandGuard(domain.CommandReject), domain.SectionRejected, feedback)
}

// ExpireGenerations fails every generation that started before cutoff.
func (s *PostgresStore) ExpireGenerations(ctx context.Context, cutoff time.Time, reason string) ([]domain.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE summons_sections
		SET status = CASE WHEN prior_status = $1 THEN $4 ELSE prior_status END,
		    last_error = $3,
		    generation_started_at = NULL,
		    version = version + 1,
		    updated_at = NOW()
		WHERE status = ANY($5) AND generation_started_at < $2
		RETURNING `+sectionColumns,
		domain.SectionGenerating, cutoff, reason, domain.SectionPending, commandGuard(domain.CommandFail))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := make([]domain.Section, 0)
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, sec := range expired {
		s.notify(ctx, sec)
	}
	return expired, nil
}

func (s *PostgresStore) transition(ctx context.Context, cmd domain.SectionCommand, summonsID string, key domain.SectionKey, query string, args ...any) (domain.Section, error) {
	sec, err := scanSection(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		s.notify(ctx, sec)
		return sec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Section{}, err
	}

	current, getErr := s.GetSection(ctx, summonsID, key)
	if getErr != nil {
		return domain.Section{}, getErr
	}
	return current, &domain.InvalidTransitionError{SectionKey: key, Command: cmd, Current: current.Status}
}

// notify is best effort: listeners re-read state, so a dropped event only delays an update.
func (s *PostgresStore) notify(ctx context.Context, sec domain.Section) {
	payload, err := json.Marshal(sec.Event())
	if err != nil {
		return
	}
	_, _ = s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, SectionEventsChannel, string(payload))
}

func (s *PostgresStore) InsertAudit(ctx context.Context, summonsID string, key domain.SectionKey, cmd domain.SectionCommand, status domain.SectionStatus, detail any) error {
	var payload []byte
	switch v := detail.(type) {
	case nil:
		payload = []byte("{}")
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO section_audit (summons_id, section_key, command, status, detail)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, summonsID, key, cmd, status, string(payload))
	return err
}

func (s *PostgresStore) NextAssemblyVersion(ctx context.Context, summonsID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM summons_assemblies WHERE summons_id = $1
	`, summonsID).Scan(&next)
	return next, err
}

// SaveAssembly commits an assembly only if the sections still match the snapshot it was built from.
func (s *PostgresStore) SaveAssembly(ctx context.Context, rec domain.AssemblyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT section_key, status, version
		FROM summons_sections
		WHERE summons_id = $1
		ORDER BY section_order ASC
		FOR UPDATE
	`, rec.SummonsID)
	if err != nil {
		return err
	}
	current := make([]domain.Section, 0, len(domain.CanonicalSectionKeys))
	for rows.Next() {
		sec := domain.Section{SummonsID: rec.SummonsID}
		var status string
		if err := rows.Scan(&sec.Key, &status, &sec.Version); err != nil {
			rows.Close()
			return err
		}
		sec.Status, _ = domain.ParseSectionStatus(status)
		current = append(current, sec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if outstanding := domain.OutstandingSections(current); len(outstanding) > 0 {
		return &domain.IncompleteWorkflowError{SummonsID: rec.SummonsID, Outstanding: outstanding}
	}
	for _, sec := range current {
		if rec.SectionVersions[sec.Key] != sec.Version {
			return fmt.Errorf("section %s changed during assembly: %w", sec.Key, domain.ErrConflict)
		}
	}

	versions, err := json.Marshal(rec.SectionVersions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO summons_assemblies (summons_id, version, body, html_key, printable_key, printable_content_type, section_versions)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`, rec.SummonsID, rec.Version, rec.Body, rec.HTMLKey, rec.PrintableKey, rec.PrintableContentType, string(versions))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("assembly version %d: %w", rec.Version, domain.ErrAssemblyVersionTaken)
		}
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) LatestAssembly(ctx context.Context, summonsID string) (domain.AssemblyRecord, error) {
	var rec domain.AssemblyRecord
	var versions []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT summons_id, version, body, html_key, printable_key, printable_content_type, section_versions, created_at
		FROM summons_assemblies
		WHERE summons_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, summonsID).Scan(&rec.SummonsID, &rec.Version, &rec.Body, &rec.HTMLKey, &rec.PrintableKey, &rec.PrintableContentType, &versions, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AssemblyRecord{}, domain.NotFoundf("assembly for summons %s", summonsID)
	}
	if err != nil {
		return domain.AssemblyRecord{}, err
	}
	if err := json.Unmarshal(versions, &rec.SectionVersions); err != nil {
		return domain.AssemblyRecord{}, fmt.Errorf("decode section versions: %w", err)
	}
	return rec, nil
}

// commandGuard is the set of stored statuses a command may be issued from, aliases included.
func commandGuard(cmd domain.SectionCommand) any {
	return pq.Array(domain.StoredStatuses(domain.AllowedFrom(cmd)))
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf("%s", what)
	}
	return nil
}
