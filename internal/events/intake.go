package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

type IntakeStore interface {
	MarkDocumentStored(ctx context.Context, documentID, objectKey string) (string, error)
	AdvanceCaseStatus(ctx context.Context, caseID string, to domain.CaseStatus) (bool, error)
}

// DocumentIntake completes an upload once its object is durable in the bucket.
type DocumentIntake struct {
	Store  IntakeStore
	Logger *zap.Logger
}

func (d *DocumentIntake) Handle(ctx context.Context, event UploadEvent) error {
	caseID, err := d.Store.MarkDocumentStored(ctx, event.DocumentID, event.ObjectKey)
	if errors.Is(err, domain.ErrNotFound) {
		d.Logger.Warn("upload without document record",
			zap.String("object_key", event.ObjectKey),
			zap.String("document_id", event.DocumentID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark document %s stored: %w", event.DocumentID, err)
	}
	if caseID != event.CaseID {
		d.Logger.Warn("object key case does not match document",
			zap.String("object_key", event.ObjectKey),
			zap.String("case_id", caseID),
		)
	}

	advanced, err := d.Store.AdvanceCaseStatus(ctx, caseID, domain.CaseDocsUploaded)
	if err != nil {
		return fmt.Errorf("advance case %s: %w", caseID, err)
	}
	d.Logger.Info("document stored",
		zap.String("case_id", caseID),
		zap.String("document_id", event.DocumentID),
		zap.String("filename", event.Filename),
		zap.Bool("case_advanced", advanced),
	)
	return nil
}
