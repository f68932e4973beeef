package events

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

const objectCreatedEvent = "s3:ObjectCreated:*"

// documentsSegment separates the case id from the document part of an upload key.
const documentsSegment = "documents"

type UploadEvent struct {
	CaseID     string
	DocumentID string
	Filename   string
	ObjectKey  string
	EventName  string
}

type UploadEventSource interface {
	Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error
}

type MinioUploadEventSource struct {
	client *minio.Client
	bucket string
}

func NewMinioUploadEventSource(client *minio.Client, bucket string) *MinioUploadEventSource {
	return &MinioUploadEventSource{client: client, bucket: bucket}
}

// Run listens for created objects and hands document uploads to handler. Other objects in
// the bucket, such as assembled summons outputs, are skipped.
func (s *MinioUploadEventSource) Run(ctx context.Context, handler func(context.Context, UploadEvent) error) error {
	notificationCh := s.client.ListenBucketNotification(ctx, s.bucket, "", "", []string{objectCreatedEvent})
	for {
		select {
		case <-ctx.Done():
			return nil
		case info, ok := <-notificationCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream closed")
			}
			if info.Err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("minio notification stream error: %w", info.Err)
			}
			for _, record := range info.Records {
				event, err := eventFromKey(record.S3.Object.Key)
				if err != nil {
					continue
				}
				event.EventName = record.EventName
				if err := handler(ctx, event); err != nil {
					return err
				}
			}
		}
	}
}

func eventFromKey(encoded string) (UploadEvent, error) {
	objectKey, err := decodeObjectKey(encoded)
	if err != nil {
		return UploadEvent{}, err
	}
	caseID, documentID, filename, err := parseObjectKey(objectKey)
	if err != nil {
		return UploadEvent{}, err
	}
	return UploadEvent{CaseID: caseID, DocumentID: documentID, Filename: filename, ObjectKey: objectKey}, nil
}

func decodeObjectKey(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", err
	}
	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("object key is empty")
	}
	return decoded, nil
}

// parseObjectKey splits case_id/documents/document_id/filename.
func parseObjectKey(objectKey string) (string, string, string, error) {
	cleaned := strings.Trim(strings.ReplaceAll(objectKey, "\\", "/"), "/")
	parts := strings.SplitN(cleaned, "/", 4)
	if len(parts) != 4 || parts[1] != documentsSegment {
		return "", "", "", fmt.Errorf("object key %q does not match case_id/documents/document_id/filename", objectKey)
	}
	caseID := strings.TrimSpace(parts[0])
	documentID := strings.TrimSpace(parts[2])
	filename := strings.TrimSpace(parts[3])
	if caseID == "" || documentID == "" || filename == "" {
		return "", "", "", fmt.Errorf("object key %q missing case id, document id or filename", objectKey)
	}
	return caseID, documentID, filename, nil
}
