package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Client exposes the underlying client for bucket notifications.
func (m *MinioStore) Client() *minio.Client {
	return m.client
}

// DocumentObjectKey is the layout parsed back by the upload event source.
func DocumentObjectKey(caseID, documentID, filename string) string {
	return path.Join(caseID, "documents", documentID, path.Base(filename))
}

// AssemblyObjectKey names one rendered output of an assembly attempt for a summons version.
func AssemblyObjectKey(caseID, summonsID string, version int, attemptID, filename string) string {
	return path.Join(caseID, "summons", summonsID, fmt.Sprintf("v%d-%s", version, attemptID), filename)
}

func (m *MinioStore) PutDocument(ctx context.Context, caseID, documentID, filename, contentType string, content []byte) (string, error) {
	objectKey := DocumentObjectKey(caseID, documentID, filename)
	if err := m.PutObject(ctx, objectKey, contentType, content); err != nil {
		return "", err
	}
	return objectKey, nil
}

func (m *MinioStore) PutObject(ctx context.Context, objectKey, contentType string, content []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *MinioStore) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data := new(bytes.Buffer)
	if _, err := data.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data.Bytes(), nil
}
