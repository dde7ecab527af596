package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/HimanshuNaik19/feedback-flash-qr/internal/config"
	"github.com/HimanshuNaik19/feedback-flash-qr/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "local-state/"

// MinIOBlobs persists the local state in an object bucket, for deployments
// whose containers have no durable disk.
type MinIOBlobs struct {
	client *minio.Client
	bucket string
}

func NewMinIOBlobs(ctx context.Context, cfg *config.Config) (*MinIOBlobs, error) {
	minioCfg := cfg.MinIO
	client, err := minio.New(minioCfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(minioCfg.AccessKey, minioCfg.SecretKey, ""),
		Secure: minioCfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, minioCfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, minioCfg.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Infof("Bucket %s created successfully", minioCfg.Bucket)
	}

	return &MinIOBlobs{client: client, bucket: minioCfg.Bucket}, nil
}

func (m *MinIOBlobs) objectKey(key string) string {
	return objectPrefix + key + ".json"
}

func (m *MinIOBlobs) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.translate(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.translate(err)
	}
	return data, nil
}

func (m *MinIOBlobs) Write(ctx context.Context, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, m.objectKey(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return m.translate(err)
}

func (m *MinIOBlobs) Remove(ctx context.Context, key string) error {
	return m.translate(m.client.RemoveObject(ctx, m.bucket, m.objectKey(key), minio.RemoveObjectOptions{}))
}

func (m *MinIOBlobs) translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return ErrBlobNotFound
	case "QuotaExceeded", "XMinioAdminBucketQuotaExceeded", "XMinioStorageFull":
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}
