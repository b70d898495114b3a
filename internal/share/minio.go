package share

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"image-compressor-go/internal/config"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Minio shares files by uploading them to an S3-compatible bucket and
// handing back a presigned download link.
type Minio struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
	logger  logrus.FieldLogger
}

// NewMinio connects to the configured endpoint and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg config.ShareConfig, logger logrus.FieldLogger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Minio{
		client:  client,
		bucket:  cfg.Bucket,
		linkTTL: cfg.LinkTTL,
		logger:  logger,
	}, nil
}

// Available implements Sharer.
func (m *Minio) Available() bool {
	return m.client != nil
}

// Share uploads file under a random prefix and returns a presigned GET link.
func (m *Minio) Share(ctx context.Context, file File, title, text string) (*Result, error) {
	key := path.Join(uuid.NewString(), path.Base(file.Name))

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType:        file.MIMEType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(file.Name)),
		UserMetadata: map[string]string{
			"title": title,
			"text":  text,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload shared file: %w", err)
	}

	link, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.linkTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned download URL: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"bucket": m.bucket,
		"key":    key,
	}).Info("Shared compressed image")

	return &Result{URL: link.String()}, nil
}
