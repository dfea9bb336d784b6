package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"
)

// MinIO holds the two document buckets: raw uploads and extracted plain
// text. Extraction re-runs read from originals; everything downstream reads
// parsed text only.
type MinIO struct {
	client          *minio.Client
	originalsBucket string
	parsedBucket    string
	cfg             *config.MinIOConfig
}

// NewMinIO connects, creates the buckets if missing and applies expiry
// rules when configured.
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("minio config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	m := &MinIO{
		client:          client,
		originalsBucket: cfg.OriginalsBucket,
		parsedBucket:    cfg.ParsedBucket,
		cfg:             cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, bucket := range []string{cfg.OriginalsBucket, cfg.ParsedBucket} {
		if err := m.ensureBucketExists(ctx, bucket); err != nil {
			return nil, err
		}
	}

	if err := m.setupLifecycleRules(ctx); err != nil {
		// Expiry rules are housekeeping; a bucket without them still works.
		logger.Warn().Err(err).Msg("failed to set up MinIO lifecycle rules")
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Msg("connected to MinIO")
	return m, nil
}

func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return nil
}

func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalsBucket, "expire-originals", m.cfg.OriginalExpireDays); err != nil {
			return err
		}
	}
	if m.cfg.ParsedExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedBucket, "expire-parsed", m.cfg.ParsedExpireDays); err != nil {
			return err
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	if err := m.client.SetBucketLifecycle(ctx, bucketName, lc); err != nil {
		return fmt.Errorf("failed to set lifecycle for bucket %s: %w", bucketName, err)
	}
	return nil
}

// UploadOriginal stores the raw upload bytes. The object key is derived
// from the document id and extension.
func (m *MinIO) UploadOriginal(ctx context.Context, documentID, fileType string, data []byte) (string, error) {
	objectName := fmt.Sprintf("%s.%s", documentID, fileType)
	_, err := m.client.PutObject(ctx, m.originalsBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeFor(fileType)})
	if err != nil {
		return "", fmt.Errorf("failed to upload original %s: %w", objectName, err)
	}
	return objectName, nil
}

// GetOriginal fetches the raw upload bytes back.
func (m *MinIO) GetOriginal(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.originalsBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get original %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read original %s: %w", objectName, err)
	}
	return data, nil
}

// UploadParsedText stores the cleaned extraction output.
func (m *MinIO) UploadParsedText(ctx context.Context, documentID, text string) (string, error) {
	objectName := fmt.Sprintf("%s.txt", documentID)
	_, err := m.client.PutObject(ctx, m.parsedBucket, objectName,
		strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("failed to upload parsed text %s: %w", objectName, err)
	}
	return objectName, nil
}

// GetParsedText fetches the cleaned text of a document.
func (m *MinIO) GetParsedText(ctx context.Context, objectName string) (string, error) {
	obj, err := m.client.GetObject(ctx, m.parsedBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get parsed text %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("failed to read parsed text %s: %w", objectName, err)
	}
	return string(data), nil
}

// DeleteOriginal removes a raw upload, used when extraction rejects the
// file outright.
func (m *MinIO) DeleteOriginal(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, m.originalsBucket, objectName, minio.RemoveObjectOptions{})
}

func contentTypeFor(fileType string) string {
	switch strings.ToLower(fileType) {
	case constants.FileTypePDF:
		return "application/pdf"
	case constants.FileTypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
