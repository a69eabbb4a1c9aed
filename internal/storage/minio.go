package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/aihub/policyqa-go/internal/config"
	"github.com/aihub/policyqa-go/internal/logger"
)

// DocumentStore 原始文档归档存储。摄取成功后保留原始文件，供审计与重新摄取使用。
type DocumentStore struct {
	client *minio.Client
	bucket string
}

// NewDocumentStore 创建MinIO文档存储
func NewDocumentStore(cfg config.ObjectStorageConfig) (*DocumentStore, error) {
	if cfg.Provider != "minio" && cfg.Provider != "s3" {
		return nil, fmt.Errorf("object storage provider is not minio/s3")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "policy-documents"
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &DocumentStore{client: client, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			errStr := err.Error()
			if !strings.Contains(errStr, "BucketAlreadyExists") &&
				!strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
				return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
			}
		}
	}

	logger.Info("document store initialized",
		zap.String("endpoint", endpoint), zap.String("bucket", cfg.Bucket))
	return store, nil
}

func objectKey(documentID, filename string) string {
	return fmt.Sprintf("documents/%s/%s", documentID, filename)
}

// SaveOriginal 归档原始文档
func (s *DocumentStore) SaveOriginal(ctx context.Context, documentID, filename string, reader io.Reader, size int64, contentType string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("document store not initialized")
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(documentID, filename), reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to archive document: %w", err)
	}
	return nil
}

// GetOriginal 读取归档的原始文档
func (s *DocumentStore) GetOriginal(ctx context.Context, documentID, filename string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("document store not initialized")
	}
	object, err := s.client.GetObject(ctx, s.bucket, objectKey(documentID, filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return object, nil
}

// DeleteOriginal 删除归档文件及其目录下所有对象，对不存在的对象幂等
func (s *DocumentStore) DeleteOriginal(ctx context.Context, documentID string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("document store not initialized")
	}

	prefix := fmt.Sprintf("documents/%s/", documentID)
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return object.Err
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// PresignedURL 生成原始文档的预签名访问URL
func (s *DocumentStore) PresignedURL(ctx context.Context, documentID, filename string, expires time.Duration) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("document store not initialized")
	}
	if expires == 0 {
		expires = 24 * time.Hour
	}
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(documentID, filename), expires, nil)
	if err != nil {
		return "", err
	}
	return url.String(), nil
}

// Healthy 检查存储可用性
func (s *DocumentStore) Healthy(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	_, err := s.client.ListBuckets(ctx)
	return err == nil
}
