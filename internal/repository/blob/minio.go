package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/resilience"
)

// MinioStore keeps blobs in a MinIO/S3 bucket. Every call goes through a
// resilience.Breaker (retry with backoff, circuit breaker).
type MinioStore struct {
	client  *minio.Client
	bucket  string
	breaker *resilience.Breaker
}

// NewMinioStore connects to MinIO and creates the bucket if it does not exist
func NewMinioStore(ctx context.Context, cfg config.MinIOConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created MinIO bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		breaker: resilience.New("minio", resilience.DefaultConfig()),
	}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Put uploads r under key. Retries are only possible when r can be rewound.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	seeker, canRewind := r.(io.Seeker)
	attempt := 0

	return s.breaker.Execute(ctx, "put", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if !canRewind {
				return resilience.Permanent(fmt.Errorf("upload of %s failed and the body cannot be replayed", key))
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return resilience.Permanent(fmt.Errorf("failed to rewind upload body: %w", err))
			}
		}

		_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
}

// Get opens the object stored under key
func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var obj *minio.Object
	err := s.breaker.Execute(ctx, "get", func(ctx context.Context) error {
		o, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		// GetObject is lazy; Stat surfaces a missing key.
		if _, err := o.Stat(); err != nil {
			_ = o.Close()
			if isNoSuchKey(err) {
				return resilience.Permanent(repository.ErrNotFound)
			}
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Exists reports whether key is present
func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	found := false
	err := s.breaker.Execute(ctx, "stat", func(ctx context.Context) error {
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			found = true
			return nil
		}
		if isNoSuchKey(err) {
			return nil
		}
		return err
	})
	return found, err
}

// PresignGet returns a time-limited download URL that names the file on save
func (s *MinioStore) PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return u.String(), nil
}

// HealthCheck verifies the bucket is reachable
func (s *MinioStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("minio health check failed: %w", err)
	}
	return nil
}

var (
	_ repository.BlobStore = (*MinioStore)(nil)
	_ repository.URLSigner = (*MinioStore)(nil)
)
