package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fitcoach/internal/config"
)

// MediaStore keeps exercise media in a single S3-compatible bucket.
type MediaStore struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string
}

func NewMediaStore(cfg config.StorageConfig) (*MediaStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	return &MediaStore{
		client:  client,
		bucket:  cfg.BucketMedia,
		region:  cfg.Region,
		baseURL: fmt.Sprintf("%s://%s", scheme, endpoint),
	}, nil
}

// EnsureBucket creates the media bucket when missing.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MediaStore) Put(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, objectKey, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (s *MediaStore) URL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, strings.TrimPrefix(objectKey, "/"))
}

// Ping reports whether the bucket is reachable.
func (s *MediaStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
