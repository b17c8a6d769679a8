package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Storage keeps document bytes in a MinIO/S3 bucket.
type Storage struct {
	client   *minio.Client
	bucket   string
	executor *resilience.Executor
}

// New connects and makes sure the bucket exists.
func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Storage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &Storage{client: client, bucket: cfg.Bucket, executor: executor}

	ensureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.MakeBucket(ensureCtx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := client.BucketExists(ensureCtx, s.bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// Save streams data with an unknown size. It is not retried since data can only be read once.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, data, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return domain.WrapError(domain.ErrStorage, "minio put", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := resilience.Call(ctx, s.executor, "minio.get", func(ctx context.Context) (*minio.Object, error) {
		obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		if _, err := obj.Stat(); err != nil {
			_ = obj.Close()
			return nil, err
		}
		return obj, nil
	}, classifyMinIOError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "minio get", err)
	}
	return obj, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	remove := func(ctx context.Context) error {
		return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	}
	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, "minio.remove", remove, classifyMinIOError)
	} else {
		err = remove(ctx)
	}
	if err != nil {
		return domain.WrapError(domain.ErrStorage, "minio remove", err)
	}
	return nil
}

var classifyMinIOError = resilience.TransientNetwork(isTransient)

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
}
