package repository

import (
	"context"
	"time"

	"PipeKit/internal/domain/repository"
)

type jsonPoster interface {
	PostJSON(ctx context.Context, url string, body interface{}, headers map[string]string, timeout time.Duration) (int, error)
}

// RESTPoster adapts the HTTP client to the REST sink.
type RESTPoster struct {
	client jsonPoster
}

// NewRESTPoster wraps an HTTP client.
func NewRESTPoster(c jsonPoster) *RESTPoster {
	return &RESTPoster{client: c}
}

var _ repository.RESTPoster = (*RESTPoster)(nil)

func (p *RESTPoster) PostJSON(ctx context.Context, url string, body any, headers map[string]string, timeout time.Duration) (repository.RESTResponse, error) {
	status, err := p.client.PostJSON(ctx, url, body, headers, timeout)
	if err != nil {
		return repository.RESTResponse{}, err
	}
	return repository.RESTResponse{StatusCode: status}, nil
}

type jsonUploader interface {
	PutJSON(ctx context.Context, bucket, key string, body []byte) error
}

// S3ObjectStore adapts the S3 client to the object store sink.
type S3ObjectStore struct {
	client jsonUploader
}

// NewS3ObjectStore wraps an S3 client.
func NewS3ObjectStore(c jsonUploader) *S3ObjectStore {
	return &S3ObjectStore{client: c}
}

var _ repository.ObjectStore = (*S3ObjectStore)(nil)

func (s *S3ObjectStore) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	return s.client.PutJSON(ctx, bucket, key, body)
}
