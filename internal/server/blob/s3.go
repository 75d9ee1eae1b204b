// Package blob stores assembled media payloads in S3-compatible object
// storage.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ksolodov/fieldreporter/internal/server/config"
)

// Store persists a named binary object and returns a URL clients can
// fetch it from.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

// S3Store implements Store against MinIO or AWS S3.
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// NewS3Store builds the S3 client from the server configuration. A
// non-empty S3BaseEndpoint switches to path-style addressing for
// MinIO-style deployments.
func NewS3Store(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3RootUser, cfg.S3RootPassword, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		bucket:   cfg.S3Bucket,
		endpoint: strings.TrimSuffix(cfg.S3BaseEndpoint, "/"),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key), nil
}
