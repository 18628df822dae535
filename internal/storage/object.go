package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectStore persists uploaded file bytes.
type ObjectStore interface {
	// UploadBuffer stores data under key and returns the object URI.
	UploadBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error)
	FileExists(ctx context.Context, key string) (bool, error)
}

// S3Store is the ObjectStore over an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a store using the ambient AWS credential chain.
func NewS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// UploadBuffer implements ObjectStore.
func (s *S3Store) UploadBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}

	log.Debug().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).
		Msg("object uploaded")
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// FileExists implements ObjectStore.
func (s *S3Store) FileExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return false, nil
		}
	}
	return false, fmt.Errorf("checking %s: %w", key, err)
}
