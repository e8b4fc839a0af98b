// Package storage uploads user avatars to S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/config"
)

// MaxAvatarSize bounds an upload.
const MaxAvatarSize = 5 << 20

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// putter is the part of *s3.Client used here.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// AvatarStore writes avatars under avatars/<user_id>/ and returns their
// public URL.
type AvatarStore struct {
	client    putter
	bucket    string
	publicURL string
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewAvatarStore builds an S3 client with static credentials.  A custom
// endpoint (MinIO) switches to path-style addressing.
func NewAvatarStore(ctx context.Context, cfg config.S3Config) (*AvatarStore, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newAvatarStore(client, cfg.Bucket, publicBase(cfg)), nil
}

func newAvatarStore(client putter, bucket, publicURL string) *AvatarStore {
	return &AvatarStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func publicBase(cfg config.S3Config) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	if cfg.Endpoint != "" {
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}

// Upload stores body for userID.  Content types outside the image whitelist
// yield apperr.ErrInvalidFileType; any storage failure yields
// apperr.ErrStorage.
func (s *AvatarStore) Upload(ctx context.Context, userID, contentType string, size int64, body io.Reader) (string, error) {
	ext, ok := allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", apperr.ErrInvalidFileType.With("", map[string]any{"content_type": contentType})
	}
	if size <= 0 || size > MaxAvatarSize {
		return "", apperr.ErrValidation.With(fmt.Sprintf("avatar must be between 1 byte and %d bytes", MaxAvatarSize), nil)
	}

	key := path.Join("avatars", userID, uuid.NewString()+ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return s.publicURL + "/" + key, nil
}
