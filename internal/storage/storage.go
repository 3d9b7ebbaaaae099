// Package storage uploads task evidence photos to S3-compatible storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/chorequest/internal/apperr"
)

// MaxPhotoSize caps a single upload.
const MaxPhotoSize = 10 << 20

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type Uploader struct {
	client  s3Client
	bucket  string
	baseURL string
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

func New(cfg Config) *Uploader {
	return newUploader(NewS3Client(cfg), cfg)
}

// NewS3Client builds a path-style client with static credentials, which
// works against AWS as well as MinIO and R2.
func NewS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func newUploader(client s3Client, cfg Config) *Uploader {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &Uploader{client: client, bucket: cfg.Bucket, baseURL: base}
}

// Upload stores an image under evidence/<family>/<uuid><ext> and returns
// its public URL.
func (u *Uploader) Upload(ctx context.Context, familyID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := imageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", apperr.Newf(apperr.KindInvalidInput, "unsupported image type %q", contentType)
	}
	if size > MaxPhotoSize {
		return "", apperr.InvalidInput("photo is too large")
	}

	key := path.Join("evidence", familyID, uuid.NewString()+ext)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return u.baseURL + "/" + key, nil
}
