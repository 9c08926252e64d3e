package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/yeremiapane/restaurant-feedback/config"
)

// ImageStore persists an image and returns the URL it is publicly served from.
type ImageStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NewImageStore picks the store configured by UPLOAD_DRIVER.
func NewImageStore(ctx context.Context, cfg config.UploadConfig) (ImageStore, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalImageStore(cfg.Dir, cfg.PublicBaseURL), nil
	case "s3":
		return NewS3ImageStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported UPLOAD_DRIVER %q", cfg.Driver)
	}
}

// LocalImageStore writes under Dir, which the router serves on /uploads.
type LocalImageStore struct {
	Dir           string
	PublicBaseURL string
}

func NewLocalImageStore(dir, publicBaseURL string) *LocalImageStore {
	return &LocalImageStore{Dir: dir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (s *LocalImageStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	key = strings.TrimLeft(filepath.ToSlash(filepath.Clean(key)), "/")
	if strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("invalid upload key %q", key)
	}

	path := filepath.Join(s.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return s.PublicBaseURL + "/" + key, nil
}

type S3ImageStore struct {
	client          *s3.Client
	bucket          string
	region          string
	publicObjectURL string
}

func NewS3ImageStore(ctx context.Context, cfg config.UploadConfig) (*S3ImageStore, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET_NAME is required for the s3 upload driver")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3ImageStore{
		client:          client,
		bucket:          cfg.S3Bucket,
		region:          cfg.S3Region,
		publicObjectURL: cfg.S3PublicObjectURL,
	}, nil
}

func (s *S3ImageStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if s.publicObjectURL != "" {
		return s.publicObjectURL + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
