package services

import (
	"context"
	"fmt"
	"time"

	appconfig "soul-card-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const avatarUploadTTL = 5 * time.Minute

// AvatarStorage presigns direct uploads of avatar images
type AvatarStorage interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
}

// S3AvatarStorage stores avatars in an S3 bucket
type S3AvatarStorage struct {
	presign *s3.PresignClient
	bucket  string
}

// NewS3AvatarStorage creates an S3 client from the aws section of the config.
// Static keys and a custom endpoint are optional; without them the default
// credential chain and AWS endpoints are used.
func NewS3AvatarStorage(ctx context.Context, cfg appconfig.AWSConfig) (*S3AvatarStorage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3AvatarStorage{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
	}, nil
}

// PresignPut returns a URL the client can PUT the image to
func (s *S3AvatarStorage) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	request, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = avatarUploadTTL
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return request.URL, nil
}
