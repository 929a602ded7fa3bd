package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type R2Options struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
	// PublicBaseURL is the public (custom domain or r2.dev) origin of the
	// bucket; object URLs are PublicBaseURL + "/" + key.
	PublicBaseURL string
}

// objectAPI is the subset of *s3.Client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// R2Store keeps uploads in an S3-compatible Cloudflare R2 bucket.
type R2Store struct {
	client        objectAPI
	bucket        string
	publicBaseURL string
}

func NewR2Store(ctx context.Context, opts R2Options) (*R2Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: r2 endpoint and bucket are required")
	}
	if opts.AccessKeyID == "" || opts.AccessKeySecret == "" {
		return nil, errors.New("storage: no R2 credentials configured")
	}
	if opts.PublicBaseURL == "" {
		return nil, errors.New("storage: r2 public base url is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.AccessKeySecret,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load r2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	})
	return newR2Store(client, opts.Bucket, opts.PublicBaseURL), nil
}

func newR2Store(client objectAPI, bucket, publicBaseURL string) *R2Store {
	return &R2Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *R2Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(cleanKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("storage: put object %s: %w", cleanKey, err)
	}
	return s.publicBaseURL + "/" + cleanKey, nil
}

func (s *R2Store) Delete(ctx context.Context, key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleanKey),
	})
	if err != nil {
		return fmt.Errorf("storage: delete object %s: %w", cleanKey, err)
	}
	return nil
}
