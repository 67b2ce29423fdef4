// internal/media/s3.go
// Package media resolves stored content source URLs into URLs a client can fetch.
// Content kept in S3-compatible storage is referenced as s3://bucket/key and is
// handed out as a short-lived presigned GET URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme is the URL scheme of objects in S3-compatible storage.
const Scheme = "s3://"

// ErrInvalidObjectURL is returned for an s3:// URL without bucket or key.
var ErrInvalidObjectURL = errors.New("invalid s3 object url")

// presigner is the part of s3.PresignClient the resolver uses.
type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error)
}

// PresignedRequest is the subset of the SDK's presigned request the resolver needs.
type PresignedRequest struct {
	URL string
}

type sdkPresigner struct {
	client *s3.PresignClient
}

func (p sdkPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*PresignedRequest, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return &PresignedRequest{URL: req.URL}, nil
}

// S3Client presigns content URLs stored in S3-compatible storage.
type S3Client struct {
	presign presigner
	expires time.Duration
}

// NewS3Client creates a new S3 client. It supports both AWS S3 and
// S3-compatible services like MinIO.
func NewS3Client(ctx context.Context, endpoint, region, accessKey, secretKey string, expires time.Duration) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for MinIO and other S3-compatible services
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Client{
		presign: sdkPresigner{client: s3.NewPresignClient(client)},
		expires: expires,
	}, nil
}

// Resolve returns a presigned GET URL for s3://bucket/key URLs. Any other URL
// is returned unchanged.
func (s *S3Client) Resolve(ctx context.Context, raw string) (string, error) {
	bucket, key, ok, err := ParseObjectURL(raw)
	if err != nil {
		return "", err
	}
	if !ok {
		return raw, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", raw, err)
	}
	return req.URL, nil
}

// ParseObjectURL splits an s3://bucket/key URL. ok is false for other schemes.
func ParseObjectURL(raw string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(raw, Scheme) {
		return "", "", false, nil
	}
	bucket, key, found := strings.Cut(strings.TrimPrefix(raw, Scheme), "/")
	if !found || bucket == "" || key == "" {
		return "", "", true, fmt.Errorf("%w: %q", ErrInvalidObjectURL, raw)
	}
	return bucket, key, true, nil
}

// Passthrough is a resolver that leaves every URL unchanged. It is used when
// no object storage is configured.
type Passthrough struct{}

// Resolve returns raw, rejecting s3:// URLs that cannot be served.
func (Passthrough) Resolve(ctx context.Context, raw string) (string, error) {
	if strings.HasPrefix(raw, Scheme) {
		return "", fmt.Errorf("%w: object storage not configured for %q", ErrInvalidObjectURL, raw)
	}
	return raw, nil
}
