package artifact

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// R2Config addresses a Cloudflare R2 bucket through its S3 endpoint.
type R2Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL, when set, replaces endpoint/bucket as the base of returned handles.
	PublicURL string
}

// R2Store uploads artifacts to R2.
type R2Store struct {
	cfg      R2Config
	svc      *s3.S3
	uploader *s3manager.Uploader
}

func NewR2Store(cfg R2Config) (*R2Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("r2 endpoint and bucket are required: %w", domain.ErrInvalidInput)
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.Region),
		Endpoint:         aws.String(cfg.Endpoint),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("creating r2 session: %w", err)
	}
	return &R2Store{
		cfg:      cfg,
		svc:      s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (s *R2Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("empty artifact key: %w", domain.ErrInvalidInput)
	}
	in := &s3manager.UploadInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, in); err != nil {
		return "", fmt.Errorf("uploading %s to r2: %v: %w", key, err, domain.ErrProviderUnavailable)
	}
	return s.URL(key), nil
}

// URL is the handle for key.
func (s *R2Store) URL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, key)
}

// SignedURL returns a time-limited GET URL for a private bucket.
func (s *R2Store) SignedURL(key string, expiresIn time.Duration) (string, error) {
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(expiresIn)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return u, nil
}
