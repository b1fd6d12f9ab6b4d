// Package objectstore serves audio stored in an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"voxflow/internal/app/transport"
)

const (
	CodePresignFailed  = "s3_presign_failed"
	CodeDownloadFailed = "s3_download_failed"
	CodeEmptyObject    = "s3_empty_object"
	CodeObjectTooLarge = "s3_file_too_large"

	defaultPresignExpiry = 15 * time.Minute
)

// Config holds the bucket connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PathStyle     bool
	PresignExpiry time.Duration
	MaxFileBytes  int64
}

// Store implements transport.Transport. File handles are object keys.
type Store struct {
	client *minio.Client
	config Config
}

var _ transport.Transport = (*Store)(nil)

// New creates a MinIO-backed store. It does not touch the network; bucket
// problems surface on the first Resolve or Download.
func New(config Config) (*Store, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	if config.PresignExpiry <= 0 {
		config.PresignExpiry = defaultPresignExpiry
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	}
	if config.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(config.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Store{client: client, config: config}, nil
}

// Resolve returns a presigned GET URL for the object key.
func (s *Store) Resolve(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", transport.Errorf(CodePresignFailed, "empty object key")
	}

	u, err := s.client.PresignedGetObject(ctx, s.config.Bucket, key, s.config.PresignExpiry, url.Values{})
	if err != nil {
		return "", transport.Errorf(CodePresignFailed, "presign %s/%s: %v", s.config.Bucket, key, err)
	}
	return u.String(), nil
}

// Download reads the object behind a URL produced by Resolve.
func (s *Store) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	key, err := s.keyFromURL(rawURL)
	if err != nil {
		return nil, "", transport.Errorf(CodeDownloadFailed, "%v", err)
	}

	obj, err := s.client.GetObject(ctx, s.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", transport.Errorf(CodeDownloadFailed, "get %s: %v", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", transport.Errorf(CodeDownloadFailed, "stat %s: %s", key, minio.ToErrorResponse(err).Code)
	}
	if info.Size == 0 {
		return nil, "", transport.Errorf(CodeEmptyObject, "object %s is empty", key)
	}
	if s.config.MaxFileBytes > 0 && info.Size > s.config.MaxFileBytes {
		return nil, "", transport.Errorf(CodeObjectTooLarge, "object %s is %d bytes, limit %d", key, info.Size, s.config.MaxFileBytes)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", transport.Errorf(CodeDownloadFailed, "read %s: %v", key, err)
	}
	if len(data) == 0 {
		return nil, "", transport.Errorf(CodeEmptyObject, "object %s is empty", key)
	}
	return data, info.ContentType, nil
}

// keyFromURL recovers the object key from a presigned URL in either
// path-style or virtual-host form.
func (s *Store) keyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, s.config.Bucket+".") {
		return p, nil
	}
	key := strings.TrimPrefix(p, s.config.Bucket+"/")
	if key == p || key == "" {
		return "", fmt.Errorf("url %s does not address bucket %s", u.Redacted(), s.config.Bucket)
	}
	return key, nil
}
