// Package publish uploads rendered artifacts to object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

var contentTypes = map[string]string{
	".gif": "image/gif",
	".png": "image/png",
	".svg": "image/svg+xml",
	".pdf": "application/pdf",
	".nc":  "application/x-netcdf",
	".csv": "text/csv",
	".txt": "text/plain",
}

// ContentType returns the media type used for a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// S3Options tune the S3 session. The zero value uses the default AWS
// credential chain against AWS itself.
type S3Options struct {
	// Endpoint points at an S3 compatible service instead of AWS.
	Endpoint       string
	ForcePathStyle bool
	// AccessKey and SecretKey select static credentials when both are set.
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix string
}

// S3 uploads files to a bucket.
type S3 struct {
	logger   *slog.Logger
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

// NewS3 creates an uploader for bucket in region.
func NewS3(logger *slog.Logger, bucket, region string, opts S3Options) (*S3, error) {
	if bucket == "" {
		return nil, errors.New("missing bucket name")
	}
	cfg := &aws.Config{Region: aws.String(region)}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.ForcePathStyle {
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create aws session: %w", err)
	}
	return &S3{
		logger:   logger,
		bucket:   bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Upload stores the file at p under key and returns the object location.
// An empty key uses the file name.
func (s *S3) Upload(ctx context.Context, p, key string) (string, error) {
	if key == "" {
		key = filepath.Base(p)
	}
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(ContentType(p)),
		Body:        f,
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload %s: %w", key, err)
	}
	s.logger.Info("published", "bucket", s.bucket, "key", key, "location", out.Location)
	return out.Location, nil
}
