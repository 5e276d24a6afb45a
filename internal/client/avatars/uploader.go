// Package avatars stores profile pictures in an S3-compatible bucket and
// returns the public URL that goes into the user's avatar_url metadata.
package avatars

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxSize is the largest picture accepted for upload.
const MaxSize = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image is too large")
	ErrNotConfigured   = errors.New("avatar storage is not configured")
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicBaseURL is prepended to object keys to build links. When empty
	// the path-style endpoint URL is used.
	PublicBaseURL string
}

// Enabled reports whether enough is set to talk to a bucket.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.Endpoint != ""
}

type Uploader struct {
	api        PutObjectAPI
	bucket     string
	publicBase string
	newID      func() string
}

// NewUploader builds an S3 client for cfg. Static credentials are used when
// given, otherwise the default AWS credential chain applies.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	base := cfg.PublicBaseURL
	if base == "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return NewUploaderWithAPI(client, cfg.Bucket, base), nil
}

func NewUploaderWithAPI(api PutObjectAPI, bucket, publicBase string) *Uploader {
	return &Uploader{
		api:        api,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		newID:      uuid.NewString,
	}
}

// Upload stores the picture read from r under avatars/<userID>/ and returns
// its public URL. filename only determines the extension.
func (u *Uploader) Upload(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}

	key := ObjectKey(userID, u.newID(), ext)
	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return u.publicBase + "/" + key, nil
}

func ObjectKey(userID, id, ext string) string {
	return "avatars/" + userID + "/" + id + ext
}

func contentType(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
