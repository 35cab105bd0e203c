// Package archive uploads a finished run's output files to S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config selects the bucket and key prefix. Region and credentials fall back
// to the standard AWS configuration chain.
type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	UsePathStyle bool
}

// objectPutter is the part of *s3.Client the uploader needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies local files to s3://{Bucket}/{Prefix}{runID}/{file name}.
type Uploader struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// New loads the AWS configuration and builds an S3 client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newUploader(client, cfg, logger), nil
}

func newUploader(client objectPutter, cfg Config, logger *slog.Logger) *Uploader {
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
		logger: logger.With("bucket", cfg.Bucket),
	}
}

// Key returns the object key for a local file of the given run.
func (u *Uploader) Key(runID, file string) string {
	return path.Join(u.prefix+runID, filepath.Base(file))
}

// UploadRun uploads every file that exists and returns the uploaded keys.
// Missing files are skipped; the first upload error stops the run.
func (u *Uploader) UploadRun(ctx context.Context, runID string, files []string) ([]string, error) {
	var keys []string
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return keys, fmt.Errorf("open %s: %w", file, err)
		}

		key := u.Key(runID, file)
		_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType(file)),
		})
		f.Close()
		if err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", key, err)
		}
		u.logger.Info("archived file", "path", file, "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
