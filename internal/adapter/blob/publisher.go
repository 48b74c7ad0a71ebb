// Package blob publishes finished artifacts to S3-compatible object storage.
package blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/observability"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	contentType  = "application/json"
	cacheControl = "public, max-age=3600"
)

// Config holds object storage settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	Bucket        string
	Prefix        string // key prefix, e.g. "timeseries/"
	Secure        bool
	PublicBaseURL string // optional; defaults to the endpoint URL
}

// NewClient constructs the storage client. It is created once per process
// and passed to NewPublisher.
func NewClient(cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client for %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}

// Publisher gzips local artifacts and uploads them with public caching headers.
type Publisher struct {
	client  *minio.Client
	cfg     Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a publisher around an existing client.
func NewPublisher(client *minio.Client, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, cfg: cfg, metrics: metrics, logger: logger}
}

// EnsureBucket creates the bucket when it does not exist.
func (p *Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.cfg.Bucket, err)
	}
	p.logger.Info("created bucket", "bucket", p.cfg.Bucket)
	return nil
}

// CheckReadiness verifies the bucket is reachable.
func (p *Publisher) CheckReadiness(ctx context.Context) error {
	_, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	return err
}

// Publish uploads the file at localPath under key and returns its public URL.
// A bare file name is placed under the configured prefix; a key with a
// directory component is used from the bucket root.
func (p *Publisher) Publish(ctx context.Context, localPath, key string) (string, error) {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return "", fmt.Errorf("gzip %s: %w", localPath, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("gzip %s: %w", localPath, err)
	}

	objectKey := p.objectKey(key)
	start := time.Now()
	reader := bytes.NewReader(buf.Bytes())
	_, err = p.client.PutObject(ctx, p.cfg.Bucket, objectKey, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: "gzip",
		CacheControl:    cacheControl,
	})
	if err != nil {
		p.metrics.Publications.WithLabelValues("blob", "error").Inc()
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	p.metrics.Publications.WithLabelValues("blob", "success").Inc()

	url := p.URL(key)
	p.logger.Info("published artifact",
		"key", objectKey,
		"bytes", len(raw),
		"gzip_bytes", buf.Len(),
		"duration", time.Since(start),
		"url", url,
	)
	return url, nil
}

// URL returns the public locator for key.
func (p *Publisher) URL(key string) string {
	base := strings.TrimRight(p.cfg.PublicBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(p.client.EndpointURL().String(), "/")
	}
	return base + "/" + p.cfg.Bucket + "/" + p.objectKey(key)
}

func (p *Publisher) objectKey(key string) string {
	if strings.Contains(key, "/") {
		return strings.TrimPrefix(path.Clean(key), "/")
	}
	return path.Join(p.cfg.Prefix, key)
}
