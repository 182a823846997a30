package storage

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// GCSStore writes objects to a Cloud Storage bucket.
type GCSStore struct {
	bucket string
	client *storage.Client
	handle *storage.BucketHandle
	logger *zap.Logger
}

// NewGCSStore creates a client from application default credentials, or
// from cfg.CredentialsFile when set.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger, extra ...option.ClientOption) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	opts = append(opts, extra...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create GCS client")
	}

	return &GCSStore{
		bucket: cfg.Bucket,
		client: client,
		handle: client.Bucket(cfg.Bucket),
		logger: log,
	}, nil
}

// Put implements Store.
func (s *GCSStore) Put(ctx context.Context, obj Object) (string, error) {
	start := time.Now()

	w := s.handle.Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.ContentEncoding = obj.ContentEncoding
	w.Metadata = obj.Metadata

	if _, err := io.Copy(w, obj.Body); err != nil {
		_ = w.Close() // Ignore close error
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to write to GCS")
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to close GCS writer")
	}

	location := "gs://" + s.bucket + "/" + obj.Key
	s.logger.Info("snapshot uploaded to GCS",
		zap.String("location", location),
		zap.Int64("bytes", obj.Size),
		zap.Duration("duration", time.Since(start)))

	return location, nil
}

// Close implements Store.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
