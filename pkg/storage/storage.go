// Package storage puts snapshot objects into an object store.
package storage

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// Object is one snapshot ready for upload.
type Object struct {
	Key             string
	Body            io.Reader
	Size            int64
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// Store writes objects and returns their location.
type Store interface {
	// Put uploads obj and returns a location such as s3://bucket/key.
	Put(ctx context.Context, obj Object) (string, error)
	// Close releases client resources.
	Close() error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "storage"), zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg, log)
	case "gcs":
		return NewGCSStore(ctx, cfg, log)
	case "local":
		return NewLocalStore(cfg.LocalDir, log)
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported storage backend %q", cfg.Backend)
	}
}
