package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// LocalStore writes objects under a directory. Keys map to relative paths.
type LocalStore struct {
	root   string
	logger *zap.Logger
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string, log *zap.Logger) (*LocalStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid local directory")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create local directory")
	}
	return &LocalStore{root: abs, logger: log}, nil
}

// Put implements Store. The object is written to a temporary file and renamed
// into place so readers never see a partial snapshot.
func (s *LocalStore) Put(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "upload cancelled")
	}

	rel := filepath.FromSlash(strings.TrimPrefix(obj.Key, "/"))
	path := filepath.Join(s.root, rel)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrorTypeValidation, "key %q escapes the local directory", obj.Key)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create object directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, obj.Body)
	if err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to write object")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to close object")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to move object into place")
	}

	location := "file://" + filepath.ToSlash(path)
	s.logger.Info("snapshot written",
		zap.String("location", location),
		zap.Int64("bytes", n))

	return location, nil
}

// Close implements Store.
func (s *LocalStore) Close() error {
	return nil
}
