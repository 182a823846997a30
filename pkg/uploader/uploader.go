// Package uploader turns a frame into a snapshot object in the configured
// store.
package uploader

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/compression"
	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/formats"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
	"github.com/ajitpratap0/sqlsnap/pkg/storage"
)

// Uploader publishes one dataset snapshot and returns its location.
type Uploader interface {
	Upload(ctx context.Context, f *frame.Frame, source, dataset string) (string, error)
}

// Snapshot describes an uploaded object.
type Snapshot struct {
	Source    string
	Dataset   string
	Key       string
	Location  string
	Format    formats.Format
	Rows      int
	Bytes     int64
	CreatedAt time.Time
}

// Observer is notified after every successful upload.
type Observer func(ctx context.Context, s Snapshot)

// SnapshotUploader encodes frames and writes them to a storage.Store.
type SnapshotUploader struct {
	store      storage.Store
	encoder    formats.Encoder
	format     formats.Format
	codec      compression.Algorithm
	compressor compression.Compressor
	prefix     string
	partition  string
	now        func() time.Time
	observers  []Observer
	logger     *zap.Logger
}

// Option configures a SnapshotUploader.
type Option func(*SnapshotUploader)

// WithClock overrides the time source used for keys.
func WithClock(now func() time.Time) Option {
	return func(u *SnapshotUploader) { u.now = now }
}

// WithObserver registers a callback for successful uploads.
func WithObserver(o Observer) Option {
	return func(u *SnapshotUploader) { u.observers = append(u.observers, o) }
}

// New builds an uploader from the storage settings.
func New(store storage.Store, cfg config.StorageConfig, log *zap.Logger, opts ...Option) (*SnapshotUploader, error) {
	format, err := formats.ParseFormat(cfg.Format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid format")
	}
	codec, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
	}
	enc, err := formats.NewEncoder(format, codec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid format")
	}

	u := &SnapshotUploader{
		store:     store,
		encoder:   enc,
		format:    format,
		codec:     codec,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		partition: cfg.Partition,
		now:       time.Now,
		logger:    log,
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}

	if !format.Info().BlockCompressed && codec != compression.None {
		u.compressor, err = compression.NewCompressor(&compression.Config{Algorithm: codec, Level: compression.Default})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression")
		}
	}

	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload implements Uploader.
func (u *SnapshotUploader) Upload(ctx context.Context, f *frame.Frame, source, dataset string) (string, error) {
	if f == nil {
		return "", errors.New(errors.ErrorTypeData, "nothing to upload")
	}
	created := u.now().UTC()

	body, err := u.encode(f)
	if err != nil {
		return "", err
	}

	key := u.Key(source, dataset, created)
	info := u.format.Info()
	obj := storage.Object{
		Key:         key,
		Body:        bytes.NewReader(body),
		Size:        int64(len(body)),
		ContentType: info.MIMEType,
		Metadata: map[string]string{
			"rows":        strconv.Itoa(f.NumRows()),
			"format":      string(u.format),
			"compression": string(u.codec),
			"source":      source,
			"dataset":     dataset,
			"created":     created.Format(time.RFC3339),
		},
	}
	if u.compressor != nil {
		obj.ContentEncoding = u.codec.ContentEncoding()
	}

	location, err := u.store.Put(ctx, obj)
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		Source:    source,
		Dataset:   dataset,
		Key:       key,
		Location:  location,
		Format:    u.format,
		Rows:      f.NumRows(),
		Bytes:     obj.Size,
		CreatedAt: created,
	}
	for _, o := range u.observers {
		o(ctx, snap)
	}
	return location, nil
}

func (u *SnapshotUploader) encode(f *frame.Frame) ([]byte, error) {
	var buf bytes.Buffer

	if u.compressor == nil {
		if err := u.encoder.Encode(&buf, f); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode "+string(u.format))
		}
		return buf.Bytes(), nil
	}

	w, err := u.compressor.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to start compression")
	}
	if err := u.encoder.Encode(w, f); err != nil {
		_ = w.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode "+string(u.format))
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to compress snapshot")
	}
	return buf.Bytes(), nil
}

// Key builds {prefix}/{source}/{dataset}/{partition}/{dataset}_{stamp}{ext}.
func (u *SnapshotUploader) Key(source, dataset string, at time.Time) string {
	at = at.UTC()
	name := fmt.Sprintf("%s_%s%s", dataset, at.Format("20060102_150405"), u.format.Info().FileExtension)
	if u.compressor != nil {
		name += u.codec.Extension()
	}

	parts := make([]string, 0, 5)
	if u.prefix != "" {
		parts = append(parts, u.prefix)
	}
	parts = append(parts, source, dataset)
	if p := partitionPath(u.partition, at); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

func partitionPath(strategy string, at time.Time) string {
	switch strategy {
	case "hourly":
		return fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d", at.Year(), at.Month(), at.Day(), at.Hour())
	case "daily":
		return fmt.Sprintf("year=%d/month=%02d/day=%02d", at.Year(), at.Month(), at.Day())
	case "monthly":
		return fmt.Sprintf("year=%d/month=%02d", at.Year(), at.Month())
	case "yearly":
		return fmt.Sprintf("year=%d", at.Year())
	default:
		return ""
	}
}
