package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
)

// S3Store uploads objects with the S3 transfer manager.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewS3Store loads the default AWS credential chain for cfg.Region. A custom
// endpoint (MinIO, LocalStack) can be set with cfg.Endpoint.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.UploadPartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.UploadPartSize
		}
		if cfg.UploadConcurrency > 0 {
			u.Concurrency = cfg.UploadConcurrency
		}
	})

	return &S3Store{
		bucket:   cfg.Bucket,
		client:   client,
		uploader: uploader,
		logger:   log,
	}, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, obj Object) (string, error) {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(obj.Key),
		Body:        obj.Body,
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpload, "failed to upload to S3")
	}

	location := "s3://" + s.bucket + "/" + obj.Key
	s.logger.Info("snapshot uploaded to S3",
		zap.String("location", location),
		zap.String("url", result.Location),
		zap.Int64("bytes", obj.Size),
		zap.Duration("duration", time.Since(start)))

	return location, nil
}

// Close implements Store.
func (s *S3Store) Close() error {
	return nil
}
