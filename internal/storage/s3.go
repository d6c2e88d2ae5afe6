package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"

	"github.com/matzegebbe/replicator/internal/failure"
)

// DefaultPartSize is the multipart chunk size used by PutFile.
const DefaultPartSize int64 = 128 * 1024 * 1024

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	PublicURL string
	PartSize  int64
	// PathStyle addresses the bucket as a path segment instead of a host label.
	PathStyle bool
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type fileUploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type s3Store struct {
	cfg      S3Config
	client   objectPutter
	uploader fileUploader
	logger   logr.Logger
}

// NewS3 builds a Store backed by an S3-compatible endpoint such as Tencent COS.
func NewS3(ctx context.Context, cfg S3Config, logger logr.Logger) (Store, error) {
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
		// S3-compatible stores do not all accept the flexible checksum headers.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &s3Store{
		cfg:      cfg,
		client:   client,
		uploader: uploader,
		logger:   logger.WithName("storage").WithValues("bucket", cfg.Bucket),
	}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, body []byte) error {
	full := JoinKey(s.cfg.Prefix, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(full),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return &failure.TransferError{Op: "put object", Target: full, Err: err}
	}
	s.logger.V(1).Info("stored object", "key", full, "size", humanize.IBytes(uint64(len(body))))
	return nil
}

func (s *s3Store) PutFile(ctx context.Context, key, path string) error {
	full := JoinKey(s.cfg.Prefix, key)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
		Body:   f,
	})
	if err != nil {
		return &failure.TransferError{Op: "upload", Target: full, Err: err}
	}
	if out != nil && out.UploadID != "" {
		s.logger.V(1).Info("stored object with multipart upload", "key", full, "uploadID", out.UploadID)
	} else {
		s.logger.V(1).Info("stored object", "key", full)
	}
	return nil
}

func (s *s3Store) URL(key string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + JoinKey(s.cfg.Prefix, key)
}
