package stores

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket  string `yaml:"bucket"`
	Key     string `yaml:"key"`
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`

	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `yaml:"endpoint"`

	// Encrypt requests server side encryption.
	Encrypt bool `yaml:"encrypt"`
}

// S3API is the part of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the snapshot in a single S3 object.
type S3Store struct {
	client  S3API
	bucket  string
	key     string
	encrypt bool
}

// NewS3Store creates an S3 backend using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	cfg, err := s3Defaults(cfg)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, cfg)
}

// NewS3StoreWithClient creates an S3 backend using client.
func NewS3StoreWithClient(client S3API, cfg S3Config) (*S3Store, error) {
	cfg, err := s3Defaults(cfg)
	if err != nil {
		return nil, err
	}
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		key:     cfg.Key,
		encrypt: cfg.Encrypt,
	}, nil
}

func s3Defaults(cfg S3Config) (S3Config, error) {
	if cfg.Bucket == "" {
		return cfg, fmt.Errorf("s3 backend requires a bucket")
	}
	if cfg.Key == "" {
		cfg.Key = "installer/resources.snapshot"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// Load downloads the snapshot object.
func (s *S3Store) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) || strings.Contains(err.Error(), "NoSuchKey") {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	return data, nil
}

// Save uploads the snapshot object.
func (s *S3Store) Save(ctx context.Context, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write snapshot to s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// Close implements SnapshotStore.
func (s *S3Store) Close() error {
	return nil
}
