// Package archive keeps optional off-site copies of snapshot payloads in
// S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds S3-compatible storage configuration. Passphrase is optional;
// when set, archives are encrypted before upload.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
}

// Enabled reports whether the configuration is complete enough to upload.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

const (
	keyPrefix = "snapshots"
	extPlain  = ".json.zst"
	extSealed = ".json.zst.enc"
)

// Store uploads and fetches compressed snapshot payloads.
type Store struct {
	client     s3Client
	bucket     string
	passphrase string
	logger     *slog.Logger
}

// New returns nil when cfg is not Enabled.
func New(cfg Config, logger *slog.Logger) *Store {
	if !cfg.Enabled() {
		return nil
	}
	return newStore(newS3Client(cfg), cfg, logger)
}

func newStore(client s3Client, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		passphrase: cfg.Passphrase,
		logger:     logger.With("component", "archive"),
	}
}

func newS3Client(cfg Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Key returns the object key for a backup.
func (s *Store) Key(tenantID int64, backupID string) string {
	ext := extPlain
	if s.passphrase != "" {
		ext = extSealed
	}
	return fmt.Sprintf("%s/%d/%s%s", keyPrefix, tenantID, backupID, ext)
}

// Archive compresses payload, seals it when a passphrase is configured and
// uploads it. It returns the object key.
func (s *Store) Archive(ctx context.Context, tenantID int64, backupID string, payload []byte) (string, error) {
	body, err := compress(payload)
	if err != nil {
		return "", err
	}
	if s.passphrase != "" {
		if body, err = seal(body, s.passphrase); err != nil {
			return "", fmt.Errorf("seal archive: %w", err)
		}
	}

	key := s.Key(tenantID, backupID)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	s.logger.Info("snapshot archived", "key", key, "bytes", len(body), "raw_bytes", len(payload))
	return key, nil
}

// Fetch downloads key and returns the original payload.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if strings.HasSuffix(key, extSealed) {
		if s.passphrase == "" {
			return nil, fmt.Errorf("archive %s is encrypted but no passphrase is configured", key)
		}
		if body, err = open(body, s.passphrase); err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}
	return decompress(body)
}

func compress(payload []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decompress(body []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress archive: %w", err)
	}
	return out, nil
}
