package dump

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config describes the bucket and endpoint for NewS3Client and NewS3Store.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional; S3-compatible servers such as MinIO
}

// NewS3Client builds an S3 client from cfg. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "sqmean-env",
			}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// S3Store writes each block to "<prefix><id>.dmp" in a bucket.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	format Format
	closed atomic.Bool
}

// NewS3Store creates an S3-backed store.
//
// Example usage:
//
//	client := dump.NewS3Client(dump.S3Config{Region: "eu-west-1"})
//	store := dump.NewS3Store(client, "my-bucket", "sqmean/", dump.FormatConcat)
func NewS3Store(client S3API, bucket, prefix string, format Format) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		format: format,
	}
}

// Key returns the object key for a connection id.
func (s *S3Store) Key(connID uint64) string {
	return s.prefix + FileName(connID)
}

// Put deletes the existing object for b.ConnID and uploads the new one.
func (s *S3Store) Put(ctx context.Context, b Block) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	key := s.Key(b.ConnID)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return &WriteError{ConnID: b.ConnID, Op: "delete", Err: err}
	}

	payload := Encode(b.Values, s.format)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("text/plain"),
		Metadata: map[string]string{
			"conn-id":     strconv.FormatUint(b.ConnID, 10),
			"format":      s.format.String(),
			"checksum":    Checksum(payload),
			"value-count": strconv.Itoa(len(b.Values)),
		},
	})
	if err != nil {
		return &WriteError{ConnID: b.ConnID, Op: "put", Err: err}
	}
	return nil
}

// Close marks the store closed.
func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}
