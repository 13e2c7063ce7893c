// Package blob moves large inline attachments out of message rows and into
// S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// ErrNotDataURI is returned by ParseDataURI for anything that is not a
// base64 data URI.
var ErrNotDataURI = errors.New("not a base64 data URI")

// Config describes the bucket and the offload policy.
type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Threshold is the decoded payload size, in bytes, above which an
	// attachment is offloaded. Zero or less disables offload.
	Threshold       int
	PresignValidity time.Duration
}

// Offloader uploads oversized data URIs and replaces them with presigned
// GET URLs. It is safe for concurrent use.
type Offloader struct {
	cfg Config
	log logging.Logger
	now func() time.Time

	mu      sync.Mutex
	client  *s3.Client
	presign *s3.PresignClient
}

func New(cfg Config, log logging.Logger) *Offloader {
	if cfg.PresignValidity <= 0 {
		cfg.PresignValidity = 24 * time.Hour
	}
	return &Offloader{cfg: cfg, log: log.With("module", "blob"), now: time.Now}
}

// Enabled reports whether any attachment can be offloaded at all.
func (o *Offloader) Enabled() bool {
	return o != nil && o.cfg.Threshold > 0
}

// StorageKey builds a fresh object key under attachments/YYYY/M/D/.
func StorageKey(at time.Time) string {
	return fmt.Sprintf("attachments/%d/%d/%d/%v", at.Year(), at.Month(), at.Day(), uuid.New())
}

// ParseDataURI splits "data:<mime>;base64,<payload>" and decodes the payload.
func ParseDataURI(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURI, err)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, data, nil
}

// Offload returns the attachment to persist. URLs, small payloads and
// anything that fails to upload come back unchanged.
func (o *Offloader) Offload(ctx context.Context, attachment string) string {
	if !o.Enabled() || len(attachment) <= o.cfg.Threshold {
		return attachment
	}

	mime, data, err := ParseDataURI(attachment)
	if err != nil || len(data) <= o.cfg.Threshold {
		return attachment
	}

	url, err := o.upload(ctx, mime, data)
	if err != nil {
		o.log.Warn(ctx, "attachment offload failed, keeping inline", "size", len(data), "error", err)
		return attachment
	}

	o.log.Debug(ctx, "attachment offloaded", "size", len(data))
	return url
}

func (o *Offloader) upload(ctx context.Context, mime string, data []byte) (string, error) {
	client, presign, err := o.clients(ctx)
	if err != nil {
		return "", err
	}

	bucket := o.cfg.Bucket
	key := StorageKey(o.now())

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mime),
		ContentLength: aws.Int64(int64(len(data))),
	}); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	req, err := presignGetObject(presign, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(o.cfg.PresignValidity))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}

	return req.URL, nil
}

// clients builds the S3 clients on first use. A failed build is retried
// on the next call.
func (o *Offloader) clients(ctx context.Context) (*s3.Client, *s3.PresignClient, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client != nil {
		return o.client, o.presign, nil
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			o.cfg.AccessKey,
			o.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := o.cfg.Endpoint
	o.client = newS3ClientFromConfig(cfg, func(opts *s3.Options) {
		if endpoint != "" {
			opts.BaseEndpoint = aws.String(endpoint)
		}
		opts.UsePathStyle = true
	})
	o.presign = newS3PresignClient(o.client)

	return o.client, o.presign, nil
}
