package blob

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/netx"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Seams for tests; production code never reassigns these.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// Config holds the object-store settings for the uploader.
type Config struct {
	Region       string
	BaseEndpoint string // e.g. http://127.0.0.1:9000/ for MinIO
	Bucket       string
	AccessKey    string
	SecretKey    string
	PresignTTL   time.Duration
	MaxRetries   uint64
}

// S3Uploader implements Uploader over a presigned PUT: the client is built
// once at startup and injected wherever uploads happen.
type S3Uploader struct {
	cfg     Config
	presign *s3.PresignClient
}

// NewS3Uploader builds the S3 client and its presigner.
func NewS3Uploader(ctx context.Context, cfg Config) (*S3Uploader, error) {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Uploader{cfg: cfg, presign: newS3PresignClient(client)}, nil
}

// storageKey spreads uploads by date so buckets stay listable.
func storageKey(folder string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("%s/%d/%d/%d/%v", folder, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Upload reads the staged source file, presigns a PUT and transfers the
// payload with bounded fibonacci backoff. It returns the canonical object
// URL on success.
func (u *S3Uploader) Upload(ctx context.Context, sourceURI, folder string) (string, error) {
	payload, err := os.ReadFile(strings.TrimPrefix(sourceURI, "file://"))
	if err != nil {
		return "", fmt.Errorf("%w: reading staged source: %v", common.ErrUploadFailure, err)
	}

	bucket := u.cfg.Bucket
	key := storageKey(folder)

	req, err := presignPutObject(u.presign, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(u.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("%w: presign: %v", common.ErrUploadFailure, err)
	}

	backoff := retry.WithMaxRetries(u.cfg.MaxRetries, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := netx.UploadToPresignedURL(ctx, req.URL, payload); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: transfer: %v", common.ErrUploadFailure, err)
	}

	return u.objectURL(key), nil
}

func (u *S3Uploader) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(u.cfg.BaseEndpoint, "/"), u.cfg.Bucket, key)
}
