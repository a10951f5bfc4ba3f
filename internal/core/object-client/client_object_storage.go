package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/markdave123-py/contexta-chat/internal/config"
	"github.com/markdave123-py/contexta-chat/internal/core"
)

// S3Client stores document bytes in a single bucket. Content references are
// object keys.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

var _ core.ObjectClient = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg *cfg.Config, log *slog.Logger) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	// Static keys win; otherwise fall back to the default credential chain.
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	log.Info("s3 client ready", "bucket", cfg.BucketName, "region", cfg.AwsRegion)

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.BucketName,
	}, nil
}

func (c *S3Client) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return core.Transient("s3 upload", err)
	}
	return nil
}

func (c *S3Client) GetFile(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, core.NotFoundf("object %s", key)
		}
		return nil, core.Transient("s3 get", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.Transient("s3 read", err)
	}
	return body, nil
}

// DeleteFile removes the object. S3 treats deleting a missing key as success.
func (c *S3Client) DeleteFile(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return core.Transient("s3 delete", err)
	}
	return nil
}
