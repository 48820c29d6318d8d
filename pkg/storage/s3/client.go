package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/assuredfarming/assured-farming-backend/pkg/awsconfig"
	"github.com/assuredfarming/assured-farming-backend/pkg/config"
	"github.com/assuredfarming/assured-farming-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

type objectAPI interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// Client stores generated contract documents in a single bucket.
type Client struct {
	api    objectAPI
	bucket string
	logg   *logger.Logger
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewClient(ctx context.Context, awsCfg config.AWSConfig, cfg config.StorageConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage bucket name is required")
	}

	loaded, err := awsconfig.Load(ctx, awsCfg)
	if err != nil {
		return nil, err
	}

	endpoint := awsconfig.Endpoint(awsCfg)
	api := awss3.NewFromConfig(loaded, func(o *awss3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if logg != nil {
		logg.Info(ctx, "s3 document storage initialized")
	}
	return newWithAPI(api, cfg.Bucket, logg), nil
}

func newWithAPI(api objectAPI, bucket string, logg *logger.Logger) *Client {
	return &Client{api: api, bucket: bucket, logg: logg}
}

func (c *Client) Bucket() string {
	return c.bucket
}

// Upload writes body under key and returns the s3:// reference.
func (c *Client) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("s3 client not initialized")
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}

	_, err := c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", c.bucket, key, err)
	}
	return Ref(c.bucket, key), nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("s3 client not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.api.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", c.bucket, err)
	}
	return nil
}

// Ref formats a bucket/key pair as an s3:// reference.
func Ref(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
