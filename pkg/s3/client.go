package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds S3 configuration. Credentials come from the default AWS chain.
type ClientConfig struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// WithRegion sets the AWS region.
func WithRegion(region string) ClientOption {
	return func(c *ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint points the client at an S3-compatible store such as MinIO.
func WithEndpoint(endpoint string, pathStyle bool) ClientOption {
	return func(c *ClientConfig) {
		c.Endpoint = endpoint
		c.UsePathStyle = pathStyle
	}
}

// Client uploads objects to S3.
type Client struct {
	api putObjectAPI
}

// NewClient loads the default AWS configuration and builds an S3 client.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{Region: "us-east-1"}
	for _, opt := range opts {
		opt(cfg)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Client{api: api}, nil
}

// PutJSON writes body under bucket/key with a JSON content type.
func (c *Client) PutJSON(ctx context.Context, bucket, key string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
