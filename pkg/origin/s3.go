package origin

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// S3API is the subset of *s3.Client used by S3Client.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Client fetches objects with the AWS SDK.
type S3Client struct {
	api    S3API
	config Config
	logger zerolog.Logger
}

// NewS3Client loads AWS configuration and creates an S3 origin client.
// Static credentials are used when AccessKey is set, the default chain otherwise.
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		// Retries belong to the resolver; one SDK attempt per Fetch.
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3ClientWithAPI(client, cfg), nil
}

// NewS3ClientWithAPI wraps an existing S3 API implementation.
func NewS3ClientWithAPI(api S3API, cfg Config) *S3Client {
	return &S3Client{
		api:    api,
		config: cfg.withDefaults(),
		logger: log.With().Str("component", "origin-s3").Str("bucket", cfg.Bucket).Logger(),
	}
}

// Fetch performs a single GetObject for key.
func (c *S3Client) Fetch(ctx context.Context, key string) (*asset.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(c.config.objectKey(key)),
	})
	if err != nil {
		class := classifyS3Error(ctx, err)
		c.logger.Debug().Err(err).Str("key", key).Str("error_class", string(class)).Msg("GetObject failed")
		return nil, newError(class, key, 0, err)
	}
	defer out.Body.Close()

	data, err := readBody(out.Body, c.config.MaxObjectBytes)
	if err != nil {
		return nil, newError(classifyTransportError(ctx, err), key, 0, fmt.Errorf("read object body: %w", err))
	}

	return asset.New(data, contentTypeOf(key, aws.ToString(out.ContentType)), aws.ToTime(out.LastModified)), nil
}

// authErrorCodes are S3 error codes that indicate bad or missing credentials.
var authErrorCodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
	"AllAccessDisabled":     true,
}

func classifyS3Error(ctx context.Context, err error) ErrorClass {
	if isErrorType[*s3types.NoSuchKey](err) || isErrorType[*s3types.NotFound](err) {
		return ErrorClassNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "NoSuchKey" || code == "NotFound":
			return ErrorClassNotFound
		case authErrorCodes[code]:
			return ErrorClassAuth
		}
	}

	return classifyTransportError(ctx, err)
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
