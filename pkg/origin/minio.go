package origin

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/asset"
)

// MinIOClient fetches objects from an S3-compatible store with minio-go.
type MinIOClient struct {
	client *minio.Client
	config Config
	logger zerolog.Logger
}

// NewMinIOClient creates a MinIO origin client. Endpoint is host[:port] without scheme.
func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	cfg = cfg.withDefaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for the minio driver")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup(cfg.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOClient{
		client: client,
		config: cfg,
		logger: log.With().Str("component", "origin-minio").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

func bucketLookup(pathStyle bool) minio.BucketLookupType {
	if pathStyle {
		return minio.BucketLookupPath
	}
	return minio.BucketLookupAuto
}

// Fetch performs a single GetObject for key.
func (c *MinIOClient) Fetch(ctx context.Context, key string) (*asset.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	obj, err := c.client.GetObject(ctx, c.config.Bucket, c.config.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, newError(classifyMinIOError(ctx, err), key, 0, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat issues the request and surfaces NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		class := classifyMinIOError(ctx, err)
		c.logger.Debug().Err(err).Str("key", key).Str("error_class", string(class)).Msg("GetObject failed")
		return nil, newError(class, key, minio.ToErrorResponse(err).StatusCode, err)
	}

	data, err := readBody(obj, c.config.MaxObjectBytes)
	if err != nil {
		return nil, newError(classifyTransportError(ctx, err), key, 0, fmt.Errorf("read object body: %w", err))
	}

	return asset.New(data, contentTypeOf(key, info.ContentType), info.LastModified), nil
}

func classifyMinIOError(ctx context.Context, err error) ErrorClass {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket":
		return ErrorClassNotFound
	case authErrorCodes[resp.Code]:
		return ErrorClassAuth
	case resp.StatusCode != 0:
		return classifyStatus(resp.StatusCode)
	}
	return classifyTransportError(ctx, err)
}
