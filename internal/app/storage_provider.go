package app

import (
	"context"
	"fmt"

	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/platform/gcp"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

var newMediaBucket = gcp.NewMediaBucket

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code   StorageProviderBootstrapErrorCode
	Mode   string
	Bucket string
	Cause  error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q bucket=%q): %v",
		e.Code,
		e.Mode,
		e.Bucket,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveMediaStore picks where generated media lives: the bucket when one is
// configured, otherwise inline data URIs. The returned close func is never nil.
func resolveMediaStore(ctx context.Context, log *logger.Logger, cfg gcp.StorageConfig) (pipeline.MediaStore, func() error, error) {
	noop := func() error { return nil }
	if cfg.Bucket == "" {
		log.Info("No media bucket configured; lesson media will be inlined as data URIs")
		return pipeline.InlineStore{}, noop, nil
	}
	if err := cfg.Validate(); err != nil {
		bootErr := &StorageProviderBootstrapError{
			Code:   StorageProviderBootstrapErrorInvalidConfig,
			Mode:   string(cfg.Mode),
			Bucket: cfg.Bucket,
			Cause:  err,
		}
		log.Error("Object storage provider selection failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, noop, bootErr
	}

	log.Info("Selecting object storage provider", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	bucket, err := newMediaBucket(ctx, log, cfg)
	if err != nil {
		bootErr := &StorageProviderBootstrapError{
			Code:   StorageProviderBootstrapErrorConnectFailed,
			Mode:   string(cfg.Mode),
			Bucket: cfg.Bucket,
			Cause:  err,
		}
		log.Error("Object storage provider bootstrap failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, noop, bootErr
	}
	return pipeline.NewBucketStore(bucket), bucket.Close, nil
}
