package storage

import (
	"context"
	"fmt"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"renderpull/internal/adapters/storage/blobstore"
	"renderpull/internal/adapters/storage/localfs"
	"renderpull/internal/config"
)

// NewProvider builds the frame store selected by cfg. The returned close
// function releases provider resources and is never nil.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Provider {
	case "", "localfs":
		root := cfg.Root
		if root == "" {
			root = "."
		}
		return localfs.New(root), noop, nil

	case "blob":
		if cfg.BucketURL == "" {
			return nil, noop, fmt.Errorf("storage: bucket_url is required for the blob provider")
		}
		store, err := blobstore.Open(ctx, cfg.BucketURL)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
