package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	ObjectKey string
	Size      int64
}

type ObjectInfo struct {
	ObjectKey string
	Size      int64
	ModTime   time.Time
}

// StorageProvider is the frame store (localfs, blob buckets).
//
// StatObject returns a NOT_FOUND coded error for missing objects.
// PutObject is atomic: readers never observe a partially written object.
type StorageProvider interface {
	Provider() string

	StatObject(ctx context.Context, objectKey string) (ObjectInfo, error)
	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error
}
