// Package blobstore implements ports.StorageProvider on gocloud.dev/blob, so
// frames can be written to any bucket URL (file://, mem://, s3://, gs://).
package blobstore

import (
	"context"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/ports"
)

// Store is a frame store backed by a blob bucket.
type Store struct {
	bucket *blob.Bucket
	prefix string
}

// New wraps an open bucket. Keys are stored under prefix.
func New(bucket *blob.Bucket, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

// Open opens the bucket at bucketURL. The matching driver must be registered
// by a blank import.
func Open(ctx context.Context, bucketURL string) (*Store, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "blobstore.open", "open bucket "+bucketURL)
	}
	return New(bkt, ""), nil
}

func (s *Store) Provider() string { return "blob" }

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) key(objectKey string) string {
	return s.prefix + objectKey
}

func (s *Store) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(objectKey))
	if err != nil {
		return ports.ObjectInfo{}, mapErr(err, "blobstore.stat", objectKey)
	}
	return ports.ObjectInfo{ObjectKey: objectKey, Size: attrs.Size, ModTime: attrs.ModTime}, nil
}

// PutObject streams into a blob writer. The object only becomes visible when
// the writer closes successfully; a failed copy cancels the write.
func (s *Store) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "blobstore.put"

	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, s.key(in.ObjectKey), &blob.WriterOptions{ContentType: in.ContentType})
	if err != nil {
		return ports.PutObjectOutput{}, mapErr(err, op, in.ObjectKey)
	}

	n, err := io.Copy(w, in.Reader)
	if err != nil {
		cancel()
		_ = w.Close()
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "write "+in.ObjectKey)
	}
	if err := w.Close(); err != nil {
		return ports.PutObjectOutput{}, mapErr(err, op, in.ObjectKey)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (s *Store) GetObject(ctx context.Context, objectKey string) (io.ReadCloser, string, int64, error) {
	r, err := s.bucket.NewReader(ctx, s.key(objectKey), nil)
	if err != nil {
		return nil, "", 0, mapErr(err, "blobstore.get", objectKey)
	}
	return r, r.ContentType(), r.Size(), nil
}

func (s *Store) DeleteObject(ctx context.Context, objectKey string) error {
	if err := s.bucket.Delete(ctx, s.key(objectKey)); err != nil {
		return mapErr(err, "blobstore.delete", objectKey)
	}
	return nil
}

func mapErr(err error, op, objectKey string) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return errors.WrapWithCode(err, errors.CodeNotFound, op, objectKey)
	case gcerrors.PermissionDenied:
		return errors.WrapWithCode(err, errors.CodeForbidden, op, objectKey)
	case gcerrors.Canceled, gcerrors.DeadlineExceeded:
		return errors.Cancelled(err, op)
	default:
		return errors.Wrap(err, op, objectKey)
	}
}
