package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	t.Cleanup(func() { bucket.Close() })
	return New(bucket, "renders/")
}

func TestPutStatGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	out, err := store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "scene_640x480_0007.png",
		ContentType: "image/png",
		Reader:      strings.NewReader("png-bytes"),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if out.Size != 9 {
		t.Errorf("expected size 9, got %d", out.Size)
	}

	info, err := store.StatObject(ctx, "scene_640x480_0007.png")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if info.Size != 9 {
		t.Errorf("expected stat size 9, got %d", info.Size)
	}

	exists, err := store.bucket.Exists(ctx, "renders/scene_640x480_0007.png")
	if err != nil || !exists {
		t.Errorf("expected object under prefix, exists=%v err=%v", exists, err)
	}

	rc, ct, size, err := store.GetObject(ctx, "scene_640x480_0007.png")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" || size != 9 || ct != "image/png" {
		t.Errorf("unexpected object %q size=%d ct=%s", data, size, ct)
	}
}

func TestStatMissing(t *testing.T) {
	_, err := newTestStore(t).StatObject(context.Background(), "nope.png")
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestFailedPutIsNotVisible(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.PutObject(ctx, ports.PutObjectInput{
		ObjectKey: "broken.png",
		Reader:    io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(io.ErrUnexpectedEOF)),
	})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}

	if _, err := store.StatObject(ctx, "broken.png"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("expected aborted object to be absent, got %v", err)
	}
}

func TestDeleteObject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.PutObject(ctx, ports.PutObjectInput{ObjectKey: "d.png", Reader: strings.NewReader("d")}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := store.DeleteObject(ctx, "d.png"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if err := store.DeleteObject(ctx, "d.png"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
