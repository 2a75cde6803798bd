package localfs

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/ports"
)

const partSuffix = ".part"

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.ValidationField("object_key", "object_key is required")
	}
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationField("object_key", fmt.Sprintf("object_key %q escapes the storage root", objectKey))
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	p, err := l.path(objectKey)
	if err != nil {
		return ports.ObjectInfo{}, err
	}

	st, err := os.Stat(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return ports.ObjectInfo{}, errors.WrapWithCode(err, errors.CodeNotFound, "localfs.stat", objectKey)
		}
		return ports.ObjectInfo{}, errors.Wrap(err, "localfs.stat", objectKey)
	}
	if st.IsDir() {
		return ports.ObjectInfo{}, errors.Newf(errors.CodeValidation, "%s is a directory", objectKey)
	}

	return ports.ObjectInfo{ObjectKey: objectKey, Size: st.Size(), ModTime: st.ModTime()}, nil
}

// PutObject writes to a sibling .part file and renames it into place once the
// copy and fsync succeed.
func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "localfs.put"

	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "create directory")
	}

	tmp := dst + partSuffix
	outF, err := os.Create(tmp)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "create temp file")
	}

	n, err := io.Copy(outF, in.Reader)
	if err == nil {
		err = outF.Sync()
	}
	if cerr := outF.Close(); err == nil {
		err = cerr
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "write "+in.ObjectKey)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ports.PutObjectOutput{}, errors.Wrap(err, op, "rename "+in.ObjectKey)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, "", 0, errors.WrapWithCode(err, errors.CodeNotFound, "localfs.get", objectKey)
		}
		return nil, "", 0, errors.Wrap(err, "localfs.get", objectKey)
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.WrapWithCode(err, errors.CodeNotFound, "localfs.delete", objectKey)
		}
		return errors.Wrap(err, "localfs.delete", objectKey)
	}
	return nil
}
