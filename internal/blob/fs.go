// Package blob stores uploaded dataset files. Keys are opaque to callers and
// are persisted on the dataset as its file path.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"
)

var (
	ErrNotFound = xerrors.New("blob not found")
	ErrTooLarge = xerrors.New("blob exceeds size limit")
)

// Object is the result of a successful Put.
type Object struct {
	Key  string
	Size int64
}

type Store interface {
	Put(ctx context.Context, field, originalName string, r io.Reader) (Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// FS keeps blobs as flat files under one directory.
type FS struct {
	dir      string
	maxBytes int64
}

var _ Store = (*FS)(nil)

// NewFS creates dir if needed. maxBytes <= 0 disables the size limit.
func NewFS(dir string, maxBytes int64) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Errorf("creating blob dir %s: %w", dir, err)
	}
	return &FS{dir: dir, maxBytes: maxBytes}, nil
}

func (f *FS) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key || key == "." || key == ".." {
		return "", xerrors.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

// Put writes r to a new uniquely named file. A write that fails or exceeds
// the size limit leaves nothing behind.
func (f *FS) Put(ctx context.Context, field, originalName string, r io.Reader) (Object, error) {
	key := fmt.Sprintf("%s-%d-%d%s", field, time.Now().UnixNano(), rand.Int63n(1e9), filepath.Ext(filepath.Base(originalName)))
	p, err := f.path(key)
	if err != nil {
		return Object{}, err
	}

	out, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Object{}, xerrors.Errorf("creating blob: %w", err)
	}

	src := r
	if f.maxBytes > 0 {
		src = io.LimitReader(r, f.maxBytes+1)
	}
	n, err := io.Copy(out, readerWithContext{ctx: ctx, r: src})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && f.maxBytes > 0 && n > f.maxBytes {
		err = xerrors.Errorf("%d bytes over limit %d: %w", n, f.maxBytes, ErrTooLarge)
	}
	if err != nil {
		_ = os.Remove(p)
		return Object{}, xerrors.Errorf("writing blob: %w", err)
	}
	return Object{Key: key, Size: n}, nil
}

func (f *FS) Exists(_ context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, nil
	}
	st, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("stat blob: %w", err)
	}
	return st.Mode().IsRegular(), nil
}

func (f *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrNotFound)
	}
	rc, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, xerrors.Errorf("blob %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("opening blob: %w", err)
	}
	return rc, nil
}

// Remove deletes the blob. Removing a missing blob is not an error.
func (f *FS) Remove(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return xerrors.Errorf("removing blob: %w", err)
	}
	return nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
