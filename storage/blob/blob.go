// Package blobstore keeps course files in a gocloud.dev bucket.
// The bucket URL picks the driver: "file:///var/lib/foundi", "mem://" or "s3://bucket?region=...".
package blobstore

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/trezcool/foundi/core"
)

// ErrNotFound is returned by Open when the key has no blob.
var ErrNotFound = core.NewNotFoundError("file not found")

type Store struct {
	bk *blob.Bucket
}

var _ core.FileStore = (*Store)(nil) // interface compliance check

func Open(ctx context.Context, bucketURL string) (*Store, error) {
	bk, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %q", bucketURL)
	}
	return &Store{bk: bk}, nil
}

func sanitizeKey(key string) string {
	return strings.TrimLeft(key, "/")
}

// Put stores the content of r under key. Nothing is stored when reading r fails.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bk.NewWriter(ctx, sanitizeKey(key), &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, "creating blob writer")
	}
	if _, err = io.Copy(w, r); err != nil {
		// a canceled writer discards what it got
		cancel()
		_ = w.Close()
		return errors.Wrap(err, "writing blob")
	}
	return errors.Wrap(w.Close(), "closing blob writer")
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rd, err := s.bk.NewReader(ctx, sanitizeKey(key), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "opening blob")
	}
	return rd, nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bk.Delete(ctx, sanitizeKey(key)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return errors.Wrap(err, "deleting blob")
	}
	return nil
}

func (s *Store) Close() error {
	return s.bk.Close()
}
