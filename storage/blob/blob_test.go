package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	key := "/courses/42/algebra.pdf"
	require.NoError(t, s.Put(ctx, key, strings.NewReader("%PDF-1.4"), "application/pdf"))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.True(t, core.IsNotFound(err))

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, key))
}

type brokenReader struct {
	sent bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("client went away")
	}
	r.sent = true
	return copy(p, "half a file"), nil
}

func TestStore_PutFailedUpload(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "mem://")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	key := "courses/42/algebra.pdf"
	err = s.Put(ctx, key, &brokenReader{}, "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client went away")

	_, err = s.Open(ctx, key)
	assert.True(t, core.IsNotFound(err), "nothing is stored")
}
