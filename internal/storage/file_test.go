package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlobs_ReadWriteRemove(t *testing.T) {
	ctx := context.Background()
	blobs, err := NewFileBlobs(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = blobs.Read(ctx, "qrCodes_v2")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, blobs.Write(ctx, "qrCodes_v2", []byte(`{"a":1}`)))
	data, err := blobs.Read(ctx, "qrCodes_v2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	require.NoError(t, blobs.Write(ctx, "qrCodes_v2", []byte(`{"a":2}`)))
	data, err = blobs.Read(ctx, "qrCodes_v2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	require.NoError(t, blobs.Remove(ctx, "qrCodes_v2"))
	require.NoError(t, blobs.Remove(ctx, "qrCodes_v2"), "removing twice is not an error")
	_, err = blobs.Read(ctx, "qrCodes_v2")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestFileBlobs_RejectsPathTraversal(t *testing.T) {
	blobs, err := NewFileBlobs(t.TempDir(), 0)
	require.NoError(t, err)

	assert.Error(t, blobs.Write(context.Background(), "../escape", []byte("x")))
}

func TestFileBlobs_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blobs, err := NewFileBlobs(dir, 16)
	require.NoError(t, err)

	require.NoError(t, blobs.Write(ctx, "small", []byte("0123456789")))

	err = blobs.Write(ctx, "other", []byte("0123456789"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Rewriting an existing key only counts its new size
	require.NoError(t, blobs.Write(ctx, "small", []byte("0123456789abcdef")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed writes leave no temp files behind")
}

func TestMemoryBlobs_Quota(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobs(8)

	require.NoError(t, blobs.Write(ctx, "a", []byte("1234")))
	assert.ErrorIs(t, blobs.Write(ctx, "b", []byte("123456")), ErrQuotaExceeded)

	data, err := blobs.Read(ctx, "a")
	require.NoError(t, err)
	data[0] = 'x'
	again, _ := blobs.Read(ctx, "a")
	assert.Equal(t, "1234", string(again), "callers get a copy")
}
