package proofs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PutGet(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := l.Put(ctx, "receipt.JPEG", "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "proofs/"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	got, err := l.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(got))

	other, err := l.Put(ctx, "receipt.jpg", "image/jpeg", []byte("second"))
	require.NoError(t, err)
	assert.NotEqual(t, ref, other)
}

func TestLocal_UnknownTypeKeepsExtension(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ref, err := l.Put(context.Background(), "scan.HEIC", "image/heic", []byte("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".heic"))
}

func TestLocal_GetRejectsOutsideRefs(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, ref := range []string{"proofs/missing.png", "../etc/passwd", "proofs/../../secret", "other/file.png"} {
		_, err := l.Get(ctx, ref)
		assert.ErrorIs(t, err, ErrNotFound, ref)
	}
}
