package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveAndLoadImage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	image := []byte{0xb7, 0x00, 0x00, 0x00, 0x2a, 0x00, 0x00, 0x00}
	require.NoError(t, st.SaveImage(ctx, "ram.0", image))

	got, err := st.LoadImage(ctx, "ram.0")
	require.NoError(t, err)
	assert.Equal(t, image, got)
}

func TestLoadImageNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.LoadImage(context.Background(), "ram.9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveImageReplacesPrevious(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveImage(ctx, "ram.0", []byte{1, 2, 3}))
	require.NoError(t, st.SaveImage(ctx, "ram.0", []byte{4, 5, 6, 7}))

	got, err := st.LoadImage(ctx, "ram.0")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5, 6, 7}, got)
}

func TestSlotsAreIndependent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveImage(ctx, "ram.0", []byte{0xaa}))
	require.NoError(t, st.SaveImage(ctx, "ram.1", []byte{0xbb}))

	got0, err := st.LoadImage(ctx, "ram.0")
	require.NoError(t, err)
	got1, err := st.LoadImage(ctx, "ram.1")
	require.NoError(t, err)

	assert.Equal(t, []byte{0xaa}, got0)
	assert.Equal(t, []byte{0xbb}, got1)
}

func TestListImages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveImage(ctx, "ram.1", []byte{1, 2}))
	require.NoError(t, st.SaveImage(ctx, "ram.0", []byte{1, 2, 3}))

	infos, err := st.ListImages(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "ram.0", infos[0].Slot)
	assert.Equal(t, 3, infos[0].Size)
	assert.Equal(t, "ram.1", infos[1].Slot)
	assert.Equal(t, 2, infos[1].Size)
	assert.False(t, infos[0].UpdatedAt.IsZero())
}
