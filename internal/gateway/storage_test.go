package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectStoreUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewObjectStore(fs, "https://desk.example.com/storage/")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "avatars/u1-1700000000000.png", strings.NewReader("png-bytes")))

	data, err := afero.ReadFile(fs, "avatars/u1-1700000000000.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	assert.Equal(t,
		"https://desk.example.com/storage/avatars/u1-1700000000000.png",
		store.PublicURL("avatars/u1-1700000000000.png"),
	)

	t.Run("never overwrites", func(t *testing.T) {
		err := store.Upload(ctx, "avatars/u1-1700000000000.png", strings.NewReader("other"))
		assert.ErrorIs(t, err, ErrObjectExists)

		data, err := afero.ReadFile(fs, "avatars/u1-1700000000000.png")
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})
}

func TestObjectStoreRejectsBadPaths(t *testing.T) {
	store := NewObjectStore(afero.NewMemMapFs(), "/storage")
	for _, p := range []string{"", "/", "../etc/passwd", "avatars/../../x", `avatars\x.png`} {
		t.Run(p, func(t *testing.T) {
			err := store.Upload(context.Background(), p, strings.NewReader("x"))
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestObjectStoreHonoursCancelledContext(t *testing.T) {
	store := NewObjectStore(afero.NewMemMapFs(), "/storage")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Upload(ctx, "avatars/a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
