package artifact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Put(ctx, "layout/x/pages/page_01.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	t.Run("get returns a copy", func(t *testing.T) {
		data, err := store.Get(ctx, "layout/x/pages/page_01.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), data)

		data[0] = 'X'
		again, err := store.Get(ctx, "layout/x/pages/page_01.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), again)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrObjectNotFound)

		ok, err := store.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("exists", func(t *testing.T) {
		ok, err := store.Exists(ctx, "layout/x/pages/page_01.png")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("presign", func(t *testing.T) {
		url, err := store.PresignGet(ctx, "layout/x/pages/page_01.png", 15*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "memory://layout/x/pages/page_01.png?expires=900", url)

		_, err = store.PresignGet(ctx, "nope", time.Minute)
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "layout/x/pages/page_01.png", []byte("v2"), "image/png"))
		data, err := store.Get(ctx, "layout/x/pages/page_01.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
		assert.Len(t, store.Keys(), 1)
	})
}
