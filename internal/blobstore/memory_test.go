package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutOpen(t *testing.T) {
	store := NewMemory("http://localhost:8080/")
	ctx := context.Background()

	url, err := store.Put(ctx, "product_images/u1/1_a.png", "image/png", strings.NewReader("pngbytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/media/"))

	id := strings.TrimPrefix(url, "http://localhost:8080/media/")
	obj, err := store.Open(ctx, id)
	require.NoError(t, err)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, "product_images/u1/1_a.png", obj.Name)

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
