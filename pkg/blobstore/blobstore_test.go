package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro-ai/inquiro/pkg/config"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "silver/chunks/c1.json", []byte(`{"chunk_id":"c1"}`)))

	data, err := store.Get(ctx, "silver/chunks/c1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"chunk_id":"c1"}`, string(data))
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "silver/chunks/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "silver/chunks/b.json", []byte("{}")))
	require.NoError(t, store.Put(ctx, "silver/chunks/a.json", []byte("{}")))
	require.NoError(t, store.Put(ctx, "gold/reports/t1.json", []byte("{}")))

	keys, err := store.List(ctx, "silver/chunks/")
	require.NoError(t, err)
	assert.Equal(t, []string{"silver/chunks/a.json", "silver/chunks/b.json"}, keys)

	keys, err = store.List(ctx, "bronze/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := []byte("original")
	require.NoError(t, store.Put(ctx, "k", original))
	original[0] = 'X'

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	data[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "silver/chunks/abc-123.json", ChunkKey("abc-123"))
	assert.Equal(t, "gold/reports/task-9.json", ReportKey("task-9"))
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, &config.Config{BlobProvider: config.BlobProviderMemory})
	require.NoError(t, err)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)

	_, err = New(ctx, &config.Config{BlobProvider: "gcs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown blob provider")

	_, err = New(ctx, &config.Config{BlobProvider: config.BlobProviderS3})
	require.Error(t, err) // missing bucket
}
