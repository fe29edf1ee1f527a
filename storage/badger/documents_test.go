package badger

import (
	"context"
	"testing"
	"time"

	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocs(t *testing.T) storage.DocumentRepository {
	t.Helper()
	_, docs, backend, err := NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return docs
}

func testDocument(contents string) *core.Document {
	return &core.Document{
		URL:       "https://support.example/" + contents[:4],
		Contents:  contents,
		FetchedAt: time.Now().UTC(),
	}
}

func TestDocumentRepository_AddAndGet(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	added, err := docs.AddDocument(ctx, testDocument("reset your password from the login page"))
	require.NoError(t, err)
	assert.Equal(t, core.IDFromContent(added.Contents), added.Id,
		"documents are keyed by content hash")
	assert.False(t, added.InsertedAt.IsZero())

	got, err := docs.GetDocument(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, added.Contents, got.Contents)
	assert.Equal(t, added.URL, got.URL)
}

func TestDocumentRepository_AddValidates(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	_, err := docs.AddDocument(ctx, &core.Document{URL: "https://x", Contents: ""})
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	_, err = docs.AddDocument(ctx, &core.Document{URL: "", Contents: "text"})
	assert.ErrorIs(t, err, core.ErrEmptyURL)
}

func TestDocumentRepository_GetMissing(t *testing.T) {
	docs := newTestDocs(t)
	_, err := docs.GetDocument(context.Background(), 12345)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_HasDocument(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	added, err := docs.AddDocument(ctx, testDocument("shipping times vary by region"))
	require.NoError(t, err)

	found, err := docs.HasDocument(ctx, added.Id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = docs.HasDocument(ctx, core.IDFromContent("never stored"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDocumentRepository_UpdateVector(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	added, err := docs.AddDocument(ctx, testDocument("warranty covers two years"))
	require.NoError(t, err)
	require.Empty(t, added.Vector)

	vector := []float32{0.1, 0.2, 0.3}
	require.NoError(t, docs.UpdateDocumentVector(ctx, added.Id, vector))

	got, err := docs.GetDocument(ctx, added.Id)
	require.NoError(t, err)
	assert.Equal(t, vector, got.Vector)
	assert.True(t, got.UpdatedAt.After(got.InsertedAt) || got.UpdatedAt.Equal(got.InsertedAt))

	err = docs.UpdateDocumentVector(ctx, 999999, vector)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_ListDocumentIDs(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	ids, err := docs.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	want := make(map[core.ID]bool)
	for _, contents := range []string{"first article", "second article", "third article"} {
		added, err := docs.AddDocument(ctx, testDocument(contents))
		require.NoError(t, err)
		want[added.Id] = true
	}

	ids, err = docs.ListDocumentIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for _, id := range ids {
		assert.True(t, want[id])
	}
}

func TestDocumentRepository_FindSimilar(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	vectors := map[string][]float32{
		"close match":   {1, 0, 0},
		"partial match": {0.7, 0.7, 0},
		"orthogonal":    {0, 0, 1},
	}
	for contents, v := range vectors {
		added, err := docs.AddDocument(ctx, testDocument(contents))
		require.NoError(t, err)
		require.NoError(t, docs.UpdateDocumentVector(ctx, added.Id, v))
	}

	// A document without a vector must be skipped, not matched.
	_, err := docs.AddDocument(ctx, testDocument("not embedded yet"))
	require.NoError(t, err)

	matches, err := docs.FindSimilar(ctx, []float32{1, 0, 0}, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "close match", matches[0].Document.Contents)
	assert.Equal(t, "partial match", matches[1].Document.Contents)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestDocumentRepository_FindSimilarLimit(t *testing.T) {
	docs := newTestDocs(t)
	ctx := context.Background()

	for _, contents := range []string{"a doc", "b doc", "c doc"} {
		added, err := docs.AddDocument(ctx, testDocument(contents))
		require.NoError(t, err)
		require.NoError(t, docs.UpdateDocumentVector(ctx, added.Id, []float32{1, 0}))
	}

	matches, err := docs.FindSimilar(ctx, []float32{1, 0}, 0.0, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = docs.FindSimilar(ctx, []float32{1, 0}, 0.0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}
