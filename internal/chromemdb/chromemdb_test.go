package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grounded-rag/internal/config"
	"grounded-rag/internal/models"
	"grounded-rag/internal/retriever"
)

func newTestManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(&config.VectorStoreConfig{InMemory: true, Collection: "test"})
	require.NoError(t, err, "failed to create in-memory store")
	return m
}

func point(id, doc string, page int, ct models.ContentType, vec []float32) models.Point {
	return models.Point{
		ID:     id,
		Vector: vec,
		Chunk: models.Chunk{
			ChunkID:     "chunk-" + id,
			DocumentID:  doc,
			Content:     "content " + id,
			ContentType: ct,
			PageNumber:  page,
		},
	}
}

func TestVectorDBManager(t *testing.T) {
	ctx := context.Background()

	t.Run("Query on empty collection returns nothing", func(t *testing.T) {
		m := newTestManager(t)
		items, err := m.Query(ctx, []float32{1, 0, 0}, "doc_a", 5)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("Query is scoped to the document and ordered by similarity", func(t *testing.T) {
		m := newTestManager(t)
		require.NoError(t, m.Upsert(ctx, []models.Point{
			point("1", "doc_a", 1, models.ContentText, []float32{1, 0, 0}),
			point("2", "doc_a", 2, models.ContentTable, []float32{0.7, 0.7, 0}),
			point("3", "doc_b", 1, models.ContentText, []float32{1, 0, 0}),
			point("4", "doc_a", 3, models.ContentText, []float32{0, 0, 1}),
		}))

		items, err := m.Query(ctx, []float32{1, 0, 0}, "doc_a", 10)
		require.NoError(t, err)
		require.Len(t, items, 3, "limit above collection size is clamped")
		for _, it := range items {
			assert.Equal(t, "doc_a", it.DocumentID, "results must not cross documents")
		}
		assert.Equal(t, "chunk-1", items[0].ChunkID)
		assert.Equal(t, "chunk-2", items[1].ChunkID)
		assert.Equal(t, models.ContentTable, items[1].ContentType)
		assert.Equal(t, 2, items[1].PageNumber)
		assert.InDelta(t, 1.0, items[0].Score, 1e-5)
		assert.GreaterOrEqual(t, items[0].Score, items[1].Score)
		assert.GreaterOrEqual(t, items[1].Score, items[2].Score)
	})

	t.Run("Payload round-trips image path and metadata", func(t *testing.T) {
		m := newTestManager(t)
		p := point("1", "doc_a", 7, models.ContentImage, []float32{0, 1})
		p.ImagePath = "p7.png"
		p.Metadata = map[string]any{"source": "figure", "width": float64(640)}
		require.NoError(t, m.Upsert(ctx, []models.Point{p}))

		items, err := m.Query(ctx, []float32{0, 1}, "doc_a", 1)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "p7.png", items[0].ImagePath)
		assert.Equal(t, models.ContentImage, items[0].ContentType)
		assert.Equal(t, "figure", items[0].Metadata["source"])
		assert.Equal(t, float64(640), items[0].Metadata["width"])
	})

	t.Run("Delete removes only the target document", func(t *testing.T) {
		m := newTestManager(t)
		require.NoError(t, m.Upsert(ctx, []models.Point{
			point("1", "doc_a", 1, models.ContentText, []float32{1, 0}),
			point("2", "doc_b", 1, models.ContentText, []float32{1, 0}),
		}))
		require.NoError(t, m.DeleteByDocument(ctx, "doc_a"))

		info, err := m.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.PointsCount)
		assert.Equal(t, "test", info.Name)

		items, err := m.Query(ctx, []float32{1, 0}, "doc_a", 5)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("Export and import round-trip", func(t *testing.T) {
		dir := t.TempDir()
		cfg := &config.VectorStoreConfig{
			InMemory:      true,
			Collection:    "backup",
			EncryptionKey: "0123456789abcdef0123456789abcdef",
			ExportPath:    filepath.Join(dir, "backup.chromem"),
		}
		m, err := NewVectorDBManager(cfg)
		require.NoError(t, err)
		require.NoError(t, m.Upsert(ctx, []models.Point{point("1", "doc_a", 1, models.ContentText, []float32{1, 0})}))
		require.NoError(t, m.Export())

		restored, err := NewVectorDBManager(cfg)
		require.NoError(t, err)
		require.NoError(t, restored.Import())
		info, err := restored.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.PointsCount)
	})

	t.Run("Export requires an encryption key", func(t *testing.T) {
		assert.Error(t, newTestManager(t).Export())
	})
}

func TestRetrieverOverChromem(t *testing.T) {
	ctx := context.Background()
	r := retriever.New(newTestManager(t))

	chunks := []models.Chunk{
		{ChunkID: "c1", DocumentID: "doc_a", Content: "Revenue grew 10%", ContentType: models.ContentText, PageNumber: 3},
		{ChunkID: "c2", DocumentID: "doc_a", Content: "tiny", ContentType: models.ContentText, PageNumber: 4},
	}
	n, err := r.Add(ctx, chunks, [][]float32{{1, 0}, {0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := r.Search(ctx, []float32{0.5, 0.5}, "doc_a", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ChunkID, "zero-vector chunk must not be retrievable")
}
