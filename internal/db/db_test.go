package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grounded-rag/internal/config"
	"grounded-rag/internal/helper"
	"grounded-rag/internal/models"
)

func initStore(t *testing.T, driver string) *Store {
	t.Helper()
	if testDSN == "" {
		t.Skip("postgres container not available")
	}
	ctx := context.Background()

	sqldb, err := ConnectDB(ctx, &config.DatabaseConfig{Driver: driver, DSN: testDSN})
	require.NoError(t, err, "failed to connect with driver %s", driver)

	table := "chunks_" + driver
	store, err := NewStore(ctx, NewDB(sqldb, true), table, 3)
	require.NoError(t, err, "failed to initialize store")
	t.Cleanup(func() {
		_ = store.DropTable(context.Background())
		_ = store.Close()
	})
	return store
}

func testPoint(t *testing.T, doc, chunkID string, page int, ct models.ContentType, vec []float32) models.Point {
	t.Helper()
	id, err := helper.GenerateUUID()
	require.NoError(t, err)
	return models.Point{
		ID:     id,
		Vector: vec,
		Chunk: models.Chunk{
			ChunkID:     chunkID,
			DocumentID:  doc,
			Content:     "content of " + chunkID,
			ContentType: ct,
			PageNumber:  page,
		},
	}
}

func TestStore(t *testing.T) {
	for _, driver := range []string{config.DriverPgdriver, config.DriverPq, config.DriverPgx} {
		t.Run(driver, func(t *testing.T) {
			store := initStore(t, driver)
			ctx := context.Background()

			img := testPoint(t, "doc_a", "c3", 7, models.ContentImage, []float32{0, 0, 1})
			img.ImagePath = "p7.png"
			img.Metadata = map[string]any{"caption": "chart"}
			points := []models.Point{
				testPoint(t, "doc_a", "c1", 3, models.ContentTable, []float32{1, 0, 0}),
				testPoint(t, "doc_a", "c2", 3, models.ContentText, []float32{0.8, 0.6, 0}),
				img,
				testPoint(t, "doc_b", "c4", 1, models.ContentText, []float32{1, 0, 0}),
			}
			require.NoError(t, store.Upsert(ctx, points))

			t.Run("Search is scoped and ordered by cosine similarity", func(t *testing.T) {
				items, err := store.Query(ctx, []float32{1, 0, 0}, "doc_a", 5)
				require.NoError(t, err)
				require.Len(t, items, 3)
				assert.Equal(t, "c1", items[0].ChunkID)
				assert.Equal(t, "c2", items[1].ChunkID)
				assert.Equal(t, "c3", items[2].ChunkID)
				assert.InDelta(t, 1.0, items[0].Score, 1e-4)
				assert.InDelta(t, 0.8, items[1].Score, 1e-4)
				assert.Equal(t, models.ContentTable, items[0].ContentType)
				assert.Equal(t, "p7.png", items[2].ImagePath)
				assert.Equal(t, "chart", items[2].Metadata["caption"])
			})

			t.Run("Limit bounds results", func(t *testing.T) {
				items, err := store.Query(ctx, []float32{1, 0, 0}, "doc_a", 1)
				require.NoError(t, err)
				assert.Len(t, items, 1)
			})

			t.Run("Info counts points", func(t *testing.T) {
				info, err := store.Info(ctx)
				require.NoError(t, err)
				assert.Equal(t, 4, info.PointsCount)
				assert.Equal(t, config.BackendPgvector, info.Backend)
			})

			t.Run("Delete removes only the target document", func(t *testing.T) {
				require.NoError(t, store.DeleteByDocument(ctx, "doc_a"))
				items, err := store.Query(ctx, []float32{1, 0, 0}, "doc_a", 5)
				require.NoError(t, err)
				assert.Empty(t, items)

				items, err = store.Query(ctx, []float32{1, 0, 0}, "doc_b", 5)
				require.NoError(t, err)
				assert.Len(t, items, 1)
			})
		})
	}
}

func TestConnectDB(t *testing.T) {
	_, err := ConnectDB(context.Background(), &config.DatabaseConfig{Driver: config.DriverPgdriver})
	assert.Error(t, err, "empty dsn must be rejected")

	_, err = ConnectDB(context.Background(), &config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestNewStoreRejectsBadDimension(t *testing.T) {
	_, err := NewStore(context.Background(), nil, "chunks", 0)
	assert.Error(t, err)
}
