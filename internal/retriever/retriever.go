package retriever

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"grounded-rag/internal/helper"
	"grounded-rag/internal/models"
)

// Store is a vector store backend. Query results are ordered by descending
// cosine similarity and scoped to one document.
type Store interface {
	Upsert(ctx context.Context, points []models.Point) error
	Query(ctx context.Context, vector []float32, documentID string, limit int) ([]models.EvidenceItem, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Info(ctx context.Context) (models.StoreInfo, error)
	Close() error
}

// Retriever runs document-scoped similarity search over a Store and owns the
// zero-vector rules for both reads and writes.
type Retriever struct {
	store Store
}

func New(store Store) *Retriever {
	return &Retriever{store: store}
}

// Search returns at most limit evidence items for documentID. A zero query
// vector returns no results and never reaches the store.
func (r *Retriever) Search(ctx context.Context, vector []float32, documentID string, limit int) ([]models.EvidenceItem, error) {
	if limit <= 0 {
		return nil, models.NewPreconditionError("search", "limit must be positive, got %d", limit)
	}
	if documentID == "" {
		return nil, models.NewPreconditionError("search", "document id is required")
	}
	if models.IsZeroVector(vector) {
		log.Warn().Str("document_id", documentID).Msg("Zero query vector, returning empty results")
		return []models.EvidenceItem{}, nil
	}

	items, err := r.store.Query(ctx, vector, documentID, limit)
	if err != nil {
		return nil, &models.TransientBackendError{Stage: "vector_store", Err: err}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	log.Debug().Str("document_id", documentID).Int("count", len(items)).Msg("Retrieved evidence")
	return items, nil
}

// Add writes one point per chunk and returns how many were written. Chunks
// paired with a zero vector are left out of the index.
func (r *Retriever) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, models.NewPreconditionError("add", "%d chunks but %d vectors", len(chunks), len(vectors))
	}

	points := make([]models.Point, 0, len(chunks))
	for i, chunk := range chunks {
		if models.IsZeroVector(vectors[i]) {
			log.Warn().Str("chunk_id", chunk.ChunkID).Msg("Zero embedding, skipping chunk")
			continue
		}
		chunk.ContentType = models.CoerceContentType(string(chunk.ContentType))
		if chunk.PageNumber < 1 {
			chunk.PageNumber = 1
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return 0, err
		}
		points = append(points, models.Point{ID: id, Vector: vectors[i], Chunk: chunk})
	}

	if len(points) == 0 {
		return 0, nil
	}
	if err := r.store.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return len(points), nil
}

// DeleteDocument removes every point of documentID.
func (r *Retriever) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return models.NewPreconditionError("delete", "document id is required")
	}
	if err := r.store.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	log.Info().Str("document_id", documentID).Msg("Deleted document")
	return nil
}

func (r *Retriever) Info(ctx context.Context) (models.StoreInfo, error) {
	return r.store.Info(ctx)
}
