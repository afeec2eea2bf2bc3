package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"grounded-rag/internal/models"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, documentID string, limit int) ([]models.EvidenceItem, error)
}

type Indexer interface {
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (int, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

type Grounder interface {
	Analyze(ctx context.Context, query string, evidence []models.EvidenceItem) (models.GroundedAnswer, error)
}

type InfoProvider interface {
	Info(ctx context.Context) (models.StoreInfo, error)
}

// Health reports whether the vector store answers.
func Health(ctx context.Context, store InfoProvider) models.Health {
	info, err := store.Info(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Vector store health check failed")
		return models.Health{Status: "degraded", Error: err.Error()}
	}
	return models.Health{Status: "healthy", VectorStore: &info}
}
