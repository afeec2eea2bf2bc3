package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"grounded-rag/internal/helper"
	"grounded-rag/internal/models"
)

// ParseFunc turns a file into chunks of documentID.
type ParseFunc func(path, documentID string) ([]models.Chunk, error)

// IngestService embeds and indexes the chunks of uploaded documents.
type IngestService struct {
	embedder DocumentEmbedder
	indexer  Indexer
	parse    ParseFunc
}

func NewIngestService(embedder DocumentEmbedder, indexer Indexer, parse ParseFunc) *IngestService {
	return &IngestService{embedder: embedder, indexer: indexer, parse: parse}
}

// Ingest validates, embeds and indexes chunks. Chunks whose content is too
// short to embed are counted as skipped.
func (s *IngestService) Ingest(ctx context.Context, documentID string, chunks []models.Chunk) (models.IngestResult, error) {
	fail := func(stage string, err error) (models.IngestResult, error) {
		return models.IngestResult{}, &models.IngestError{Stage: stage, DocumentID: documentID, Err: err}
	}

	if len(chunks) == 0 {
		return fail(models.StageInput, models.ErrEmptyDocument)
	}
	if documentID == "" {
		return fail(models.StageInput, models.NewPreconditionError("ingest", "document id is required"))
	}

	stamped := make([]models.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		switch c.DocumentID {
		case "":
			c.DocumentID = documentID
		case documentID:
		default:
			return fail(models.StageInput, models.NewPreconditionError("ingest",
				"chunk %s belongs to document %s", c.ChunkID, c.DocumentID))
		}
		if c.PageNumber < 1 {
			c.PageNumber = 1
		}
		if err := c.Validate(); err != nil {
			return fail(models.StageInput, models.NewPreconditionError("ingest", "%v", err))
		}
		stamped[i] = c
		texts[i] = c.Content
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fail(models.StageEmbedding, err)
	}

	indexed, err := s.indexer.Add(ctx, stamped, vectors)
	if err != nil {
		return fail(models.StageIndexing, err)
	}

	result := models.IngestResult{
		DocumentID:    documentID,
		ChunksIndexed: indexed,
		ChunksSkipped: len(chunks) - indexed,
	}
	log.Info().
		Str("document_id", documentID).
		Int("indexed", result.ChunksIndexed).
		Int("skipped", result.ChunksSkipped).
		Msg("Ingested document")
	return result, nil
}

// IngestFile parses path under a new document id and ingests the chunks.
func (s *IngestService) IngestFile(ctx context.Context, path string) (models.IngestResult, error) {
	if s.parse == nil {
		return models.IngestResult{}, fmt.Errorf("no parser configured")
	}
	documentID, err := helper.NewDocumentID()
	if err != nil {
		return models.IngestResult{}, err
	}
	chunks, err := s.parse(path, documentID)
	if err != nil {
		return models.IngestResult{}, &models.IngestError{Stage: models.StageInput, DocumentID: documentID, Err: err}
	}
	log.Debug().Str("file", path).Str("document_id", documentID).Int("chunks", len(chunks)).Msg("Parsed document")
	return s.Ingest(ctx, documentID, chunks)
}

func (s *IngestService) DeleteDocument(ctx context.Context, documentID string) error {
	return s.indexer.DeleteDocument(ctx, documentID)
}
