package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"grounded-rag/internal/models"
)

// QueryService answers questions about one indexed document.
type QueryService struct {
	embedder    QueryEmbedder
	searcher    Searcher
	grounder    Grounder
	defaultTopK int
}

func NewQueryService(embedder QueryEmbedder, searcher Searcher, grounder Grounder, defaultTopK int) *QueryService {
	if defaultTopK < 1 || defaultTopK > models.MaxTopK {
		defaultTopK = models.DefaultTopK
	}
	return &QueryService{
		embedder:    embedder,
		searcher:    searcher,
		grounder:    grounder,
		defaultTopK: defaultTopK,
	}
}

// Answer embeds the query, retrieves up to topK evidence items from the
// document and grounds an answer on them. A topK of 0 uses the default.
// When nothing is retrieved the reasoning backend is not called.
func (s *QueryService) Answer(ctx context.Context, query, documentID string, topK int) (models.GroundedAnswer, error) {
	if documentID == "" {
		return models.GroundedAnswer{}, models.NewPreconditionError("answer", "document id is required")
	}
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 1 || topK > models.MaxTopK {
		return models.GroundedAnswer{}, models.NewPreconditionError("answer", "top_k must be within [1, %d], got %d", models.MaxTopK, topK)
	}

	logger := log.With().Str("document_id", documentID).Int("top_k", topK).Logger()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return models.GroundedAnswer{}, fmt.Errorf("failed to embed query: %w", err)
	}

	evidence, err := s.searcher.Search(ctx, vector, documentID, topK)
	if err != nil {
		return models.GroundedAnswer{}, fmt.Errorf("failed to retrieve evidence: %w", err)
	}

	if len(evidence) == 0 {
		logger.Info().Msg("No evidence retrieved")
		return models.Refusal(models.NoEvidenceAnswer, models.NoEvidenceReasoning, models.ConfidenceLow), nil
	}

	answer, err := s.grounder.Analyze(ctx, query, evidence)
	if err != nil {
		return models.GroundedAnswer{}, fmt.Errorf("failed to ground answer: %w", err)
	}
	logger.Info().
		Int("evidence", len(evidence)).
		Bool("sufficient", answer.EvidenceSufficient).
		Str("confidence", string(answer.Confidence)).
		Msg("Answered query")
	return answer, nil
}
