package grounding

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"grounded-rag/internal/llmservice"
	"grounded-rag/internal/models"
)

type state string

const (
	stateStructuring state = "structuring"
	stateDeciding    state = "deciding"
	stateAssembling  state = "assembling"
	stateDone        state = "done"
	stateRefused     state = "refused"
)

type Options struct {
	Temperature float64
	MaxTokens   int
}

// Engine turns a query and its evidence into a grounded answer with one
// reasoning call. Malformed decisions end in a fixed refusal.
type Engine struct {
	model llms.Model
	opts  Options
}

func NewEngine(model llms.Model, opts Options) *Engine {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1500
	}
	return &Engine{model: model, opts: opts}
}

// Analyze returns an error only when the reasoning backend cannot be reached.
func (e *Engine) Analyze(ctx context.Context, query string, evidence []models.EvidenceItem) (models.GroundedAnswer, error) {
	logger := log.With().Int("evidence", len(evidence)).Logger()

	logger.Debug().Str("state", string(stateStructuring)).Msg("Grounding query")
	structured := FormatEvidence(evidence)

	logger.Debug().Str("state", string(stateDeciding)).Msg("Grounding query")
	payload, err := llmservice.GenerateJSON(ctx, e.model,
		models.AgentSystemPrompt,
		fmt.Sprintf(models.AgentUserPromptTemplate, query, structured),
		e.opts.Temperature, e.opts.MaxTokens,
	)
	if err != nil && !errors.Is(err, llmservice.ErrEmptyResponse) {
		return models.GroundedAnswer{}, &models.TransientBackendError{Stage: "reasoning", Err: err}
	}

	decision, err := ParseDecision(payload)
	if err != nil {
		logger.Warn().Err(err).Str("state", string(stateRefused)).Msg("Reasoning response rejected")
		return MalformedRefusal(), nil
	}

	logger.Debug().Str("state", string(stateAssembling)).Ints("cited", decision.CitedEvidenceIDs).Msg("Grounding query")
	answer := models.GroundedAnswer{
		Answer:             decision.Answer,
		Citations:          buildCitations(evidence, decision.CitedEvidenceIDs),
		Images:             collectImages(evidence, decision),
		Reasoning:          decision.Reasoning,
		EvidenceSufficient: decision.EvidenceSufficient,
		Confidence:         decision.Confidence,
	}
	logger.Debug().
		Str("state", string(stateDone)).
		Bool("sufficient", answer.EvidenceSufficient).
		Int("citations", len(answer.Citations)).
		Int("images", len(answer.Images)).
		Msg("Grounding query")
	return answer, nil
}

// MalformedRefusal is the fixed answer for an unusable reasoning response.
func MalformedRefusal() models.GroundedAnswer {
	return models.Refusal(models.MalformedAnswer, models.MalformedReasoning, models.ConfidenceUnknown)
}

// cited returns the evidence items behind ids, in citation order. Ids outside
// [1, len(evidence)] are ignored.
func cited(evidence []models.EvidenceItem, ids []int) []models.EvidenceItem {
	out := make([]models.EvidenceItem, 0, len(ids))
	for _, id := range ids {
		if id < 1 || id > len(evidence) {
			continue
		}
		out = append(out, evidence[id-1])
	}
	return out
}

// buildCitations keeps the first citation per page, sorted by page.
func buildCitations(evidence []models.EvidenceItem, ids []int) []models.Citation {
	seen := make(map[int]bool)
	citations := []models.Citation{}
	for _, item := range cited(evidence, ids) {
		if seen[item.PageNumber] {
			continue
		}
		seen[item.PageNumber] = true
		citations = append(citations, models.Citation{
			Page:        item.PageNumber,
			ContentType: item.ContentType,
			Score:       item.Score,
		})
	}
	slices.SortStableFunc(citations, func(a, b models.Citation) int {
		return a.Page - b.Page
	})
	return citations
}

// collectImages returns cited image paths only when images were declared relevant.
func collectImages(evidence []models.EvidenceItem, d Decision) []string {
	images := []string{}
	if !d.HasModality(models.ContentImage) {
		return images
	}
	seen := make(map[string]bool)
	for _, item := range cited(evidence, d.CitedEvidenceIDs) {
		if item.ContentType != models.ContentImage || item.ImagePath == "" || seen[item.ImagePath] {
			continue
		}
		seen[item.ImagePath] = true
		images = append(images, item.ImagePath)
	}
	return images
}
