package grounding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"

	"grounded-rag/internal/models"
)

type failingModel struct{ err error }

func (m failingModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, m.err
}

func (m failingModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", m.err
}

type emptyModel struct{}

func (emptyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}

func (emptyModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}

func item(ct models.ContentType, page int, content, image string, score float32) models.EvidenceItem {
	return models.EvidenceItem{
		Chunk: models.Chunk{ChunkID: content, DocumentID: "doc_a", Content: content, ContentType: ct, PageNumber: page, ImagePath: image},
		Score: score,
	}
}

func revenueEvidence() []models.EvidenceItem {
	return []models.EvidenceItem{
		item(models.ContentTable, 3, "Revenue: $5M", "", 0.91),
		item(models.ContentText, 3, "Revenue grew 10%", "", 0.85),
		item(models.ContentImage, 7, "Image on page 7", "p7.png", 0.60),
	}
}

func analyze(t *testing.T, reply string, evidence []models.EvidenceItem) models.GroundedAnswer {
	t.Helper()
	engine := NewEngine(fake.NewFakeLLM([]string{reply}), Options{Temperature: 0.1, MaxTokens: 1500})
	answer, err := engine.Analyze(context.Background(), "What was the revenue?", evidence)
	require.NoError(t, err)
	return answer
}

func TestAnalyze(t *testing.T) {
	t.Run("First citation per page wins and images are suppressed", func(t *testing.T) {
		answer := analyze(t, `{
			"evidence_sufficient": true,
			"relevant_modalities": ["table", "text"],
			"reasoning": "Evidence 1 and 2 state the revenue.",
			"answer": "Revenue was $5M, up 10%.",
			"cited_evidence_ids": [1, 2],
			"confidence": "high"
		}`, revenueEvidence())

		assert.True(t, answer.EvidenceSufficient)
		assert.Equal(t, "Revenue was $5M, up 10%.", answer.Answer)
		assert.Equal(t, "Evidence 1 and 2 state the revenue.", answer.Reasoning)
		assert.Equal(t, models.ConfidenceHigh, answer.Confidence)
		require.Len(t, answer.Citations, 1)
		assert.Equal(t, 3, answer.Citations[0].Page)
		assert.Equal(t, models.ContentTable, answer.Citations[0].ContentType)
		assert.InDelta(t, 0.91, answer.Citations[0].Score, 1e-6)
		assert.Empty(t, answer.Images)
	})

	t.Run("Cited image is suppressed when image modality is not relevant", func(t *testing.T) {
		answer := analyze(t, `{"evidence_sufficient": true, "relevant_modalities": ["text"],
			"answer": "See chart.", "cited_evidence_ids": [3], "confidence": "medium"}`, revenueEvidence())
		assert.Empty(t, answer.Images)
		require.Len(t, answer.Citations, 1)
		assert.Equal(t, 7, answer.Citations[0].Page)
	})

	t.Run("Images follow citation order and are deduplicated", func(t *testing.T) {
		evidence := []models.EvidenceItem{
			item(models.ContentImage, 9, "chart", "p9.png", 0.9),
			item(models.ContentImage, 2, "figure", "p2.png", 0.8),
			item(models.ContentImage, 4, "same figure", "p2.png", 0.7),
			item(models.ContentImage, 5, "no asset", "", 0.6),
			item(models.ContentText, 1, "text", "", 0.5),
		}
		answer := analyze(t, `{"evidence_sufficient": true, "relevant_modalities": ["Image", "text"],
			"answer": "Charts.", "cited_evidence_ids": [2, 1, 3, 4, 5], "confidence": "high"}`, evidence)

		assert.Equal(t, []string{"p2.png", "p9.png"}, answer.Images)
		pages := make([]int, len(answer.Citations))
		for i, c := range answer.Citations {
			pages[i] = c.Page
		}
		assert.Equal(t, []int{1, 2, 4, 5, 9}, pages, "citations sorted ascending by page")
	})

	t.Run("Out of range citations are ignored", func(t *testing.T) {
		answer := analyze(t, `{"evidence_sufficient": true, "relevant_modalities": ["text", "image"],
			"answer": "Partial.", "cited_evidence_ids": [0, -1, 4, 99, 2], "confidence": "low"}`, revenueEvidence())
		require.Len(t, answer.Citations, 1)
		assert.Equal(t, 3, answer.Citations[0].Page)
		assert.Equal(t, models.ContentText, answer.Citations[0].ContentType)
		assert.Empty(t, answer.Images)
	})

	t.Run("Insufficient evidence keeps the refusal text", func(t *testing.T) {
		answer := analyze(t, `{"evidence_sufficient": false, "relevant_modalities": [],
			"reasoning": "Nothing about profit.", "answer": "The document does not mention profit.",
			"cited_evidence_ids": [], "confidence": "low"}`, revenueEvidence())
		assert.False(t, answer.EvidenceSufficient)
		assert.Equal(t, "The document does not mention profit.", answer.Answer)
		assert.Empty(t, answer.Citations)
		assert.NotNil(t, answer.Citations)
	})

	t.Run("Malformed JSON yields the fixed refusal", func(t *testing.T) {
		answer := analyze(t, `The revenue was $5M [1].`, revenueEvidence())
		assert.Equal(t, MalformedRefusal(), answer)
		assert.False(t, answer.EvidenceSufficient)
		assert.Equal(t, models.MalformedAnswer, answer.Answer)
		assert.Equal(t, models.MalformedReasoning, answer.Reasoning)
		assert.Empty(t, answer.Citations)
		assert.Empty(t, answer.Images)
	})

	t.Run("Schema violations yield the fixed refusal", func(t *testing.T) {
		for name, reply := range map[string]string{
			"missing sufficiency flag": `{"answer": "x", "cited_evidence_ids": [1]}`,
			"unknown modality":         `{"evidence_sufficient": true, "relevant_modalities": ["video"], "cited_evidence_ids": [1]}`,
			"string citation ids":      `{"evidence_sufficient": true, "cited_evidence_ids": ["one"]}`,
			"array payload":            `[1, 2, 3]`,
		} {
			t.Run(name, func(t *testing.T) {
				assert.Equal(t, MalformedRefusal(), analyze(t, reply, revenueEvidence()))
			})
		}
	})

	t.Run("Empty model response yields the fixed refusal", func(t *testing.T) {
		answer, err := NewEngine(emptyModel{}, Options{}).Analyze(context.Background(), "q", revenueEvidence())
		require.NoError(t, err)
		assert.Equal(t, MalformedRefusal(), answer)
	})

	t.Run("Backend failure propagates without retry", func(t *testing.T) {
		_, err := NewEngine(failingModel{err: errors.New("connection reset")}, Options{}).
			Analyze(context.Background(), "q", revenueEvidence())
		var transient *models.TransientBackendError
		require.ErrorAs(t, err, &transient)
		assert.Equal(t, "reasoning", transient.Stage)
	})
}

func TestParseDecision(t *testing.T) {
	t.Run("Defaults missing answer and unknown confidence", func(t *testing.T) {
		d, err := ParseDecision(`{"evidence_sufficient": true, "confidence": "certain"}`)
		require.NoError(t, err)
		assert.Equal(t, models.NoAnswerGenerated, d.Answer)
		assert.Equal(t, models.ConfidenceUnknown, d.Confidence)
		assert.Empty(t, d.CitedEvidenceIDs)
	})

	t.Run("Insufficient evidence without an answer explains the refusal", func(t *testing.T) {
		d, err := ParseDecision(`{"evidence_sufficient": false, "reasoning": "Nothing about revenue."}`)
		require.NoError(t, err)
		assert.Equal(t, models.InsufficientAnswer, d.Answer)

		d, err = ParseDecision(`{"evidence_sufficient": false, "answer": "The report omits Q4."}`)
		require.NoError(t, err)
		assert.Equal(t, "The report omits Q4.", d.Answer)
	})

	t.Run("Accepts a fenced payload", func(t *testing.T) {
		d, err := ParseDecision("```json\n{\"evidence_sufficient\": false, \"relevant_modalities\": [\"TABLE\"]}\n```")
		require.NoError(t, err)
		assert.False(t, d.EvidenceSufficient)
		assert.True(t, d.HasModality(models.ContentTable))
		assert.False(t, d.HasModality(models.ContentImage))
	})

	t.Run("Errors are malformed response errors", func(t *testing.T) {
		_, err := ParseDecision("")
		var malformed *models.MalformedResponseError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestFormatEvidence(t *testing.T) {
	out := FormatEvidence(revenueEvidence())

	assert.Contains(t, out, "[Evidence 1]\nType: table\nPage: 3\nRelevance Score: 0.91\nContent: Revenue: $5M\n")
	assert.Contains(t, out, "[Evidence 2]\nType: text\nPage: 3\nRelevance Score: 0.85\nContent: Revenue grew 10%\n")
	assert.Contains(t, out, "[Evidence 3]\nType: image\nPage: 7\nRelevance Score: 0.60\nContent: Image on page 7\nImage Available: Yes (path: p7.png)\n")
	assert.Equal(t, 1, strings.Count(out, "Image Available"), "only image items carry the image flag")
	assert.Empty(t, FormatEvidence(nil))
}

