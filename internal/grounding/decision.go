package grounding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"grounded-rag/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decision is a validated reasoning result.
type Decision struct {
	EvidenceSufficient bool
	RelevantModalities []models.ContentType
	Reasoning          string
	Answer             string
	CitedEvidenceIDs   []int
	Confidence         models.Confidence
}

// HasModality reports whether ct was declared relevant.
func (d Decision) HasModality(ct models.ContentType) bool {
	for _, m := range d.RelevantModalities {
		if m == ct {
			return true
		}
	}
	return false
}

type rawDecision struct {
	EvidenceSufficient *bool    `json:"evidence_sufficient" validate:"required"`
	RelevantModalities []string `json:"relevant_modalities" validate:"dive,oneof=text table image"`
	Reasoning          string   `json:"reasoning"`
	Answer             *string  `json:"answer"`
	CitedEvidenceIDs   []int    `json:"cited_evidence_ids"`
	Confidence         string   `json:"confidence"`
}

// ParseDecision validates an untrusted reasoning payload. Any failure is
// returned as a *models.MalformedResponseError.
func ParseDecision(payload string) (Decision, error) {
	body := stripFence(payload)
	if body == "" {
		return Decision{}, &models.MalformedResponseError{Err: errors.New("empty payload")}
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Decision{}, &models.MalformedResponseError{Err: err}
	}
	for i, m := range raw.RelevantModalities {
		raw.RelevantModalities[i] = strings.ToLower(strings.TrimSpace(m))
	}
	if err := validate.Struct(raw); err != nil {
		return Decision{}, &models.MalformedResponseError{Err: fmt.Errorf("schema: %w", err)}
	}

	d := Decision{
		EvidenceSufficient: *raw.EvidenceSufficient,
		Reasoning:          raw.Reasoning,
		Answer:             models.NoAnswerGenerated,
		CitedEvidenceIDs:   raw.CitedEvidenceIDs,
		Confidence:         models.ParseConfidence(raw.Confidence),
	}
	switch {
	case raw.Answer != nil && strings.TrimSpace(*raw.Answer) != "":
		d.Answer = *raw.Answer
	case !d.EvidenceSufficient:
		// a refusal must still say why
		d.Answer = models.InsufficientAnswer
	}
	for _, m := range raw.RelevantModalities {
		d.RelevantModalities = append(d.RelevantModalities, models.ContentType(m))
	}
	return d, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
