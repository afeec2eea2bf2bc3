package models

import "strings"

type Confidence string

const (
	ConfidenceHigh    Confidence = "high"
	ConfidenceMedium  Confidence = "medium"
	ConfidenceLow     Confidence = "low"
	ConfidenceUnknown Confidence = "unknown"
)

// ParseConfidence normalises a label, falling back to unknown.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(strings.ToLower(strings.TrimSpace(s))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	return ConfidenceUnknown
}

type Citation struct {
	Page        int         `json:"page"`
	ContentType ContentType `json:"content_type"`
	Score       float32     `json:"score"`
}

// GroundedAnswer is the result of answering one query.
type GroundedAnswer struct {
	Answer             string     `json:"answer"`
	Citations          []Citation `json:"citations"`
	Images             []string   `json:"images"`
	Reasoning          string     `json:"agent_reasoning"`
	EvidenceSufficient bool       `json:"evidence_sufficient"`
	Confidence         Confidence `json:"confidence"`
}

// Refusal builds an answer with no citations or images.
func Refusal(answer, reasoning string, confidence Confidence) GroundedAnswer {
	return GroundedAnswer{
		Answer:     answer,
		Citations:  []Citation{},
		Images:     []string{},
		Reasoning:  reasoning,
		Confidence: confidence,
	}
}

type IngestResult struct {
	DocumentID    string `json:"document_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksSkipped int    `json:"chunks_skipped"`
}

// StoreInfo describes the vector store collection.
type StoreInfo struct {
	Name        string `json:"name"`
	Backend     string `json:"backend"`
	PointsCount int    `json:"points_count"`
	Status      string `json:"status"`
}

type Health struct {
	Status      string     `json:"status"`
	VectorStore *StoreInfo `json:"vector_store,omitempty"`
	Error       string     `json:"error,omitempty"`
}
