package models

import (
	"fmt"
	"strings"
)

// ContentType is the modality of a chunk.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentTable ContentType = "table"
	ContentImage ContentType = "image"
)

const defaultPageNumber = 1

// ContentTypes lists every valid modality.
var ContentTypes = []ContentType{ContentText, ContentTable, ContentImage}

// ParseContentType rejects anything outside text, table and image.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ContentText, ContentTable, ContentImage:
		return ct, nil
	case "":
		return ContentText, nil
	}
	return "", fmt.Errorf("invalid content type %q", s)
}

// CoerceContentType maps unknown values to text. Used on stored payloads.
func CoerceContentType(s string) ContentType {
	ct, err := ParseContentType(s)
	if err != nil {
		return ContentText
	}
	return ct
}

func (c ContentType) String() string {
	return string(c)
}

// Chunk is one indexed unit of document content.
type Chunk struct {
	ChunkID     string         `json:"chunk_id"`
	DocumentID  string         `json:"document_id"`
	Content     string         `json:"content"`
	ContentType ContentType    `json:"content_type"`
	PageNumber  int            `json:"page_number"`
	ImagePath   string         `json:"image_path,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewChunk builds a validated chunk. Page numbers below 1 become 1.
func NewChunk(chunkID, documentID, content, contentType string, page int, imagePath string, metadata map[string]any) (Chunk, error) {
	ct, err := ParseContentType(contentType)
	if err != nil {
		return Chunk{}, err
	}
	if page < 1 {
		page = defaultPageNumber
	}
	c := Chunk{
		ChunkID:     chunkID,
		DocumentID:  documentID,
		Content:     content,
		ContentType: ct,
		PageNumber:  page,
		ImagePath:   imagePath,
		Metadata:    metadata,
	}
	return c, c.Validate()
}

func (c Chunk) Validate() error {
	if c.ChunkID == "" {
		return fmt.Errorf("chunk id is required")
	}
	if _, err := ParseContentType(string(c.ContentType)); err != nil {
		return err
	}
	if c.PageNumber < 1 {
		return fmt.Errorf("chunk %s: page number must be positive, got %d", c.ChunkID, c.PageNumber)
	}
	if c.ImagePath != "" && c.ContentType != ContentImage {
		return fmt.Errorf("chunk %s: image path set on %s chunk", c.ChunkID, c.ContentType)
	}
	return nil
}

// Point is a chunk paired with its vector and an opaque store id.
type Point struct {
	ID     string
	Vector []float32
	Chunk
}

// EvidenceItem is a chunk returned by a similarity search.
type EvidenceItem struct {
	Chunk
	Score float32 `json:"score"`
}

// IsZeroVector reports whether v is empty or all zeros.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}
