package parser

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"grounded-rag/internal/models"
)

// chunkRecord is one entry of a pre-chunked document file. JSON files decode
// too since YAML is a superset.
type chunkRecord struct {
	ChunkID     string         `yaml:"chunk_id"`
	Content     string         `yaml:"content"`
	ContentType string         `yaml:"content_type"`
	PageNumber  int            `yaml:"page_number"`
	ImagePath   string         `yaml:"image_path"`
	Metadata    map[string]any `yaml:"metadata"`
}

// LoadChunks reads chunks produced by an external layout parser. Every
// chunk is validated and stamped with documentID.
func LoadChunks(filePath, documentID string) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var records []chunkRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode chunk file %s: %w", filePath, err)
	}
	if len(records) == 0 {
		return nil, models.ErrEmptyDocument
	}

	chunks := make([]models.Chunk, 0, len(records))
	seen := make(map[string]bool, len(records))
	for i, r := range records {
		if r.ChunkID == "" {
			r.ChunkID = fmt.Sprintf("chunk-%d", i+1)
		}
		if seen[r.ChunkID] {
			return nil, fmt.Errorf("chunk file %s: duplicate chunk_id %q", filePath, r.ChunkID)
		}
		seen[r.ChunkID] = true

		c, err := models.NewChunk(r.ChunkID, documentID, r.Content, r.ContentType, r.PageNumber, r.ImagePath, r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chunk file %s, entry %d: %w", filePath, i+1, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}
