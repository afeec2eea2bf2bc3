package grounding

import (
	"fmt"
	"strings"

	"grounded-rag/internal/models"
)

// FormatEvidence renders evidence as a 1-indexed list for the reasoning prompt.
func FormatEvidence(evidence []models.EvidenceItem) string {
	entries := make([]string, 0, len(evidence))
	for i, item := range evidence {
		var b strings.Builder
		fmt.Fprintf(&b, "[Evidence %d]\n", i+1)
		fmt.Fprintf(&b, "Type: %s\n", item.ContentType)
		fmt.Fprintf(&b, "Page: %d\n", item.PageNumber)
		fmt.Fprintf(&b, "Relevance Score: %.2f\n", item.Score)
		fmt.Fprintf(&b, "Content: %s\n", item.Content)
		if item.ContentType == models.ContentImage && item.ImagePath != "" {
			fmt.Fprintf(&b, "Image Available: Yes (path: %s)\n", item.ImagePath)
		}
		entries = append(entries, b.String())
	}
	return strings.Join(entries, "\n")
}
