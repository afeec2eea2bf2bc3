package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"grounded-rag/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// parseMarkdown keeps GFM tables as table chunks and chunks the remaining
// prose as text. Markdown has no pages; everything is on page 1.
func (p *Parser) parseMarkdown(filePath string) ([]models.Chunk, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	doc := markdown.Parser().Parse(text.NewReader(source))

	var (
		prose  strings.Builder
		tables []models.Chunk
	)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if table, ok := n.(*extast.Table); ok {
			tables = append(tables, models.Chunk{
				ChunkID:     fmt.Sprintf("p%d-t%d", defaultPageNumber, len(tables)+1),
				Content:     tableText(table, source),
				ContentType: models.ContentTable,
				PageNumber:  defaultPageNumber,
			})
			continue
		}
		prose.WriteString(blockText(n, source))
		prose.WriteString("\n")
	}

	return append(p.getChunks(prose.String(), defaultPageNumber, models.ContentText), tables...), nil
}

func blockText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if c.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func tableText(table *extast.Table, source []byte) string {
	var rows []string
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(blockText(cell, source)))
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
	}
	return strings.Join(rows, "\n")
}
