package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"grounded-rag/internal/config"
	"grounded-rag/internal/models"
)

const (
	defaultChunkSize    = 1000 // runes
	defaultChunkOverlap = 200  // runes
	defaultPageNumber   = 1
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

func OptionsFromConfig(cfg *config.RAGConfig) Options {
	return Options{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap}
}

// Parser splits documents into page-tagged chunks.
type Parser struct {
	opts Options
}

func New(opts Options) *Parser {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(defaultChunkOverlap, opts.ChunkSize/2)
	}
	return &Parser{opts: opts}
}

// ParseFile extracts chunks of documentID from the file at filePath. The
// format is chosen by extension. Spreadsheet sheets become table chunks.
func (p *Parser) ParseFile(filePath, documentID string) ([]models.Chunk, error) {
	var (
		chunks []models.Chunk
		err    error
	)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		chunks, err = p.parsePDF(filePath)
	case ".docx":
		chunks, err = p.parseDOCX(filePath)
	case ".pptx":
		chunks, err = p.parsePPTX(filePath)
	case ".xlsx":
		chunks, err = parseXLSX(filePath)
	case ".ods":
		chunks, err = parseODS(filePath)
	case ".md", ".markdown":
		chunks, err = p.parseMarkdown(filePath)
	case ".txt":
		chunks, err = p.parseText(filePath)
	case ".json", ".yaml", ".yml":
		return LoadChunks(filePath, documentID)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if len(chunks) == 0 {
		return nil, models.ErrEmptyDocument
	}

	for i := range chunks {
		chunks[i].DocumentID = documentID
	}
	log.Debug().Str("file", filePath).Int("chunks", len(chunks)).Msg("Parsed file")
	return chunks, nil
}

func (p *Parser) parsePDF(filePath string) ([]models.Chunk, error) {
	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		chunks = append(chunks, p.getChunks(pageText, i, models.ContentText)...)
	}
	return chunks, nil
}

// DOCX has no page numbers; every chunk is on page 1.
func (p *Parser) parseDOCX(filePath string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var paragraphs []string
	for _, para := range strings.Split(stripXML(r.Editable().GetContent()), "\n") {
		if para = strings.TrimSpace(para); para != "" {
			paragraphs = append(paragraphs, para)
		}
	}
	return p.getChunks(strings.Join(paragraphs, "\n"), defaultPageNumber, models.ContentText), nil
}

// Slides are numbered as pages.
func (p *Parser) parsePPTX(filePath string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	slides := map[int]*zip.File{}
	for _, file := range f.File {
		name := strings.TrimPrefix(file.Name, "ppt/slides/slide")
		if name == file.Name || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue
		}
		slides[n] = file
	}
	numbers := make([]int, 0, len(slides))
	for n := range slides {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var chunks []models.Chunk
	for _, n := range numbers {
		rc, err := slides[n].Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", n, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", n, err)
		}
		chunks = append(chunks, p.getChunks(extractTextFromXML(string(data)), n, models.ContentText)...)
	}
	return chunks, nil
}

func parseXLSX(filePath string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for i, sheet := range f.Sheets {
		rows := make([][]string, 0, len(sheet.Rows))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		if c, ok := sheetChunk(sheet.Name, i+1, rows); ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

func parseODS(filePath string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			log.Warn().Err(err).Str("sheet", name).Msg("Skipping unreadable sheet")
			continue
		}
		if c, ok := sheetChunk(name, i+1, rows); ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// sheetChunk renders a sheet as one pipe-delimited table chunk.
func sheetChunk(name string, page int, rows [][]string) (models.Chunk, bool) {
	var text strings.Builder
	fmt.Fprintf(&text, "Sheet: %s\n", name)
	empty := true
	for _, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		empty = false
		text.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	if empty {
		return models.Chunk{}, false
	}
	return models.Chunk{
		ChunkID:     fmt.Sprintf("p%d-t1", page),
		Content:     strings.TrimSpace(text.String()),
		ContentType: models.ContentTable,
		PageNumber:  page,
		Metadata:    map[string]any{"sheet": name},
	}, true
}

func (p *Parser) parseText(filePath string) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return p.getChunks(string(data), defaultPageNumber, models.ContentText), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// stripXML drops markup tags, turning paragraph ends into newlines.
func stripXML(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	var text strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			text.WriteRune(r)
		}
	}
	return text.String()
}

// chunkContent splits content into windows of at most maxChars runes where
// consecutive windows share overlapChars runes. Breaks prefer whitespace or
// a period within the last tenth of a window.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	runes := []rune(strings.TrimSpace(content))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= maxChars {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+maxChars, n)
		if end < n {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if r := runes[i]; r == ' ' || r == '\n' || r == '.' {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// getChunks cuts content of one page into chunks with ids p<page>-c<n>.
func (p *Parser) getChunks(content string, pageNumber int, ct models.ContentType) []models.Chunk {
	var chunks []models.Chunk
	for i, s := range chunkContent(content, p.opts.ChunkSize, p.opts.ChunkOverlap) {
		chunks = append(chunks, models.Chunk{
			ChunkID:     fmt.Sprintf("p%d-c%d", pageNumber, i+1),
			Content:     s,
			ContentType: ct,
			PageNumber:  pageNumber,
		})
	}
	return chunks
}
