package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"grounded-rag/internal/config"
	"grounded-rag/internal/models"
)

// payload keys stored as chromem metadata
const (
	keyDocumentID  = "document_id"
	keyChunkID     = "chunk_id"
	keyContentType = "content_type"
	keyPageNumber  = "page_number"
	keyImagePath   = "image_path"
	keyMetadata    = "metadata"
)

var errNoEmbedding = errors.New("collection expects precomputed embeddings")

// VectorDBManager keeps chunk points in a chromem-go collection.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	exportPath    string
}

// NewVectorDBManager opens the database and the configured collection.
func NewVectorDBManager(cfg *config.VectorStoreConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		exportPath:    cfg.ExportPath,
	}
	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbedding }
	c, err := m.db.GetOrCreateCollection(collectionName, map[string]string{"space": "cosine"}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

func (m *VectorDBManager) Upsert(ctx context.Context, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		meta, err := toMetadata(p.Chunk)
		if err != nil {
			return err
		}
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Content,
			Metadata:  meta,
			Embedding: p.Vector,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", m.collection.Name).Int("count", len(docs)).Msg("Added documents")
	return nil
}

func (m *VectorDBManager) Query(ctx context.Context, vector []float32, documentID string, limit int) ([]models.EvidenceItem, error) {
	// chromem rejects nResults above the collection size
	n := min(limit, m.collection.Count())
	if n <= 0 {
		return []models.EvidenceItem{}, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
		Where:          map[string]string{keyDocumentID: documentID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	items := make([]models.EvidenceItem, 0, len(results))
	for _, r := range results {
		items = append(items, models.EvidenceItem{
			Chunk: fromMetadata(r.Content, r.Metadata),
			Score: r.Similarity,
		})
	}
	return items, nil
}

func (m *VectorDBManager) DeleteByDocument(ctx context.Context, documentID string) error {
	err := m.collection.Delete(ctx, map[string]string{keyDocumentID: documentID}, nil)
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (m *VectorDBManager) Info(_ context.Context) (models.StoreInfo, error) {
	if m.collection == nil {
		return models.StoreInfo{}, errors.New("collection is not open")
	}
	return models.StoreInfo{
		Name:        m.collection.Name,
		Backend:     config.BackendChromem,
		PointsCount: m.collection.Count(),
		Status:      "green",
	}, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	err := m.db.DeleteCollection(m.collection.Name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Export writes an encrypted backup of the collection.
func (m *VectorDBManager) Export() error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.exportPath == "" {
		return fmt.Errorf("export path is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.exportPath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.exportPath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import restores the collection from a backup written by Export.
func (m *VectorDBManager) Import() error {
	if err := m.db.ImportFromFile(m.exportPath, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.GetOrCreateCollection(m.collection.Name)
	return err
}

// Close is a no-op; persistent collections are written on every change.
func (m *VectorDBManager) Close() error {
	return nil
}

func toMetadata(c models.Chunk) (map[string]string, error) {
	meta := map[string]string{
		keyDocumentID:  c.DocumentID,
		keyChunkID:     c.ChunkID,
		keyContentType: string(c.ContentType),
		keyPageNumber:  strconv.Itoa(c.PageNumber),
	}
	if c.ImagePath != "" {
		meta[keyImagePath] = c.ImagePath
	}
	if len(c.Metadata) > 0 {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: failed to encode metadata: %w", c.ChunkID, err)
		}
		meta[keyMetadata] = string(b)
	}
	return meta, nil
}

func fromMetadata(content string, meta map[string]string) models.Chunk {
	page, err := strconv.Atoi(meta[keyPageNumber])
	if err != nil || page < 1 {
		page = 1
	}
	c := models.Chunk{
		ChunkID:     meta[keyChunkID],
		DocumentID:  meta[keyDocumentID],
		Content:     content,
		ContentType: models.CoerceContentType(meta[keyContentType]),
		PageNumber:  page,
		ImagePath:   meta[keyImagePath],
	}
	if raw := meta[keyMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Metadata); err != nil {
			log.Warn().Err(err).Str("chunk_id", c.ChunkID).Msg("Dropping unreadable chunk metadata")
		}
	}
	return c
}
