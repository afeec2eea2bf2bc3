package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"grounded-rag/internal/config"
	"grounded-rag/internal/models"
)

// ChunkRecord is one indexed chunk row.
type ChunkRecord struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID          string          `bun:"id,pk,type:uuid"`
	DocumentID  string          `bun:"document_id,notnull"`
	ChunkID     string          `bun:"chunk_id,notnull"`
	Content     string          `bun:"content,notnull"`
	ContentType string          `bun:"content_type,notnull"`
	PageNumber  int             `bun:"page_number,notnull"`
	ImagePath   string          `bun:"image_path,nullzero"`
	Metadata    map[string]any  `bun:"metadata,type:jsonb"`
	Embedding   pgvector.Vector `bun:"embedding,type:vector"`

	Score float64 `bun:"score,scanonly"`
}

// ConnectDB opens a database handle with the configured driver.
func ConnectDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var sqldb *sql.DB
	var err error
	switch cfg.Driver {
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		sqldb = sql.OpenDB(pgdriver.NewConnector(opts...))
	case config.DriverPq, config.DriverPgx:
		sqldb, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return sqldb, nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Store keeps chunk points in a pgvector table and searches by cosine distance.
type Store struct {
	db    *bun.DB
	table string
	dim   int
}

// NewStore creates the table and indexes for vectors of size dim if missing.
func NewStore(ctx context.Context, db *bun.DB, table string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	s := &Store{db: db, table: table, dim: dim}
	if err := s.InitDB(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) InitDB(ctx context.Context) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{"CREATE EXTENSION IF NOT EXISTS vector", nil},
		{`CREATE TABLE IF NOT EXISTS ? (
			id uuid PRIMARY KEY,
			document_id text NOT NULL,
			chunk_id text NOT NULL,
			content text NOT NULL,
			content_type text NOT NULL,
			page_number integer NOT NULL,
			image_path text,
			metadata jsonb,
			embedding vector(?) NOT NULL
		)`, []any{bun.Ident(s.table), s.dim}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? (document_id)", []any{bun.Ident(s.table + "_document_id_idx"), bun.Ident(s.table)}},
		{"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops)", []any{bun.Ident(s.table + "_embedding_idx"), bun.Ident(s.table)}},
	}
	for _, st := range stmts {
		if _, err := s.db.NewRaw(st.query, st.args...).Exec(ctx); err != nil {
			return fmt.Errorf("failed to initialize table %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *Store) model() string {
	return "? AS c"
}

func (s *Store) Upsert(ctx context.Context, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	records := make([]ChunkRecord, len(points))
	for i, p := range points {
		records[i] = ChunkRecord{
			ID:          p.ID,
			DocumentID:  p.DocumentID,
			ChunkID:     p.ChunkID,
			Content:     p.Content,
			ContentType: string(p.ContentType),
			PageNumber:  p.PageNumber,
			ImagePath:   p.ImagePath,
			Metadata:    p.Metadata,
			Embedding:   pgvector.NewVector(p.Vector),
		}
	}

	_, err := s.db.NewInsert().
		Model(&records).
		ModelTableExpr("?", bun.Ident(s.table)).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	log.Debug().Str("table", s.table).Int("count", len(records)).Msg("Stored chunks")
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, documentID string, limit int) ([]models.EvidenceItem, error) {
	query := pgvector.NewVector(vector)
	var records []ChunkRecord
	err := s.db.NewSelect().
		Model(&records).
		ModelTableExpr(s.model(), bun.Ident(s.table)).
		ColumnExpr("c.id, c.document_id, c.chunk_id, c.content, c.content_type, c.page_number, c.image_path, c.metadata").
		ColumnExpr("1 - (c.embedding <=> ?) AS score", query).
		Where("c.document_id = ?", documentID).
		OrderExpr("c.embedding <=> ?", query).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	items := make([]models.EvidenceItem, 0, len(records))
	for _, r := range records {
		page := r.PageNumber
		if page < 1 {
			page = 1
		}
		items = append(items, models.EvidenceItem{
			Chunk: models.Chunk{
				ChunkID:     r.ChunkID,
				DocumentID:  r.DocumentID,
				Content:     r.Content,
				ContentType: models.CoerceContentType(r.ContentType),
				PageNumber:  page,
				ImagePath:   r.ImagePath,
				Metadata:    r.Metadata,
			},
			Score: float32(r.Score),
		})
	}
	return items, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.NewDelete().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr(s.model(), bun.Ident(s.table)).
		Where("c.document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (s *Store) Info(ctx context.Context) (models.StoreInfo, error) {
	count, err := s.db.NewSelect().
		Model((*ChunkRecord)(nil)).
		ModelTableExpr(s.model(), bun.Ident(s.table)).
		Count(ctx)
	if err != nil {
		return models.StoreInfo{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	return models.StoreInfo{
		Name:        s.table,
		Backend:     config.BackendPgvector,
		PointsCount: count,
		Status:      "green",
	}, nil
}

// DropTable removes the chunk table.
func (s *Store) DropTable(ctx context.Context) error {
	_, err := s.db.NewRaw("DROP TABLE IF EXISTS ?", bun.Ident(s.table)).Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
