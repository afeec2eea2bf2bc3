package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"grounded-rag/internal/chromemdb"
	"grounded-rag/internal/config"
	"grounded-rag/internal/db"
	"grounded-rag/internal/embedding"
	"grounded-rag/internal/grounding"
	"grounded-rag/internal/helper"
	"grounded-rag/internal/llmservice"
	"grounded-rag/internal/parser"
	"grounded-rag/internal/rag"
	"grounded-rag/internal/retriever"
)

const configFilePath = "./configs/config.yaml"

type app struct {
	cfg       *config.Config
	store     retriever.Store
	chromem   *chromemdb.VectorDBManager
	retriever *retriever.Retriever
	query     *rag.QueryService
	ingest    *rag.IngestService
}

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a document file to ingest")
	chunksPath := flag.String("chunks", "", "Path to a JSON or YAML chunk file to ingest")
	documentID := flag.String("document", "", "Document id for -query, -chunks and -delete")
	query := flag.String("query", "", "Question to answer about -document")
	topK := flag.Int("top-k", 0, "Number of evidence items to retrieve (default from config)")
	deleteDoc := flag.Bool("delete", false, "Delete -document from the index")
	health := flag.Bool("health", false, "Report vector store health")
	export := flag.Bool("export", false, "Write an encrypted backup of the chromem collection")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log.Level, *debug)
	log.Debug().Str("config", *configPath).Msg("Loaded config")

	actions := 0
	for _, set := range []bool{*filePath != "", *chunksPath != "", *query != "", *deleteDoc, *health, *export} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		log.Fatal().Msg("Provide exactly one of -file, -chunks, -query, -delete, -health or -export")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing pipeline")
	}
	defer a.store.Close()

	switch {
	case *filePath != "":
		result, err := a.ingest.IngestFile(ctx, *filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Error ingesting document")
		}
		helper.PrettyPrint(result)

	case *chunksPath != "":
		id := *documentID
		if id == "" {
			if id, err = helper.NewDocumentID(); err != nil {
				log.Fatal().Err(err).Msg("Error creating document id")
			}
		}
		chunks, err := parser.LoadChunks(*chunksPath, id)
		if err != nil {
			log.Fatal().Err(err).Str("file", *chunksPath).Msg("Error loading chunks")
		}
		result, err := a.ingest.Ingest(ctx, id, chunks)
		if err != nil {
			log.Fatal().Err(err).Msg("Error ingesting chunks")
		}
		helper.PrettyPrint(result)

	case *query != "":
		answer, err := a.query.Answer(ctx, *query, *documentID, *topK)
		if err != nil {
			log.Fatal().Err(err).Msg("Error answering query")
		}
		helper.PrettyPrint(answer)

	case *deleteDoc:
		if err := a.ingest.DeleteDocument(ctx, *documentID); err != nil {
			log.Fatal().Err(err).Msg("Error deleting document")
		}

	case *health:
		helper.PrettyPrint(rag.Health(ctx, a.retriever))

	case *export:
		if a.chromem == nil {
			log.Fatal().Msg("Export is only supported by the chromem backend")
		}
		if err := a.chromem.Export(); err != nil {
			log.Fatal().Err(err).Msg("Error exporting collection")
		}
		log.Info().Str("file", cfg.VectorStore.ExportPath).Msg("Exported collection")
	}
}

func setupLogger(level string, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// newApp wires the pipeline from cfg. The embedding dimension is probed
// from the backend when the config leaves it unset.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client, err := embedding.NewBackend(&cfg.Embedding)
	if err != nil {
		return nil, err
	}
	gateway, err := embedding.NewGateway(client, embedding.OptionsFromConfig(&cfg.Embedding))
	if err != nil {
		return nil, err
	}
	dim, err := gateway.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine embedding dimension: %w", err)
	}
	log.Debug().Int("dimension", dim).Msg("Embedding backend ready")

	a := &app{cfg: cfg}
	switch cfg.VectorStore.Backend {
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		store, err := db.NewStore(ctx, db.NewDB(sqldb, cfg.Database.Debug), cfg.Database.Table, dim)
		if err != nil {
			sqldb.Close()
			return nil, err
		}
		a.store = store
	default:
		if !cfg.VectorStore.InMemory {
			if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
				return nil, err
			}
		}
		store, err := chromemdb.NewVectorDBManager(&cfg.VectorStore)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.chromem = store
	}
	a.retriever = retriever.New(a.store)

	model, err := llmservice.NewModel(&cfg.LLM)
	if err != nil {
		a.store.Close()
		return nil, err
	}
	engine := grounding.NewEngine(model, grounding.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	a.query = rag.NewQueryService(gateway, a.retriever, engine, cfg.RAG.TopK)
	a.ingest = rag.NewIngestService(gateway, a.retriever, parser.New(parser.OptionsFromConfig(&cfg.RAG)).ParseFile)
	return a, nil
}
