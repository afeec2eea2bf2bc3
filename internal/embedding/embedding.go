package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"grounded-rag/internal/config"
	"grounded-rag/internal/helper"
	"grounded-rag/internal/models"
)

const probeText = "dimension probe for the embedding backend"

type Options struct {
	Dimension        int
	BatchSize        int
	MaxConcurrency   int
	MinTextLength    int
	MaxChars         int
	QueryInstruction string
	Retry            helper.RetryPolicy
}

func OptionsFromConfig(cfg *config.EmbeddingConfig) Options {
	return Options{
		Dimension:        cfg.Dimension,
		BatchSize:        cfg.BatchSize,
		MaxConcurrency:   cfg.MaxConcurrency,
		MinTextLength:    cfg.MinTextLength,
		MaxChars:         cfg.MaxChars,
		QueryInstruction: cfg.QueryInstruction,
		Retry: helper.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
		},
	}
}

// Gateway turns text into fixed-dimension vectors. Texts too short to carry
// meaning get the zero vector without reaching the backend. Backend calls are
// batched, bounded by a shared admission gate and retried.
type Gateway struct {
	client embeddings.EmbedderClient
	opts   Options
	gate   *semaphore.Weighted

	mu  sync.Mutex
	dim int
}

func NewGateway(client embeddings.EmbedderClient, opts Options) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("embedding client is required")
	}
	if opts.BatchSize <= 0 || opts.MaxConcurrency <= 0 || opts.MaxChars <= 0 {
		return nil, fmt.Errorf("invalid gateway options: batch size %d, concurrency %d, max chars %d",
			opts.BatchSize, opts.MaxConcurrency, opts.MaxChars)
	}
	if n := utf8.RuneCountInString(opts.QueryInstruction); n > 0 && opts.MaxChars <= n {
		return nil, fmt.Errorf("max chars %d leaves no room for the %d-rune query instruction", opts.MaxChars, n)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 1
	}
	return &Gateway{
		client: client,
		opts:   opts,
		gate:   semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		dim:    opts.Dimension,
	}, nil
}

// Dimension returns the fixed vector size, or 0 if not yet known.
func (g *Gateway) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

// Probe fixes the dimension by embedding a probe text when none was configured.
// The backend call runs without holding the lock; the first result wins.
func (g *Gateway) Probe(ctx context.Context) (int, error) {
	if dim := g.Dimension(); dim > 0 {
		return dim, nil
	}

	vecs, err := helper.CallWithRetry(ctx, g.opts.Retry, "embed_probe", func(ctx context.Context) ([][]float32, error) {
		return g.client.CreateEmbedding(ctx, []string{probeText})
	})
	if err != nil {
		return 0, classify(err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, &models.BackendContractError{Msg: "probe returned no vector"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = len(vecs[0])
		log.Info().Int("dimension", g.dim).Msg("Embedding dimension determined")
	}
	return g.dim, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (g *Gateway) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	dim, err := g.Probe(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var (
		positions []int
		valid     []string
	)
	for i, text := range texts {
		if g.degenerate(text) {
			out[i] = models.ZeroVector(dim)
			continue
		}
		positions = append(positions, i)
		valid = append(valid, truncate(text, g.opts.MaxChars))
	}

	log.Debug().
		Int("texts", len(texts)).
		Int("valid", len(valid)).
		Int("batch_size", g.opts.BatchSize).
		Msg("Embedding documents")

	if len(valid) == 0 {
		return out, nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	var admitErr error
	for start := 0; start < len(valid); start += g.opts.BatchSize {
		end := min(start+g.opts.BatchSize, len(valid))
		if err := g.gate.Acquire(gctx, 1); err != nil {
			admitErr = err
			break
		}
		grp.Go(func() error {
			defer g.gate.Release(1)
			vecs, err := g.embedBatch(gctx, valid[start:end], dim)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			for j, v := range vecs {
				out[positions[start+j]] = v
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if admitErr != nil {
		return nil, admitErr
	}
	return out, nil
}

// EmbedQuery embeds a question with the retrieval instruction prefix.
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	dim, err := g.Probe(ctx)
	if err != nil {
		return nil, err
	}
	if g.degenerate(text) {
		log.Debug().Msg("Query too short, using zero vector")
		return models.ZeroVector(dim), nil
	}

	if err := g.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.gate.Release(1)

	vecs, err := g.embedBatch(ctx, []string{truncate(g.opts.QueryInstruction+text, g.opts.MaxChars)}, dim)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string, dim int) ([][]float32, error) {
	vecs, err := helper.CallWithRetry(ctx, g.opts.Retry, "embed_batch", func(ctx context.Context) ([][]float32, error) {
		vecs, err := g.client.CreateEmbedding(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, helper.Permanent(&models.BackendContractError{
				Msg: fmt.Sprintf("got %d vectors for %d texts", len(vecs), len(batch)),
			})
		}
		for _, v := range vecs {
			if len(v) != dim {
				return nil, helper.Permanent(&models.BackendContractError{
					Msg: fmt.Sprintf("vector has %d dimensions, expected %d", len(v), dim),
					Err: models.ErrDimensionMismatch,
				})
			}
		}
		return vecs, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return vecs, nil
}

func (g *Gateway) degenerate(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) < g.opts.MinTextLength
}

func classify(err error) error {
	var contract *models.BackendContractError
	if errors.As(err, &contract) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &models.TransientBackendError{Stage: models.StageEmbedding, Err: err}
}

func truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars])
}
