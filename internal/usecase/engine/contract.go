package engine

import (
	"context"

	"github.com/seren-labs/serendex/internal/domain"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
	"github.com/seren-labs/serendex/internal/usecase/similarity"
)

// VectorStore defines the storage contract for the engine facade.
type VectorStore interface {
	Put(ctx context.Context, rec *domvec.Record) error
	BatchPut(ctx context.Context, recs []domvec.Record) error
	Get(ctx context.Context, typ domvec.Type, id string) (domvec.Record, bool, error)
	Delete(ctx context.Context, typ domvec.Type, id string) error
	Candidates(ctx context.Context, projectID string, types []domvec.Type, limit int) ([]domvec.Record, error)
	ProjectRecords(ctx context.Context, projectID string, limit int) ([]domvec.Record, error)
	CheckDim(n int) error
}

// Searcher runs mode-aware vector similarity search.
type Searcher interface {
	Search(
		ctx context.Context, queryVec []float32, projectID string, opts similarity.Options,
	) ([]similarity.Match, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
