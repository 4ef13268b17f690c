// Package serendex provides an embeddable Go client for the serendex
// retrieval engine: hybrid vector and text search with tunable
// serendipity, backed by Redis.
//
//	client, _ := serendex.New(
//	    serendex.WithRedis("localhost:6379", ""),
//	    serendex.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	_ = client.Index(ctx, serendex.Entity{
//	    Type: "note", ID: "n1", ProjectID: "p1",
//	    Title: "payment retries", Content: "exponential backoff on 5xx",
//	})
//	results, _ := client.Search(ctx, serendex.SearchRequest{
//	    Text: "retry strategy", Mode: "serendipity",
//	})
package serendex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seren-labs/serendex/internal/db"
	dbRedis "github.com/seren-labs/serendex/internal/db/redis"
	"github.com/seren-labs/serendex/internal/domain"
	domcluster "github.com/seren-labs/serendex/internal/domain/cluster"
	domrank "github.com/seren-labs/serendex/internal/domain/ranking"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	"github.com/seren-labs/serendex/internal/domain/search/query"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
	vectorrepo "github.com/seren-labs/serendex/internal/repository/vector"
	"github.com/seren-labs/serendex/internal/tokenizer"
	clusteruc "github.com/seren-labs/serendex/internal/usecase/cluster"
	engineuc "github.com/seren-labs/serendex/internal/usecase/engine"
	"github.com/seren-labs/serendex/internal/usecase/perturb"
	rankinguc "github.com/seren-labs/serendex/internal/usecase/ranking"
	similarityuc "github.com/seren-labs/serendex/internal/usecase/similarity"
)

const defaultReadinessTimeout = 10 * time.Second

// Embedder vectorizes text. Implementations wrap a real provider.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries an embedding with its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Entity is one content item to embed and store.
type Entity struct {
	Type      string
	ID        string
	ProjectID string
	Title     string
	Content   string
	Metadata  map[string]string
}

// SearchRequest describes one search call. Either Text or Embedding is
// required. Zero values take engine defaults.
type SearchRequest struct {
	Text         string
	Embedding    []float32
	ProjectID    string
	Mode         string // exact, similar, serendipity (default similar)
	Perturbation string // gaussian, uniform, directional (default gaussian)
	Limit        int
	EntityTypes  []string
	MinScore     float64
	ExcludeIDs   []string // "type:id" keys to drop
}

// Result is one scored search hit.
type Result struct {
	EntityType string
	EntityID   string
	ProjectID  string
	Metadata   map[string]string
	CreatedAt  time.Time

	FinalScore    float64
	VectorScore   float64
	TextScore     float64
	TemporalScore float64
	ProjectScore  float64
	TypeScore     float64
}

// ClusterOptions tune one clustering call.
type ClusterOptions struct {
	EntityTypes   []string
	MaxIterations int
}

// Cluster is one group of related entities.
type Cluster struct {
	ID        int
	Centroid  []float32
	MemberIDs []string
	Size      int
}

// ClusterResult is the outcome of one clustering run.
type ClusterResult struct {
	Clusters   []Cluster
	Iterations int
	Converged  bool
}

// Weights is the public view of the ranking weight vector.
type Weights struct {
	Vector    float64
	Text      float64
	Temporal  float64
	Diversity float64
	Project   float64
	Type      float64
}

// WeightsPatch is a partial weight update; nil fields keep their
// current value.
type WeightsPatch struct {
	Vector    *float64
	Text      *float64
	Temporal  *float64
	Diversity *float64
	Project   *float64
	Type      *float64
}

// Client is the serendex SDK entry point.
type Client struct {
	store    db.Store
	vectors  *vectorrepo.Repo
	engine   *engineuc.Service
	clusters *clusteruc.Service
	scorer   *rankinguc.Scorer
}

// New creates a serendex Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("serendex: database address required (use WithRedis)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("serendex: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("serendex: database not ready: %w", err)
	}

	return wireClient(store, cfg), nil
}

func wireClient(store db.Store, cfg *clientConfig) *Client {
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	vectors := vectorrepo.New(store, cfg.dimensions)
	if cfg.cacheSize > 0 {
		vectors = vectors.WithCache(cfg.cacheSize, cfg.cacheTTL)
	}

	var domEmb engineuc.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		domEmb = &embedderAdapter{inner: cfg.embedder}
	}

	sim := similarityuc.New(vectors, perturb.New())
	scorer := rankinguc.NewScorer()
	text := rankinguc.NewTextScorer(tokenizer.New())

	engine := engineuc.New(vectors, sim, scorer, text, domEmb, logger).
		WithLimits(cfg.textWindow, cfg.reindexWorkers, 0)

	clusters := clusteruc.New(vectors)
	if cfg.clusterWindow > 0 {
		clusters = clusters.WithMaxVectors(cfg.clusterWindow)
	}

	return &Client{
		store:    store,
		vectors:  vectors,
		engine:   engine,
		clusters: clusters,
		scorer:   scorer,
	}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search runs the hybrid retrieval pipeline and returns scored results.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	q, err := query.New(
		req.Text,
		req.Embedding,
		req.ProjectID,
		mode.Mode(req.Mode),
		mode.Perturbation(req.Perturbation),
		req.Limit,
		typesFromStrings(req.EntityTypes),
		req.MinScore,
		req.ExcludeIDs,
	)
	if err != nil {
		return nil, err
	}

	cands, err := c.engine.Search(ctx, &q)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(cands))
	for i := range cands {
		cand := &cands[i]
		results[i] = Result{
			EntityType:    string(cand.EntityType),
			EntityID:      cand.EntityID,
			ProjectID:     cand.ProjectID,
			Metadata:      cand.Metadata,
			CreatedAt:     cand.CreatedAt,
			FinalScore:    cand.FinalScore,
			VectorScore:   cand.VectorScore,
			TextScore:     cand.TextScore,
			TemporalScore: cand.TemporalScore,
			ProjectScore:  cand.ProjectScore,
			TypeScore:     cand.TypeScore,
		}
	}
	return results, nil
}

// Index embeds an entity's text and upserts its vector record.
func (c *Client) Index(ctx context.Context, e Entity) error {
	return c.engine.Index(ctx, engineuc.Entity{
		Type:      domvec.Type(e.Type),
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Title:     e.Title,
		Content:   e.Content,
		Metadata:  e.Metadata,
	})
}

// Delete removes an entity's vector. Missing entities are a no-op.
func (c *Client) Delete(ctx context.Context, entityType, id string) error {
	return c.engine.Delete(ctx, domvec.Type(entityType), id)
}

// ReindexProject re-embeds every record owned by the project from its
// stored text. Returns the number of records reindexed.
func (c *Client) ReindexProject(ctx context.Context, projectID string) (int, error) {
	return c.engine.ReindexProject(ctx, projectID)
}

// Count returns the number of records visible to the project scope
// (project records plus global records).
func (c *Client) Count(ctx context.Context, projectID string) (int, error) {
	return c.vectors.Count(ctx, projectID)
}

// ClusterProject partitions the project's vectors into k clusters.
func (c *Client) ClusterProject(
	ctx context.Context, projectID string, k int, opts ClusterOptions,
) (ClusterResult, error) {
	result, err := c.clusters.Cluster(ctx, projectID, k, clusteruc.Options{
		EntityTypes:   typesFromStrings(opts.EntityTypes),
		MaxIterations: opts.MaxIterations,
	})
	if err != nil {
		return ClusterResult{}, err
	}
	return clusterResultFromDomain(result), nil
}

// Weights returns the current ranking weight vector.
func (c *Client) Weights() Weights {
	return weightsFromDomain(c.scorer.Weights())
}

// UpdateWeights applies a partial weight update and renormalizes.
func (c *Client) UpdateWeights(p WeightsPatch) (Weights, error) {
	updated, err := c.scorer.UpdateWeights(domrank.Patch{
		Vector:    p.Vector,
		Text:      p.Text,
		Temporal:  p.Temporal,
		Diversity: p.Diversity,
		Project:   p.Project,
		Type:      p.Type,
	})
	if err != nil {
		return Weights{}, err
	}
	return weightsFromDomain(updated), nil
}

func clusterResultFromDomain(result domcluster.Result) ClusterResult {
	clusters := make([]Cluster, len(result.Clusters))
	for i, cl := range result.Clusters {
		clusters[i] = Cluster{
			ID:        cl.ID,
			Centroid:  cl.Centroid,
			MemberIDs: cl.MemberIDs,
			Size:      cl.Size,
		}
	}
	return ClusterResult{
		Clusters:   clusters,
		Iterations: result.Iterations,
		Converged:  result.Converged,
	}
}

func weightsFromDomain(w domrank.Weights) Weights {
	return Weights{
		Vector:    w.Vector(),
		Text:      w.Text(),
		Temporal:  w.Temporal(),
		Diversity: w.Diversity(),
		Project:   w.Project(),
		Type:      w.Type(),
	}
}

func typesFromStrings(ss []string) []domvec.Type {
	if len(ss) == 0 {
		return nil
	}
	types := make([]domvec.Type, len(ss))
	for i, s := range ss {
		types[i] = domvec.Type(s)
	}
	return types
}

// embedderAdapter wraps the public Embedder to satisfy the engine contract.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf(
		"embedder not configured (use WithEmbedder for text queries): %w",
		domain.ErrEmbedderUnavailable,
	)
}
