// Package engine is the public surface of the retrieval engine: hybrid
// search, indexing, project reindexing, and deletion. No inner component
// is exposed to callers outside this package and its siblings.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/candidate"
	"github.com/seren-labs/serendex/internal/domain/search/query"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
	"github.com/seren-labs/serendex/internal/metrics"
	"github.com/seren-labs/serendex/internal/usecase/ranking"
	"github.com/seren-labs/serendex/internal/usecase/similarity"
)

// Defaults for the engine facade.
const (
	// DefaultTextWindow bounds how many recent records the lexical
	// stage scores per query.
	DefaultTextWindow = 100
	// DefaultReindexWorkers bounds concurrent embedding calls during
	// a project reindex.
	DefaultReindexWorkers = 4
	// DefaultReindexLimit caps how many records one reindex will touch.
	DefaultReindexLimit = 10000
)

// Entity is the indexing input: one content item to embed and store.
type Entity struct {
	Type      domvec.Type
	ID        string
	ProjectID string
	Title     string
	Content   string
	Metadata  map[string]string
}

// Service orchestrates retrieval, scoring, and reranking.
type Service struct {
	vectors        VectorStore
	sim            Searcher
	scorer         *ranking.Scorer
	text           *ranking.TextScorer
	embed          Embedder
	queryEmbed     Embedder
	logger         *zap.Logger
	textWindow     int
	reindexWorkers int
	reindexLimit   int
}

// New creates the engine facade.
func New(
	vectors VectorStore,
	sim Searcher,
	scorer *ranking.Scorer,
	text *ranking.TextScorer,
	embed Embedder,
	logger *zap.Logger,
) *Service {
	return &Service{
		vectors:        vectors,
		sim:            sim,
		scorer:         scorer,
		text:           text,
		embed:          embed,
		queryEmbed:     embed,
		logger:         logger,
		textWindow:     DefaultTextWindow,
		reindexWorkers: DefaultReindexWorkers,
		reindexLimit:   DefaultReindexLimit,
	}
}

// WithQueryEmbedder sets a distinct embedder for query text. Indexing
// keeps using the document embedder.
func (s *Service) WithQueryEmbedder(embed Embedder) *Service {
	if embed != nil {
		s.queryEmbed = embed
	}
	return s
}

// WithLimits tunes the text window and reindex bounds.
func (s *Service) WithLimits(textWindow, reindexWorkers, reindexLimit int) *Service {
	if textWindow > 0 {
		s.textWindow = textWindow
	}
	if reindexWorkers > 0 {
		s.reindexWorkers = reindexWorkers
	}
	if reindexLimit > 0 {
		s.reindexLimit = reindexLimit
	}
	return s
}

// Search runs the full pipeline: embed (when needed), retrieve vector and
// lexical candidates in parallel, union by id, hybrid-score, diversity
// rerank, threshold filter, top limit.
func (s *Service) Search(ctx context.Context, q *query.Query) ([]candidate.Candidate, error) {
	start := time.Now()

	embedding := q.Embedding()
	if len(embedding) > 0 {
		if err := s.vectors.CheckDim(len(embedding)); err != nil {
			return nil, err
		}
	} else if q.Text() != "" {
		result, err := s.queryEmbed.Embed(ctx, q.Text())
		if err != nil {
			return nil, domain.NewStageError(domain.StageEmbed, err)
		}
		embedding = result.Embedding
		if err := s.vectors.CheckDim(len(embedding)); err != nil {
			return nil, err
		}
	}

	var queryTokens []string
	if q.Text() != "" {
		queryTokens = s.text.Tokens(q.Text())
	}

	// Vector and lexical retrieval are independent once the embedding
	// exists; run them concurrently.
	var matches []similarity.Match
	var window []domvec.Record

	g, gctx := errgroup.WithContext(ctx)
	if len(embedding) > 0 {
		g.Go(func() error {
			var err error
			matches, err = s.sim.Search(gctx, embedding, q.ProjectID(), similarity.Options{
				Mode:         q.Mode(),
				EntityTypes:  q.EntityTypes(),
				ExcludeIDs:   q.ExcludeIDs(),
				Perturbation: q.Perturbation(),
			})
			return err
		})
	}
	if len(queryTokens) > 0 {
		g.Go(func() error {
			var err error
			window, err = s.vectors.Candidates(gctx, q.ProjectID(), q.EntityTypes(), s.textWindow)
			if err != nil {
				return domain.NewStageError(domain.StageRetrieval, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := s.merge(q, queryTokens, matches, window)

	cands = s.scorer.Score(ranking.QueryContext{
		Embedding:  embedding,
		ProjectID:  q.ProjectID(),
		TypeFilter: q.EntityTypes(),
	}, cands)

	cands = ranking.Rerank(cands, s.scorer.Weights().Diversity())

	filtered := cands[:0]
	for _, c := range cands {
		if c.FinalScore >= q.MinScore() {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) > q.Limit() {
		filtered = filtered[:q.Limit()]
	}

	metrics.SearchDuration.WithLabelValues(string(q.Mode())).Observe(time.Since(start).Seconds())
	metrics.SearchCandidatesScored.WithLabelValues(string(q.Mode())).Observe(float64(len(cands)))

	s.logger.Debug("search completed",
		zap.String("mode", string(q.Mode())),
		zap.Int("vector_candidates", len(matches)),
		zap.Int("text_window", len(window)),
		zap.Int("results", len(filtered)),
	)
	return filtered, nil
}

// merge unions vector and lexical candidates by "type:id". An item found
// by only one source keeps a zero score for the missing factor.
func (s *Service) merge(
	q *query.Query,
	queryTokens []string,
	matches []similarity.Match,
	window []domvec.Record,
) []candidate.Candidate {
	excluded := make(map[string]struct{}, len(q.ExcludeIDs()))
	for _, id := range q.ExcludeIDs() {
		excluded[id] = struct{}{}
	}

	byKey := make(map[string]int)
	cands := make([]candidate.Candidate, 0, len(matches)+len(window))

	for i := range matches {
		m := &matches[i]
		if _, skip := excluded[m.Key()]; skip {
			continue
		}
		byKey[m.Key()] = len(cands)
		cands = append(cands, candidate.Candidate{
			EntityType: m.EntityType,
			EntityID:   m.EntityID,
			ProjectID:  m.ProjectID,
			Vector:     m.Vector,
			Magnitude:  m.Magnitude,
			Metadata:   m.Metadata,
			CreatedAt:  m.CreatedAt,
		})
	}

	for i := range window {
		rec := &window[i]
		if _, skip := excluded[rec.Key()]; skip {
			continue
		}
		score, titleM, contentM := s.text.Score(
			queryTokens, rec.Meta(domvec.MetaTitle), rec.Meta(domvec.MetaContent),
		)
		if idx, ok := byKey[rec.Key()]; ok {
			cands[idx].TextScore = score
			cands[idx].TitleMatches = titleM
			cands[idx].ContentMatches = contentM
			continue
		}
		if score == 0 {
			continue // lexical-only candidates need a lexical signal
		}
		c := candidate.FromRecord(rec)
		c.TextScore = score
		c.TitleMatches = titleM
		c.ContentMatches = contentM
		byKey[rec.Key()] = len(cands)
		cands = append(cands, c)
	}

	return cands
}

// Index embeds an entity's text and upserts its vector record.
func (s *Service) Index(ctx context.Context, e Entity) error {
	if e.Title == "" && e.Content == "" {
		return fmt.Errorf("entity has no text to index: %w", domain.ErrValidation)
	}

	result, err := s.embed.Embed(ctx, embeddingText(e.Title, e.Content))
	if err != nil {
		return domain.NewStageError(domain.StageEmbed, err)
	}

	metadata := make(map[string]string, 2+len(e.Metadata))
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	metadata[domvec.MetaTitle] = e.Title
	metadata[domvec.MetaContent] = e.Content

	rec, err := domvec.New(e.Type, e.ID, e.ProjectID, result.Embedding, metadata)
	if err != nil {
		return err
	}
	if prev, ok, err := s.vectors.Get(ctx, e.Type, e.ID); err == nil && ok {
		rec.SetCreatedAt(prev.CreatedAt())
	}
	if err := s.vectors.Put(ctx, &rec); err != nil {
		return fmt.Errorf("index %s: %w", rec.Key(), err)
	}
	return nil
}

// Delete removes an entity's vector. Missing entities are a no-op.
func (s *Service) Delete(ctx context.Context, typ domvec.Type, id string) error {
	return s.vectors.Delete(ctx, typ, id)
}

// ReindexProject re-embeds every record owned by the project from its
// stored text and upserts the batch atomically. Returns the number of
// records reindexed.
func (s *Service) ReindexProject(ctx context.Context, projectID string) (int, error) {
	if projectID == "" {
		return 0, fmt.Errorf("project id is required: %w", domain.ErrValidation)
	}

	records, err := s.vectors.ProjectRecords(ctx, projectID, s.reindexLimit)
	if err != nil {
		return 0, domain.NewStageError(domain.StageRetrieval, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var mu sync.Mutex
	updated := make([]domvec.Record, 0, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reindexWorkers)
	for i := range records {
		rec := &records[i]
		text := embeddingText(rec.Meta(domvec.MetaTitle), rec.Meta(domvec.MetaContent))
		if text == "" {
			continue // nothing to re-embed from
		}
		g.Go(func() error {
			result, err := s.embed.Embed(gctx, text)
			if err != nil {
				return domain.NewStageError(domain.StageEmbed, fmt.Errorf("%s: %w", rec.Key(), err))
			}
			next, err := domvec.New(
				rec.EntityType(), rec.EntityID(), rec.ProjectID(),
				result.Embedding, rec.Metadata(),
			)
			if err != nil {
				return err
			}
			next.SetCreatedAt(rec.CreatedAt())
			mu.Lock()
			updated = append(updated, next)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.vectors.BatchPut(ctx, updated); err != nil {
		return 0, err
	}

	s.logger.Info("project reindexed",
		zap.String("project_id", projectID),
		zap.Int("count", len(updated)),
	)
	return len(updated), nil
}

func embeddingText(title, content string) string {
	switch {
	case title == "":
		return content
	case content == "":
		return title
	default:
		return title + "\n\n" + content
	}
}
