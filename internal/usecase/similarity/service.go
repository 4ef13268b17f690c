// Package similarity retrieves and scores nearest vectors under the
// exact, similar, and serendipity search modes.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// Match is a single similarity hit.
type Match struct {
	EntityType domvec.Type
	EntityID   string
	ProjectID  string
	Similarity float64
	Distance   float64
	Vector     []float32
	Magnitude  float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Key returns the canonical "type:id" identity of the hit.
func (m *Match) Key() string { return string(m.EntityType) + ":" + m.EntityID }

// Options tune a single similarity search call.
type Options struct {
	Mode         mode.Mode
	Limit        int
	EntityTypes  []domvec.Type
	Threshold    float64
	ExcludeIDs   []string
	Perturbation mode.Perturbation
}

// Service scores candidate vectors against a (possibly perturbed) query.
type Service struct {
	vectors VectorSource
	perturb Perturber
	modes   mode.Table
}

// New creates a similarity search service with the default mode table.
func New(vectors VectorSource, perturb Perturber) *Service {
	return &Service{vectors: vectors, perturb: perturb, modes: mode.DefaultTable()}
}

// WithModes overrides the per-mode noise/pool tuning.
func (s *Service) WithModes(t mode.Table) *Service {
	if len(t) > 0 {
		s.modes = t
	}
	return s
}

// Search perturbs the query per mode, scores the candidate window by
// cosine similarity, and returns the top results above the threshold.
// Exact mode is deterministic for a stable window; similar and
// serendipity are intentionally not.
func (s *Service) Search(
	ctx context.Context, queryVec []float32, projectID string, opts Options,
) ([]Match, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("query vector is empty: %w", domain.ErrValidation)
	}
	if err := s.vectors.CheckDim(len(queryVec)); err != nil {
		return nil, err
	}

	m := opts.Mode
	if m == "" {
		m = mode.Exact
	}
	settings, ok := s.modes[m]
	if !ok {
		return nil, fmt.Errorf("invalid search mode %q: %w", m, domain.ErrValidation)
	}
	kind := opts.Perturbation
	if kind == "" {
		kind = mode.Gaussian
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = settings.PoolSize
	}

	probe, err := s.perturb.Apply(kind, queryVec, settings.NoiseLevel)
	if err != nil {
		return nil, err
	}
	probeMag := domvec.Magnitude(probe)

	window, err := s.vectors.Candidates(ctx, projectID, opts.EntityTypes, settings.PoolSize)
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieval, err)
	}

	excluded := make(map[string]struct{}, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	matches := make([]Match, 0, len(window))
	for i := range window {
		rec := &window[i]
		if _, skip := excluded[rec.Key()]; skip {
			continue
		}
		sim := domvec.CosineWithMagnitudes(probe, probeMag, rec.Vector(), rec.Magnitude())
		if sim < opts.Threshold {
			continue
		}
		matches = append(matches, Match{
			EntityType: rec.EntityType(),
			EntityID:   rec.EntityID(),
			ProjectID:  rec.ProjectID(),
			Similarity: sim,
			Distance:   1 - sim,
			Vector:     rec.Vector(),
			Magnitude:  rec.Magnitude(),
			Metadata:   rec.Metadata(),
			CreatedAt:  rec.CreatedAt(),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// KNN returns the literal k nearest neighbors: exact mode, no perturbation.
func (s *Service) KNN(
	ctx context.Context, queryVec []float32, projectID string, k int, opts Options,
) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrValidation)
	}
	opts.Mode = mode.Exact
	opts.Limit = k
	return s.Search(ctx, queryVec, projectID, opts)
}
