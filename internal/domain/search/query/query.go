// Package query defines the validated search request.
package query

import (
	"fmt"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	"github.com/seren-labs/serendex/internal/domain/vector"
)

// Search parameter limits.
const (
	// MaxTextLength is the maximum allowed query text length.
	MaxTextLength = 4096
	DefaultLimit  = 10
	MaxLimit      = 100
)

// Query is a validated search request. At least one of text and embedding
// must be present; there is no basis to rank otherwise.
type Query struct {
	text         string
	embedding    []float32
	projectID    string
	searchMode   mode.Mode
	perturbation mode.Perturbation
	limit        int
	entityTypes  []vector.Type
	minScore     float64
	excludeIDs   []string
}

// New validates and normalizes search parameters.
// Defaults: mode=similar, perturbation=gaussian, limit=10.
func New(
	text string,
	embedding []float32,
	projectID string,
	m mode.Mode,
	p mode.Perturbation,
	limit int,
	entityTypes []vector.Type,
	minScore float64,
	excludeIDs []string,
) (Query, error) {
	if text == "" && len(embedding) == 0 {
		return Query{}, fmt.Errorf("either query text or query embedding is required: %w", domain.ErrValidation)
	}
	if len(text) > MaxTextLength {
		return Query{}, fmt.Errorf("query text too long (max %d chars): %w", MaxTextLength, domain.ErrValidation)
	}
	if m == "" {
		m = mode.Similar
	}
	if !m.IsValid() {
		return Query{}, fmt.Errorf("invalid search mode %q: %w", m, domain.ErrValidation)
	}
	if p == "" {
		p = mode.Gaussian
	}
	if !p.IsValid() {
		return Query{}, fmt.Errorf("invalid perturbation %q: %w", p, domain.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	for _, t := range entityTypes {
		if !t.IsValid() {
			return Query{}, fmt.Errorf("invalid entity type %q: %w", t, domain.ErrValidation)
		}
	}
	if minScore < 0 || minScore > 1 {
		return Query{}, fmt.Errorf("min_score must be between 0 and 1: %w", domain.ErrValidation)
	}

	return Query{
		text:         text,
		embedding:    embedding,
		projectID:    projectID,
		searchMode:   m,
		perturbation: p,
		limit:        limit,
		entityTypes:  entityTypes,
		minScore:     minScore,
		excludeIDs:   excludeIDs,
	}, nil
}

// Text returns the query text, empty for embedding-only queries.
func (q *Query) Text() string { return q.text }

// Embedding returns the caller-supplied query embedding, nil when the
// engine should embed the text itself.
func (q *Query) Embedding() []float32 { return q.embedding }

// ProjectID returns the scoping project, empty for unscoped queries.
func (q *Query) ProjectID() string { return q.projectID }

// Mode returns the search strategy.
func (q *Query) Mode() mode.Mode { return q.searchMode }

// Perturbation returns the noise shape for non-exact modes.
func (q *Query) Perturbation() mode.Perturbation { return q.perturbation }

// Limit returns the maximum results to return.
func (q *Query) Limit() int { return q.limit }

// EntityTypes returns the type filter, nil when unfiltered.
func (q *Query) EntityTypes() []vector.Type { return q.entityTypes }

// MinScore returns the final-score threshold applied after reranking.
func (q *Query) MinScore() float64 { return q.minScore }

// ExcludeIDs returns "type:id" keys to drop from candidates.
func (q *Query) ExcludeIDs() []string { return q.excludeIDs }
