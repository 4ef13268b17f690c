// Package ranking holds the normalized weight vector shared by the hybrid
// scorer and the diversity reranker.
package ranking

import (
	"fmt"

	"github.com/seren-labs/serendex/internal/domain"
)

// Default weight values applied when every input weight is zero.
const (
	DefaultVector    = 0.4
	DefaultText      = 0.3
	DefaultTemporal  = 0.1
	DefaultDiversity = 0.1
	DefaultProject   = 0.05
	DefaultType      = 0.05
)

// Weights is the normalized six-factor weight vector. The six values
// always sum to 1 within floating epsilon.
type Weights struct {
	vector    float64
	text      float64
	temporal  float64
	diversity float64
	project   float64
	typ       float64
}

// Default returns the documented default weight vector.
func Default() Weights {
	return Weights{
		vector:    DefaultVector,
		text:      DefaultText,
		temporal:  DefaultTemporal,
		diversity: DefaultDiversity,
		project:   DefaultProject,
		typ:       DefaultType,
	}
}

// New validates and normalizes a weight vector. Negative weights fail;
// an all-zero input falls back to the default vector.
func New(vector, text, temporal, diversity, project, typ float64) (Weights, error) {
	for _, v := range []float64{vector, text, temporal, diversity, project, typ} {
		if v < 0 {
			return Weights{}, fmt.Errorf("weights must be non-negative: %w", domain.ErrValidation)
		}
	}
	sum := vector + text + temporal + diversity + project + typ
	if sum == 0 {
		return Default(), nil
	}
	return Weights{
		vector:    vector / sum,
		text:      text / sum,
		temporal:  temporal / sum,
		diversity: diversity / sum,
		project:   project / sum,
		typ:       typ / sum,
	}, nil
}

// Patch is a partial weight update; nil fields keep their current value.
type Patch struct {
	Vector    *float64
	Text      *float64
	Temporal  *float64
	Diversity *float64
	Project   *float64
	Type      *float64
}

// Merge applies a patch on top of the current weights and renormalizes.
func (w Weights) Merge(p Patch) (Weights, error) {
	pick := func(cur float64, override *float64) float64 {
		if override != nil {
			return *override
		}
		return cur
	}
	return New(
		pick(w.vector, p.Vector),
		pick(w.text, p.Text),
		pick(w.temporal, p.Temporal),
		pick(w.diversity, p.Diversity),
		pick(w.project, p.Project),
		pick(w.typ, p.Type),
	)
}

// Vector returns the vector similarity weight.
func (w Weights) Vector() float64 { return w.vector }

// Text returns the lexical match weight.
func (w Weights) Text() float64 { return w.text }

// Temporal returns the recency decay weight.
func (w Weights) Temporal() float64 { return w.temporal }

// Diversity returns the redundancy penalty weight, applied during reranking.
func (w Weights) Diversity() float64 { return w.diversity }

// Project returns the project affinity weight.
func (w Weights) Project() float64 { return w.project }

// Type returns the entity type affinity weight.
func (w Weights) Type() float64 { return w.typ }

// Sum returns the total of all six weights (1 after normalization).
func (w Weights) Sum() float64 {
	return w.vector + w.text + w.temporal + w.diversity + w.project + w.typ
}
