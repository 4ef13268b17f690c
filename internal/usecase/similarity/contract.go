package similarity

import (
	"context"

	"github.com/seren-labs/serendex/internal/domain/search/mode"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// VectorSource defines the storage contract for candidate retrieval.
type VectorSource interface {
	Candidates(
		ctx context.Context, projectID string, types []domvec.Type, limit int,
	) ([]domvec.Record, error)
	CheckDim(n int) error
}

// Perturber produces perturbed copies of the query vector.
type Perturber interface {
	Apply(kind mode.Perturbation, v []float32, level float64) ([]float32, error)
}
