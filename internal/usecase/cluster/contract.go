package cluster

import (
	"context"

	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// VectorSource defines the storage contract for clustering input.
type VectorSource interface {
	Candidates(
		ctx context.Context, projectID string, types []domvec.Type, limit int,
	) ([]domvec.Record, error)
}
