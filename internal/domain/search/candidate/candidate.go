// Package candidate holds the scored candidate flowing through the
// hybrid scoring and diversity reranking pipeline.
package candidate

import (
	"time"

	"github.com/seren-labs/serendex/internal/domain/vector"
)

// Candidate is one content item under consideration for a search result.
// Factor scores are filled by the hybrid scorer; DiversityPenalty by the
// reranker. VectorScore lives in [-1,1]; the other factors in [0,1] except
// TextScore, which can exceed 1 when a query token repeats many times
// (documented, not clamped).
type Candidate struct {
	EntityType vector.Type
	EntityID   string
	ProjectID  string
	Vector     []float32
	Magnitude  float64
	Metadata   map[string]string
	CreatedAt  time.Time

	VectorScore   float64
	TextScore     float64
	TemporalScore float64
	ProjectScore  float64
	TypeScore     float64
	FinalScore    float64

	// Diagnostics.
	TitleMatches     int
	ContentMatches   int
	AgeDays          float64
	DiversityPenalty float64
}

// Key returns the canonical "type:id" identity used for merge and exclusion.
func (c *Candidate) Key() string { return string(c.EntityType) + ":" + c.EntityID }

// FromRecord seeds a candidate from a stored vector record.
func FromRecord(r *vector.Record) Candidate {
	return Candidate{
		EntityType: r.EntityType(),
		EntityID:   r.EntityID(),
		ProjectID:  r.ProjectID(),
		Vector:     r.Vector(),
		Magnitude:  r.Magnitude(),
		Metadata:   r.Metadata(),
		CreatedAt:  r.CreatedAt(),
	}
}
