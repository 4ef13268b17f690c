package ranking

import (
	"math"
	"sync"
	"time"

	domrank "github.com/seren-labs/serendex/internal/domain/ranking"
	"github.com/seren-labs/serendex/internal/domain/search/candidate"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// temporalHalfWindowDays controls recency decay: exp(-age/30) gives an
// item created now ~1.0 and a 30-day-old item ~0.3679.
const temporalHalfWindowDays = 30.0

// Neutral affinity applied when the query gives no basis to prefer a
// project or type.
const neutralAffinity = 0.5

// QueryContext carries the per-query inputs every candidate is scored against.
type QueryContext struct {
	// Embedding is the unperturbed query embedding; nil when the query
	// was text-only and embedding failed to apply.
	Embedding []float32
	ProjectID string
	// TypeFilter mirrors the requested entity type filter; empty means
	// no filter was requested.
	TypeFilter []domvec.Type
}

// Scorer fuses vector similarity, text match, recency, and project/type
// affinity into one weighted score per candidate. The diversity weight
// shares the same normalized configuration but is applied by Rerank, not
// here.
type Scorer struct {
	mu      sync.RWMutex
	weights domrank.Weights
	now     func() time.Time
}

// NewScorer creates a hybrid scorer with the default weight vector.
func NewScorer() *Scorer {
	return &Scorer{weights: domrank.Default(), now: time.Now}
}

// WithWeights sets the initial weight vector.
func (s *Scorer) WithWeights(w domrank.Weights) *Scorer {
	s.weights = w
	return s
}

// WithClock overrides the clock, for deterministic temporal scores in tests.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Weights returns a snapshot of the current weight vector.
func (s *Scorer) Weights() domrank.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// UpdateWeights merges a partial update into the current weights and
// renormalizes so the six values sum to 1.
func (s *Scorer) UpdateWeights(p domrank.Patch) (domrank.Weights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := s.weights.Merge(p)
	if err != nil {
		return domrank.Weights{}, err
	}
	s.weights = merged
	return merged, nil
}

// Score fills the vector, temporal, project, and type factors plus the
// weighted final score for every candidate. Text scores are expected to
// be present already (or zero for candidates the text stage never saw).
func (s *Scorer) Score(q QueryContext, cands []candidate.Candidate) []candidate.Candidate {
	w := s.Weights()
	now := s.now().UTC()

	queryMag := domvec.Magnitude(q.Embedding)

	for i := range cands {
		c := &cands[i]

		if c.Magnitude == 0 && len(c.Vector) > 0 {
			c.Magnitude = domvec.Magnitude(c.Vector)
		}
		if len(q.Embedding) > 0 && len(c.Vector) > 0 {
			c.VectorScore = domvec.CosineWithMagnitudes(q.Embedding, queryMag, c.Vector, c.Magnitude)
		}
		c.TemporalScore, c.AgeDays = temporalScore(now, c.CreatedAt)
		c.ProjectScore = projectScore(q.ProjectID, c.ProjectID)
		c.TypeScore = typeScore(q.TypeFilter, c.EntityType)

		c.FinalScore = c.VectorScore*w.Vector() +
			c.TextScore*w.Text() +
			c.TemporalScore*w.Temporal() +
			c.ProjectScore*w.Project() +
			c.TypeScore*w.Type()
	}
	return cands
}

// temporalScore decays exponentially with content age in days.
func temporalScore(now, createdAt time.Time) (float64, float64) {
	if createdAt.IsZero() || createdAt.After(now) {
		return 0, 0
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	return math.Exp(-ageDays / temporalHalfWindowDays), ageDays
}

// projectScore is 1.0 on a scope match. An unscoped query is neutral and
// a scoped-but-mismatched candidate is down-weighted, not excluded; hard
// filtering, if any, happened at candidate retrieval.
func projectScore(queryProject, candProject string) float64 {
	if queryProject == "" {
		return neutralAffinity
	}
	if queryProject == candProject {
		return 1
	}
	return neutralAffinity
}

// typeScore is 1.0 on a requested type match, 0 when a filter was
// requested and the type differs, and neutral without a filter.
func typeScore(filter []domvec.Type, typ domvec.Type) float64 {
	if len(filter) == 0 {
		return neutralAffinity
	}
	for _, t := range filter {
		if t == typ {
			return 1
		}
	}
	return 0
}
