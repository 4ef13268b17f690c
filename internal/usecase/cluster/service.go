// Package cluster partitions a project's vectors with k-means++ under
// cosine geometry.
package cluster

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/seren-labs/serendex/internal/domain"
	domcluster "github.com/seren-labs/serendex/internal/domain/cluster"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// Defaults and caps for one clustering run.
const (
	DefaultMaxIterations = 100
	DefaultMaxVectors    = 10000
	// convergenceSim is the minimum similarity between consecutive
	// centroid positions for a centroid to count as settled.
	convergenceSim = 0.999
)

// Options tune a single clustering call.
type Options struct {
	EntityTypes   []domvec.Type
	MaxIterations int
}

// Service runs k-means++ clustering over the stored vector space.
type Service struct {
	vectors    VectorSource
	maxVectors int
	randFloat  func() float64
}

// New creates a clustering service.
func New(vectors VectorSource) *Service {
	return &Service{
		vectors:    vectors,
		maxVectors: DefaultMaxVectors,
		randFloat:  rand.Float64,
	}
}

// WithMaxVectors caps how many vectors one run will load.
func (s *Service) WithMaxVectors(n int) *Service {
	if n > 0 {
		s.maxVectors = n
	}
	return s
}

// WithRand replaces the uniform source used for seeding, for
// deterministic tests.
func (s *Service) WithRand(f func() float64) *Service {
	s.randFloat = f
	return s
}

// Cluster partitions the project scope into k clusters. Fails with
// InsufficientData when fewer vectors than k exist for the scope. The
// iteration cap is the built-in bounded-work guarantee.
func (s *Service) Cluster(
	ctx context.Context, projectID string, k int, opts Options,
) (domcluster.Result, error) {
	if k <= 0 {
		return domcluster.Result{}, fmt.Errorf("k must be positive: %w", domain.ErrValidation)
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	records, err := s.vectors.Candidates(ctx, projectID, opts.EntityTypes, s.maxVectors)
	if err != nil {
		return domcluster.Result{}, domain.NewStageError(domain.StageRetrieval, err)
	}
	if len(records) < k {
		return domcluster.Result{}, fmt.Errorf(
			"%d vectors for %d clusters: %w", len(records), k, domain.ErrInsufficientData,
		)
	}

	points := make([]point, len(records))
	for i := range records {
		points[i] = point{
			key: records[i].Key(),
			vec: records[i].Vector(),
			mag: records[i].Magnitude(),
		}
	}

	centroids := s.seed(points, k)
	assignments, iterations, converged := iterate(points, centroids, maxIter)

	clusters := make([]domcluster.Cluster, k)
	for i := range clusters {
		clusters[i] = domcluster.Cluster{ID: i, Centroid: centroids[i]}
	}
	for pi, ci := range assignments {
		clusters[ci].MemberIDs = append(clusters[ci].MemberIDs, points[pi].key)
		clusters[ci].Size++
	}

	return domcluster.Result{
		Clusters:   clusters,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}
