package cluster

import (
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// point is one clustering input with its precomputed norm.
type point struct {
	key string
	vec []float32
	mag float64
}

// seed picks k initial centroids k-means++ style: the first uniformly at
// random, each next with probability proportional to the squared cosine
// distance to its nearest already-chosen centroid.
func (s *Service) seed(points []point, k int) [][]float32 {
	centroids := make([][]float32, 0, k)

	first := int(s.randFloat() * float64(len(points)))
	if first >= len(points) {
		first = len(points) - 1
	}
	centroids = append(centroids, points[first].vec)

	weights := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i := range points {
			d := 1 - nearestSimilarity(&points[i], centroids)
			weights[i] = d * d
			total += weights[i]
		}

		next := 0
		if total > 0 {
			target := s.randFloat() * total
			for i, w := range weights {
				target -= w
				if target <= 0 {
					next = i
					break
				}
			}
		} else {
			// All points coincide with a centroid; any pick works.
			next = int(s.randFloat() * float64(len(points)))
			if next >= len(points) {
				next = len(points) - 1
			}
		}
		centroids = append(centroids, points[next].vec)
	}

	// Centroids are mutated during iteration; detach from point storage.
	for i, c := range centroids {
		cp := make([]float32, len(c))
		copy(cp, c)
		centroids[i] = cp
	}
	return centroids
}

// iterate runs assignment/update rounds until every centroid moved less
// than the convergence threshold or maxIter is reached. Returns the final
// assignment, the rounds used, and whether convergence was reached.
func iterate(points []point, centroids [][]float32, maxIter int) ([]int, int, bool) {
	assignments := make([]int, len(points))
	centroidMags := make([]float64, len(centroids))
	for i, c := range centroids {
		centroidMags[i] = domvec.Magnitude(c)
	}

	iterations := 0
	converged := false

	for iterations < maxIter {
		iterations++

		for pi := range points {
			assignments[pi] = nearestCentroid(&points[pi], centroids, centroidMags)
		}

		members := make([][][]float32, len(centroids))
		for pi, ci := range assignments {
			members[ci] = append(members[ci], points[pi].vec)
		}

		converged = true
		for ci := range centroids {
			if len(members[ci]) == 0 {
				// An empty cluster keeps its previous centroid for
				// this round rather than being reseeded.
				continue
			}
			next := domvec.Normalize(domvec.Mean(members[ci]))
			if domvec.Cosine(centroids[ci], next) < convergenceSim {
				converged = false
			}
			centroids[ci] = next
			centroidMags[ci] = domvec.Magnitude(next)
		}

		if converged {
			break
		}
	}

	// Final assignment against the settled centroids so membership and
	// centroid positions agree.
	for pi := range points {
		assignments[pi] = nearestCentroid(&points[pi], centroids, centroidMags)
	}

	return assignments, iterations, converged
}

func nearestCentroid(p *point, centroids [][]float32, mags []float64) int {
	best := 0
	bestSim := domvec.CosineWithMagnitudes(p.vec, p.mag, centroids[0], mags[0])
	for i := 1; i < len(centroids); i++ {
		sim := domvec.CosineWithMagnitudes(p.vec, p.mag, centroids[i], mags[i])
		if sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best
}

func nearestSimilarity(p *point, centroids [][]float32) float64 {
	best := domvec.CosineWithMagnitudes(p.vec, p.mag, centroids[0], domvec.Magnitude(centroids[0]))
	for i := 1; i < len(centroids); i++ {
		sim := domvec.CosineWithMagnitudes(p.vec, p.mag, centroids[i], domvec.Magnitude(centroids[i]))
		if sim > best {
			best = sim
		}
	}
	return best
}
