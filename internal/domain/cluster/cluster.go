// Package cluster holds the transient k-means clustering result types.
// Clusters are never persisted.
package cluster

// Cluster is one partition of a project's vectors.
type Cluster struct {
	ID       int
	Centroid []float32
	// MemberIDs holds "type:id" keys of the assigned records.
	MemberIDs []string
	Size      int
}

// Result is the outcome of one clustering run.
type Result struct {
	Clusters   []Cluster
	Iterations int
	Converged  bool
}
