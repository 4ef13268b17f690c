// Package mode defines the search strategies and their noise/window settings.
package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Exact retrieves literal nearest neighbors, no query perturbation.
	Exact Mode = "exact"
	// Similar adds light noise to broaden the neighborhood.
	Similar Mode = "similar"
	// Serendipity adds strong noise to surface unexpected-but-plausible results.
	Serendipity Mode = "serendipity"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Exact || m == Similar || m == Serendipity
}

// Perturbation selects the noise shape applied to the query vector.
type Perturbation string

// Perturbation kind constants.
const (
	// Gaussian applies independent per-component Box-Muller noise.
	Gaussian Perturbation = "gaussian"
	// Uniform applies independent per-component uniform noise.
	Uniform Perturbation = "uniform"
	// Directional drifts the whole query along one random unit direction.
	Directional Perturbation = "directional"
)

// IsValid checks if the perturbation kind is supported.
func (p Perturbation) IsValid() bool {
	return p == Gaussian || p == Uniform || p == Directional
}

// Settings pairs a noise level with a candidate pool size for one mode.
type Settings struct {
	NoiseLevel float64
	PoolSize   int
}

// Table maps every mode to its settings.
type Table map[Mode]Settings

// DefaultTable returns the default noise/pool tuning per mode.
// Pool sizes grow with noise so perturbed queries still find enough
// plausible neighbors inside the bounded candidate window.
func DefaultTable() Table {
	return Table{
		Exact:       {NoiseLevel: 0, PoolSize: 20},
		Similar:     {NoiseLevel: 0.1, PoolSize: 45},
		Serendipity: {NoiseLevel: 0.3, PoolSize: 125},
	}
}
