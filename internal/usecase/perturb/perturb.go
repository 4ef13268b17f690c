// Package perturb generates noise vectors for exploratory search modes.
package perturb

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/seren-labs/serendex/internal/domain"
	"github.com/seren-labs/serendex/internal/domain/search/mode"
	domvec "github.com/seren-labs/serendex/internal/domain/vector"
)

// Generator produces perturbed copies of query vectors. The zero noise
// level is always the identity transform.
type Generator struct {
	randFloat func() float64
}

// New creates a generator backed by the shared PRNG.
func New() *Generator {
	return &Generator{randFloat: rand.Float64}
}

// WithRand replaces the uniform source, for deterministic tests.
func (g *Generator) WithRand(f func() float64) *Generator {
	g.randFloat = f
	return g
}

// Apply perturbs v with the given noise shape and level.
func (g *Generator) Apply(kind mode.Perturbation, v []float32, level float64) ([]float32, error) {
	switch kind {
	case mode.Gaussian:
		return g.Gaussian(v, level), nil
	case mode.Uniform:
		return g.Uniform(v, level), nil
	case mode.Directional:
		return g.Directional(v, level), nil
	default:
		return nil, fmt.Errorf("unknown perturbation %q: %w", kind, domain.ErrValidation)
	}
}

// Gaussian adds independent Box-Muller noise scaled by level to each
// component, then renormalizes to unit length. Downstream cosine scoring
// assumes roughly unit-norm vectors. Level 0 returns the input unchanged,
// skipping renormalization so repeated calls cannot drift.
func (g *Generator) Gaussian(v []float32, level float64) []float32 {
	if level == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) + g.gaussian()*level)
	}
	return renormalizeOr(out, v)
}

// Uniform adds Uniform(-level, level) noise per component, then
// renormalizes identically to Gaussian.
func (g *Generator) Uniform(v []float32, level float64) []float32 {
	if level == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		noise := (g.randFloat()*2 - 1) * level
		out[i] = float32(float64(x) + noise)
	}
	return renormalizeOr(out, v)
}

// Directional samples one random unit direction and drifts every
// component by level along it, a consistent shift rather than
// per-component jitter.
func (g *Generator) Directional(v []float32, level float64) []float32 {
	if level == 0 {
		return v
	}

	dir := make([]float32, len(v))
	for i := range dir {
		dir[i] = float32(g.gaussian())
	}
	dir = domvec.Normalize(dir)
	if domvec.Magnitude(dir) == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x + float32(level)*dir[i]
	}
	return renormalizeOr(out, v)
}

// gaussian draws one standard normal sample via Box-Muller. Uniforms of
// exactly 0 are redrawn; ln(0) is undefined.
func (g *Generator) gaussian() float64 {
	u := g.randFloat()
	for u == 0 {
		u = g.randFloat()
	}
	v := g.randFloat()
	for v == 0 {
		v = g.randFloat()
	}
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}

// renormalizeOr returns the unit-length version of out, or fallback when
// the perturbed vector collapsed to zero magnitude.
func renormalizeOr(out, fallback []float32) []float32 {
	mag := domvec.Magnitude(out)
	if mag == 0 {
		return fallback
	}
	for i, x := range out {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
