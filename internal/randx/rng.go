// Package randx wraps math/rand/v2 with the sampling helpers the simulation
// needs: ranges, Bernoulli trials, unit-ball directions and points in boxes.
package randx

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
)

// RNG is a deterministic, seedable random source. Not safe for concurrent use.
type RNG struct {
	r *rand.Rand
}

// New creates an RNG seeded from seed.
func New(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))}
}

// Float returns a uniform value in [0, 1).
func (g *RNG) Float() float64 {
	return g.r.Float64()
}

// Range returns a uniform value in [lo, hi). Returns lo when hi <= lo.
func (g *RNG) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.r.Float64()*(hi-lo)
}

// IntN returns a uniform int in [0, n). Returns 0 when n <= 0.
func (g *RNG) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return g.r.IntN(n)
}

// Chance reports true with probability p.
func (g *RNG) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.r.Float64() < p
}

// InsideUnitSphere returns a uniformly distributed point in the unit ball.
func (g *RNG) InsideUnitSphere() r3.Vec {
	for {
		v := r3.Vec{X: g.Range(-1, 1), Y: g.Range(-1, 1), Z: g.Range(-1, 1)}
		if r3.Norm2(v) <= 1 {
			return v
		}
	}
}

// InsideUnitCircle returns a uniform point in the unit disc on the XZ plane.
func (g *RNG) InsideUnitCircle() r3.Vec {
	angle := g.r.Float64() * 2 * math.Pi
	radius := math.Sqrt(g.r.Float64())
	return r3.Vec{X: math.Cos(angle) * radius, Z: math.Sin(angle) * radius}
}

// Direction returns a unit vector on the XZ plane.
func (g *RNG) Direction() r3.Vec {
	angle := g.r.Float64() * 2 * math.Pi
	return r3.Vec{X: math.Cos(angle), Z: math.Sin(angle)}
}

// PointInBox returns a uniform point inside b.
func (g *RNG) PointInBox(b r3.Box) r3.Vec {
	return r3.Vec{
		X: g.Range(b.Min.X, b.Max.X),
		Y: g.Range(b.Min.Y, b.Max.Y),
		Z: g.Range(b.Min.Z, b.Max.Z),
	}
}
