// Package route answers beacon questions for evacuating agents: where a
// chain leads and which beacons an agent can currently see.
package route

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/world"
)

// Config tunes beacon visibility.
type Config struct {
	VisionFactor   float64 `yaml:"vision_factor"`    // path distance allowance as a multiple of vision range
	MaxHeightAbove float64 `yaml:"max_height_above"` // beacons higher than this above the agent are ignored
	EyeHeight      float64 `yaml:"eye_height"`
	SampleRadius   float64 `yaml:"sample_radius"`
}

// DefaultConfig returns the stock visibility tuning.
func DefaultConfig() Config {
	return Config{
		VisionFactor:   1.5,
		MaxHeightAbove: 2.2,
		EyeHeight:      0.6,
		SampleRadius:   2,
	}
}

// Graph combines the scene's beacons with the navigation oracles.
type Graph struct {
	scene world.Scene
	paths nav.PathfindingOracle
	sight nav.VisibilityOracle
	cfg   Config
}

// New creates a graph. A scene without beacons yields a graph that never
// finds a visible beacon.
func New(scene world.Scene, paths nav.PathfindingOracle, sight nav.VisibilityOracle, cfg Config) *Graph {
	g := &Graph{scene: scene, paths: paths, sight: sight, cfg: cfg}
	if !g.Enabled() {
		slog.Warn("no beacons in scene; beacon routing disabled", "err", world.ErrBootstrapMissing)
	}
	return g
}

// Enabled reports whether the scene has any beacons.
func (g *Graph) Enabled() bool { return len(g.scene.Beacons()) > 0 }

// Beacon resolves an ID, treating a missing beacon as absent.
func (g *Graph) Beacon(id world.BeaconID) (*world.Beacon, bool) {
	if id == 0 {
		return nil, false
	}
	return g.scene.Beacon(id)
}

// Next returns the beacon after id in its chain.
func (g *Graph) Next(id world.BeaconID) (*world.Beacon, bool) {
	b, ok := g.Beacon(id)
	if !ok {
		return nil, false
	}
	return g.Beacon(b.Next)
}

// Chain walks forward from `from`, inclusive. The walk stops at the end of
// the chain, at a missing beacon, or after as many steps as there are
// beacons, so a cyclic scene cannot loop forever.
func (g *Graph) Chain(from world.BeaconID) []world.BeaconID {
	limit := len(g.scene.Beacons())
	var out []world.BeaconID
	for id := from; id != 0 && len(out) < limit; {
		b, ok := g.scene.Beacon(id)
		if !ok {
			break
		}
		out = append(out, id)
		id = b.Next
	}
	return out
}

// PathDistance is the navigable distance between two points, +Inf when no
// complete path exists.
func (g *Graph) PathDistance(from, to r3.Vec) float64 {
	return nav.PathDistance(g.paths, from, to, g.cfg.SampleRadius)
}

// Visible reports whether an agent at `from` with the given vision range can
// see b, and the path distance to it.
func (g *Graph) Visible(from r3.Vec, b *world.Beacon, vision float64) (float64, bool) {
	if b == nil || !b.Active {
		return math.Inf(1), false
	}
	if b.Position.Y > from.Y+g.cfg.MaxHeightAbove {
		return math.Inf(1), false
	}
	reach := vision * g.cfg.VisionFactor
	if b.VisibilityRange > 0 {
		reach = math.Min(reach, b.VisibilityRange)
	}
	if r3.Norm(r3.Sub(b.Position, from)) > reach {
		return math.Inf(1), false
	}
	eye := r3.Vec{Y: g.cfg.EyeHeight}
	if !g.sight.HasLineOfSight(r3.Add(from, eye), r3.Add(b.Position, eye)) {
		return math.Inf(1), false
	}
	d := g.PathDistance(from, b.Position)
	if d > reach {
		return d, false
	}
	return d, true
}

// NearestVisible returns the visible active beacon with the shortest path.
// Beacons for which skip reports true are ignored; skip may be nil.
func (g *Graph) NearestVisible(from r3.Vec, vision float64, skip func(*world.Beacon) bool) (*world.Beacon, float64, bool) {
	var best *world.Beacon
	bestD := math.Inf(1)
	for _, b := range g.scene.Beacons() {
		if skip != nil && skip(b) {
			continue
		}
		d, ok := g.Visible(from, b, vision)
		if ok && d < bestD {
			best, bestD = b, d
		}
	}
	return best, bestD, best != nil
}
