package nav

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Walker is the movement executor for one agent: it asks the oracle for a
// path and advances a position along it at the current speed.
type Walker struct {
	paths PathfindingOracle

	// SampleRadius bounds how far a requested destination may be snapped
	// onto the navigable surface.
	SampleRadius float64

	corners []r3.Vec
	next    int
	dest    r3.Vec
	hasPath bool
	speed   float64
}

// NewWalker creates a walker with no path.
func NewWalker(paths PathfindingOracle, speed float64) *Walker {
	return &Walker{paths: paths, SampleRadius: 2, speed: speed}
}

// SetDestination computes a path from `from` to `to`. On failure the current
// path is cleared and false is returned.
func (w *Walker) SetDestination(from, to r3.Vec) bool {
	target, err := w.paths.SamplePosition(to, w.SampleRadius)
	if err != nil {
		w.Clear()
		return false
	}
	path, err := w.paths.CalculatePath(from, target)
	if err != nil || len(path.Corners) == 0 {
		w.Clear()
		return false
	}
	w.corners = path.Corners
	w.next = 1
	w.dest = target
	w.hasPath = true
	return true
}

// HasPath reports whether a path is held, including one already walked.
func (w *Walker) HasPath() bool { return w.hasPath }

// PathPending is always false: paths are computed synchronously.
func (w *Walker) PathPending() bool { return false }

// Destination returns the last accepted destination.
func (w *Walker) Destination() r3.Vec { return w.dest }

// RemainingDistance is the distance left along the path from pos.
// It is +Inf without a path.
func (w *Walker) RemainingDistance(pos r3.Vec) float64 {
	if !w.hasPath {
		return math.Inf(1)
	}
	if w.next >= len(w.corners) {
		return 0
	}
	d := r3.Norm(r3.Sub(w.corners[w.next], pos))
	for i := w.next + 1; i < len(w.corners); i++ {
		d += r3.Norm(r3.Sub(w.corners[i], w.corners[i-1]))
	}
	return d
}

// Speed returns the movement speed in units per second.
func (w *Walker) Speed() float64 { return w.speed }

// SetSpeed sets the movement speed; negative values become zero.
func (w *Walker) SetSpeed(v float64) { w.speed = math.Max(0, v) }

// Clear drops the current path.
func (w *Walker) Clear() {
	w.corners = nil
	w.next = 0
	w.hasPath = false
}

// Advance moves pos along the path by speed*dt and returns the new position.
func (w *Walker) Advance(pos r3.Vec, dt float64) r3.Vec {
	budget := w.speed * dt
	for budget > 0 && w.hasPath && w.next < len(w.corners) {
		target := w.corners[w.next]
		seg := r3.Sub(target, pos)
		dist := r3.Norm(seg)
		if dist <= budget {
			pos = target
			budget -= dist
			w.next++
			continue
		}
		pos = r3.Add(pos, r3.Scale(budget/dist, seg))
		budget = 0
	}
	return pos
}
