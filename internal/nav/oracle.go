// Package nav defines the navigation and line-of-sight oracles the
// simulation core consumes, plus a reference multi-floor grid implementing
// both and a Walker that moves an agent along oracle paths.
package nav

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNotNavigable means no navigable surface lies within tolerance.
	ErrNotNavigable = errors.New("nav: point not navigable")
	// ErrPathIncomplete means a path exists but does not reach the goal.
	ErrPathIncomplete = errors.New("nav: path incomplete")
)

// PathStatus describes how far a calculated path reaches.
type PathStatus uint8

const (
	PathComplete PathStatus = iota
	PathPartial
	PathInvalid
)

// Path is a polyline of corners from start to goal.
type Path struct {
	Corners []r3.Vec
	Status  PathStatus
}

// Length sums the segment lengths of the path.
func (p Path) Length() float64 {
	total := 0.0
	for i := 1; i < len(p.Corners); i++ {
		total += r3.Norm(r3.Sub(p.Corners[i], p.Corners[i-1]))
	}
	return total
}

// PathfindingOracle answers world-coordinate navigability queries.
type PathfindingOracle interface {
	// SamplePosition returns the nearest navigable point within maxRadius.
	SamplePosition(p r3.Vec, maxRadius float64) (r3.Vec, error)
	// CalculatePath returns a path from a to b. A partial path is returned
	// together with ErrPathIncomplete.
	CalculatePath(a, b r3.Vec) (Path, error)
}

// VisibilityOracle answers line-of-sight queries against non-permeable
// geometry. Intersections within an epsilon of the target are ignored.
type VisibilityOracle interface {
	HasLineOfSight(from, to r3.Vec) bool
}

// ObstacleID identifies a carved obstacle.
type ObstacleID uint64

// ObstacleCarver registers dynamic navigation obstacles.
type ObstacleCarver interface {
	AddObstacle(center r3.Vec, radius float64) ObstacleID
	RemoveObstacle(id ObstacleID)
}

// PathDistance returns the navigable distance from a to b, sampling both
// endpoints within sampleRadius first. Failure of any step, or an incomplete
// path, yields +Inf.
func PathDistance(o PathfindingOracle, a, b r3.Vec, sampleRadius float64) float64 {
	start, err := o.SamplePosition(a, sampleRadius)
	if err != nil {
		return math.Inf(1)
	}
	end, err := o.SamplePosition(b, sampleRadius)
	if err != nil {
		return math.Inf(1)
	}
	path, err := o.CalculatePath(start, end)
	if err != nil || path.Status != PathComplete {
		return math.Inf(1)
	}
	return path.Length()
}
