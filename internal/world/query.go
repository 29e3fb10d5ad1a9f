package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ClosestPoint returns the point of b nearest p.
func ClosestPoint(b r3.Box, p r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Max(b.Min.X, math.Min(p.X, b.Max.X)),
		Y: math.Max(b.Min.Y, math.Min(p.Y, b.Max.Y)),
		Z: math.Max(b.Min.Z, math.Min(p.Z, b.Max.Z)),
	}
}

// NearestCorridorPoint returns the closest floor-level point on any corridor
// whose floor is at most maxAbove above from, and its distance.
func NearestCorridorPoint(s Scene, from r3.Vec, maxAbove float64) (r3.Vec, float64, bool) {
	best, bestD := r3.Vec{}, math.Inf(1)
	for _, c := range s.Corridors() {
		if c.Level() > from.Y+maxAbove {
			continue
		}
		p := ClosestPoint(c.Bounds, from)
		p.Y = c.Level()
		if d := r3.Norm(r3.Sub(p, from)); d < bestD {
			best, bestD = p, d
		}
	}
	return best, bestD, !math.IsInf(bestD, 1)
}

// CorridorBetween returns the floor-level corridor point closest to the
// midpoint of two rooms, considering corridors within tol of a's floor.
func CorridorBetween(s Scene, a, b *Room, tol float64) (r3.Vec, bool) {
	mid := r3.Scale(0.5, r3.Add(a.Bounds.Center(), b.Bounds.Center()))
	best, bestD := r3.Vec{}, math.Inf(1)
	for _, c := range s.Corridors() {
		if math.Abs(c.Level()-a.Level()) > tol {
			continue
		}
		p := ClosestPoint(c.Bounds, mid)
		p.Y = c.Level()
		if d := r3.Norm(r3.Sub(p, mid)); d < bestD {
			best, bestD = p, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}

// RoomAt returns the room whose footprint contains p and whose floor is
// within tol of p.Y.
func RoomAt(s Scene, p r3.Vec, tol float64) (*Room, bool) {
	for _, r := range s.Rooms() {
		b := r.Bounds
		if p.X < b.Min.X || p.X > b.Max.X || p.Z < b.Min.Z || p.Z > b.Max.Z {
			continue
		}
		if math.Abs(r.Level()-p.Y) <= tol {
			return r, true
		}
	}
	return nil, false
}

// RoomsNear lists rooms whose floor is within tol of y, except one.
func RoomsNear(s Scene, y, tol float64, except RoomID) []*Room {
	var out []*Room
	for _, r := range s.Rooms() {
		if r.ID != except && math.Abs(r.Level()-y) <= tol {
			out = append(out, r)
		}
	}
	return out
}

// NearestExit returns the exit closest to p.
func NearestExit(s Scene, p r3.Vec) (*Exit, float64, bool) {
	var best *Exit
	bestD := math.Inf(1)
	for _, e := range s.Exits() {
		if d := r3.Norm(r3.Sub(e.Position, p)); d < bestD {
			best, bestD = e, d
		}
	}
	return best, bestD, best != nil
}

// NearExit reports whether any exit lies within radius of p.
func NearExit(s Scene, p r3.Vec, radius float64) bool {
	_, d, ok := NearestExit(s, p)
	return ok && d <= radius
}

// InSmokeRegion reports whether p lies inside any smoke region.
func InSmokeRegion(s Scene, p r3.Vec) bool {
	for _, sm := range s.SmokeRegions() {
		if sm.Bounds.Contains(p) {
			return true
		}
	}
	return false
}
