package nav

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CellKind classifies one grid cell.
type CellKind uint8

const (
	CellWall CellKind = iota
	CellOpen
	// CellStair is walkable and links to the stair cell at the same column
	// on the floors directly above and below.
	CellStair
)

// Grid is a stack of 2D walkability grids, one per floor, on the XZ plane.
// Cell (ix, iz) spans [Origin.X+ix*CellSize, Origin.X+(ix+1)*CellSize) and
// likewise on Z. Floors sit at the given elevations.
type Grid struct {
	Origin     r3.Vec
	CellSize   float64
	Width      int
	Depth      int
	Elevations []float64

	// SightEpsilon is the distance before the target within which walls are
	// ignored by HasLineOfSight, so a marker on a wall stays visible.
	SightEpsilon float64

	cells   [][]CellKind
	blocked [][]uint16

	obstacles    map[ObstacleID][]cellRef
	nextObstacle ObstacleID
}

type cellRef struct {
	floor, ix, iz int
}

// NewGrid creates a grid with every cell open.
func NewGrid(origin r3.Vec, width, depth int, cellSize float64, elevations []float64) *Grid {
	g := &Grid{
		Origin:       origin,
		CellSize:     cellSize,
		Width:        width,
		Depth:        depth,
		Elevations:   append([]float64(nil), elevations...),
		SightEpsilon: 0.5,
		cells:        make([][]CellKind, len(elevations)),
		blocked:      make([][]uint16, len(elevations)),
		obstacles:    make(map[ObstacleID][]cellRef),
	}
	for f := range elevations {
		g.cells[f] = make([]CellKind, width*depth)
		g.blocked[f] = make([]uint16, width*depth)
		for i := range g.cells[f] {
			g.cells[f][i] = CellOpen
		}
	}
	return g
}

// Floors returns the number of floors.
func (g *Grid) Floors() int { return len(g.Elevations) }

func (g *Grid) inBounds(floor, ix, iz int) bool {
	return floor >= 0 && floor < len(g.cells) && ix >= 0 && ix < g.Width && iz >= 0 && iz < g.Depth
}

// Set assigns the kind of a cell. Out-of-range cells are ignored.
func (g *Grid) Set(floor, ix, iz int, k CellKind) {
	if g.inBounds(floor, ix, iz) {
		g.cells[floor][ix+iz*g.Width] = k
	}
}

// Kind returns the kind of a cell; out-of-range cells are walls.
func (g *Grid) Kind(floor, ix, iz int) CellKind {
	if !g.inBounds(floor, ix, iz) {
		return CellWall
	}
	return g.cells[floor][ix+iz*g.Width]
}

// Walkable reports whether a cell is open or stair and carries no obstacle.
func (g *Grid) Walkable(floor, ix, iz int) bool {
	if g.Kind(floor, ix, iz) == CellWall {
		return false
	}
	return g.blocked[floor][ix+iz*g.Width] == 0
}

// FloorAt returns the floor whose elevation is closest to y.
func (g *Grid) FloorAt(y float64) int {
	best, bestD := 0, math.Inf(1)
	for f, e := range g.Elevations {
		if d := math.Abs(e - y); d < bestD {
			best, bestD = f, d
		}
	}
	return best
}

// CellOf returns the cell containing p on the floor nearest p.Y.
func (g *Grid) CellOf(p r3.Vec) (floor, ix, iz int) {
	floor = g.FloorAt(p.Y)
	ix = int(math.Floor((p.X - g.Origin.X) / g.CellSize))
	iz = int(math.Floor((p.Z - g.Origin.Z) / g.CellSize))
	return floor, ix, iz
}

// CellCenter returns the world position of a cell center at floor level.
func (g *Grid) CellCenter(floor, ix, iz int) r3.Vec {
	return r3.Vec{
		X: g.Origin.X + (float64(ix)+0.5)*g.CellSize,
		Y: g.Elevations[floor],
		Z: g.Origin.Z + (float64(iz)+0.5)*g.CellSize,
	}
}

// SamplePosition implements PathfindingOracle. A point over a walkable cell
// resolves to itself at floor level; otherwise the nearest walkable cell
// center within maxRadius is returned.
func (g *Grid) SamplePosition(p r3.Vec, maxRadius float64) (r3.Vec, error) {
	if len(g.Elevations) == 0 || maxRadius < 0 {
		return r3.Vec{}, ErrNotNavigable
	}
	best, bestD := r3.Vec{}, math.Inf(1)
	reach := int(math.Ceil(maxRadius/g.CellSize)) + 1

	for f, elev := range g.Elevations {
		dy := math.Abs(elev - p.Y)
		if dy > maxRadius {
			continue
		}
		_, cx, cz := g.CellOf(r3.Vec{X: p.X, Y: elev, Z: p.Z})
		if g.Walkable(f, cx, cz) {
			if dy < bestD {
				best, bestD = r3.Vec{X: p.X, Y: elev, Z: p.Z}, dy
			}
			continue
		}
		for iz := cz - reach; iz <= cz+reach; iz++ {
			for ix := cx - reach; ix <= cx+reach; ix++ {
				if !g.Walkable(f, ix, iz) {
					continue
				}
				c := g.CellCenter(f, ix, iz)
				if d := r3.Norm(r3.Sub(c, p)); d < bestD {
					best, bestD = c, d
				}
			}
		}
	}
	if bestD > maxRadius {
		return r3.Vec{}, ErrNotNavigable
	}
	return best, nil
}

// HasLineOfSight implements VisibilityOracle. Floors occlude each other;
// on one floor the segment is marched against wall cells, ignoring the last
// SightEpsilon before the target. Carved obstacles do not block sight.
func (g *Grid) HasLineOfSight(from, to r3.Vec) bool {
	if len(g.Elevations) == 0 {
		return false
	}
	floor := g.FloorAt(from.Y)
	if g.FloorAt(to.Y) != floor {
		return false
	}
	d := r3.Vec{X: to.X - from.X, Z: to.Z - from.Z}
	dist := r3.Norm(d)
	if dist < 0.1 {
		return true
	}
	dir := r3.Scale(1/dist, d)
	step := g.CellSize / 4
	limit := dist - g.SightEpsilon
	for t := 0.0; t < limit; t += step {
		p := r3.Add(r3.Vec{X: from.X, Z: from.Z}, r3.Scale(t, dir))
		_, ix, iz := g.CellOf(r3.Vec{X: p.X, Y: g.Elevations[floor], Z: p.Z})
		if g.Kind(floor, ix, iz) == CellWall {
			return false
		}
	}
	return true
}

// AddObstacle implements ObstacleCarver. Cells whose centers lie within
// radius of center, and the cell containing center, become unwalkable until
// the obstacle is removed.
func (g *Grid) AddObstacle(center r3.Vec, radius float64) ObstacleID {
	g.nextObstacle++
	id := g.nextObstacle
	floor, cx, cz := g.CellOf(center)
	var refs []cellRef
	reach := int(math.Ceil(radius/g.CellSize)) + 1
	for iz := cz - reach; iz <= cz+reach; iz++ {
		for ix := cx - reach; ix <= cx+reach; ix++ {
			if !g.inBounds(floor, ix, iz) {
				continue
			}
			c := g.CellCenter(floor, ix, iz)
			planar := math.Hypot(c.X-center.X, c.Z-center.Z)
			if (ix == cx && iz == cz) || planar <= radius {
				g.blocked[floor][ix+iz*g.Width]++
				refs = append(refs, cellRef{floor, ix, iz})
			}
		}
	}
	g.obstacles[id] = refs
	return id
}

// RemoveObstacle implements ObstacleCarver.
func (g *Grid) RemoveObstacle(id ObstacleID) {
	refs, ok := g.obstacles[id]
	if !ok {
		return
	}
	for _, r := range refs {
		i := r.ix + r.iz*g.Width
		if g.blocked[r.floor][i] > 0 {
			g.blocked[r.floor][i]--
		}
	}
	delete(g.obstacles, id)
}

// ObstacleCount returns the number of active obstacles.
func (g *Grid) ObstacleCount() int { return len(g.obstacles) }
