package nav

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CalculatePath implements PathfindingOracle with A* over walkable cells.
// Moves are 8-connected on a floor (no corner cutting) and vertical between
// stacked stair cells. Endpoints standing on an unwalkable cell are snapped
// to the nearest walkable cell within two cells.
func (g *Grid) CalculatePath(a, b r3.Vec) (Path, error) {
	snap := 2 * g.CellSize
	start, err := g.snapEndpoint(a, snap)
	if err != nil {
		return Path{Status: PathInvalid}, err
	}
	goal, err := g.snapEndpoint(b, snap)
	if err != nil {
		return Path{Status: PathInvalid}, err
	}

	sf, sx, sz := g.CellOf(start)
	gf, gx, gz := g.CellOf(goal)
	if sf == gf && sx == gx && sz == gz {
		return Path{Corners: []r3.Vec{start, goal}, Status: PathComplete}, nil
	}

	startID := g.nodeID(sf, sx, sz)
	goalID := g.nodeID(gf, gx, gz)
	goalPos := g.CellCenter(gf, gx, gz)

	cost := map[int]float64{startID: 0}
	parent := map[int]int{startID: -1}
	closed := map[int]bool{}
	open := &nodeHeap{}
	heap.Push(open, nodeEntry{id: startID, f: r3.Norm(r3.Sub(g.CellCenter(sf, sx, sz), goalPos))})

	bestID, bestH := startID, math.Inf(1)
	found := false
	for open.Len() > 0 {
		cur := heap.Pop(open).(nodeEntry)
		if closed[cur.id] {
			continue
		}
		closed[cur.id] = true
		cf, cx, cz := g.nodeCell(cur.id)
		center := g.CellCenter(cf, cx, cz)
		if h := r3.Norm(r3.Sub(center, goalPos)); h < bestH {
			bestID, bestH = cur.id, h
		}
		if cur.id == goalID {
			found = true
			break
		}
		g.neighbors(cf, cx, cz, func(nf, nx, nz int) {
			nid := g.nodeID(nf, nx, nz)
			if closed[nid] {
				return
			}
			np := g.CellCenter(nf, nx, nz)
			c := cost[cur.id] + r3.Norm(r3.Sub(np, center))
			if old, ok := cost[nid]; ok && old <= c {
				return
			}
			cost[nid] = c
			parent[nid] = cur.id
			heap.Push(open, nodeEntry{id: nid, f: c + r3.Norm(r3.Sub(np, goalPos))})
		})
	}

	end := goalID
	if !found {
		end = bestID
	}
	var cells []int
	for id := end; id != -1; id = parent[id] {
		cells = append(cells, id)
	}
	corners := make([]r3.Vec, 0, len(cells)+1)
	corners = append(corners, start)
	for i := len(cells) - 2; i >= 1; i-- {
		f, x, z := g.nodeCell(cells[i])
		corners = append(corners, g.CellCenter(f, x, z))
	}
	if found {
		corners = append(corners, goal)
		return Path{Corners: simplify(corners), Status: PathComplete}, nil
	}
	f, x, z := g.nodeCell(end)
	corners = append(corners, g.CellCenter(f, x, z))
	return Path{Corners: simplify(corners), Status: PathPartial}, ErrPathIncomplete
}

func (g *Grid) snapEndpoint(p r3.Vec, radius float64) (r3.Vec, error) {
	f, ix, iz := g.CellOf(p)
	if g.Walkable(f, ix, iz) {
		return r3.Vec{X: p.X, Y: g.Elevations[f], Z: p.Z}, nil
	}
	return g.SamplePosition(p, radius)
}

func (g *Grid) neighbors(f, x, z int, visit func(nf, nx, nz int)) {
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dz == 0 {
				continue
			}
			if !g.Walkable(f, x+dx, z+dz) {
				continue
			}
			if dx != 0 && dz != 0 && (!g.Walkable(f, x+dx, z) || !g.Walkable(f, x, z+dz)) {
				continue
			}
			visit(f, x+dx, z+dz)
		}
	}
	if g.Kind(f, x, z) != CellStair {
		return
	}
	for _, nf := range []int{f - 1, f + 1} {
		if g.Kind(nf, x, z) == CellStair && g.Walkable(nf, x, z) {
			visit(nf, x, z)
		}
	}
}

func (g *Grid) nodeID(f, x, z int) int {
	return f*g.Width*g.Depth + z*g.Width + x
}

func (g *Grid) nodeCell(id int) (f, x, z int) {
	per := g.Width * g.Depth
	f = id / per
	rem := id % per
	return f, rem % g.Width, rem / g.Width
}

// simplify drops corners that continue in the same direction.
func simplify(corners []r3.Vec) []r3.Vec {
	if len(corners) < 3 {
		return corners
	}
	out := []r3.Vec{corners[0]}
	for i := 1; i < len(corners)-1; i++ {
		in := r3.Sub(corners[i], out[len(out)-1])
		next := r3.Sub(corners[i+1], corners[i])
		if r3.Norm(in) < 1e-9 {
			continue
		}
		if r3.Norm(r3.Cross(in, next)) < 1e-9 && r3.Dot(in, next) > 0 {
			continue
		}
		out = append(out, corners[i])
	}
	return append(out, corners[len(corners)-1])
}

type nodeEntry struct {
	id int
	f  float64
}

type nodeHeap []nodeEntry

func (h nodeHeap) Len() int           { return len(h) }
func (h nodeHeap) Less(i, j int) bool { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(nodeEntry)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
