// Building generation: a double-loaded corridor plan stacked over several
// floors. Rooms line both sides of the corridor, a stairwell closes the east
// end and the ground floor opens to an exit at the west end. Room interiors
// get simplex-noise clutter.
package world

import (
	"errors"
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
)

// BuildingConfig holds building generation parameters. Sizes are in cells.
type BuildingConfig struct {
	Floors        int     `yaml:"floors"`
	FloorHeight   float64 `yaml:"floor_height"`
	CellSize      float64 `yaml:"cell_size"`
	RoomsPerSide  int     `yaml:"rooms_per_side"`
	RoomWidth     int     `yaml:"room_width"`
	RoomDepth     int     `yaml:"room_depth"`
	CorridorWidth int     `yaml:"corridor_width"`
	StairWidth    int     `yaml:"stair_width"`
	BeaconSpacing int     `yaml:"beacon_spacing"`
	BeaconRange   float64 `yaml:"beacon_range"`
	Clutter       float64 `yaml:"clutter"`       // noise level above which a room cell is furniture; >= 1 disables
	ClutterScale  float64 `yaml:"clutter_scale"` // noise frequency per cell
	SmokeRooms    int     `yaml:"smoke_rooms"`   // rooms filled with a smoke region
}

// DefaultBuildingConfig returns a three-storey office block.
func DefaultBuildingConfig() BuildingConfig {
	return BuildingConfig{
		Floors:        3,
		FloorHeight:   2.2,
		CellSize:      1,
		RoomsPerSide:  4,
		RoomWidth:     7,
		RoomDepth:     5,
		CorridorWidth: 3,
		StairWidth:    3,
		BeaconSpacing: 8,
		BeaconRange:   15,
		Clutter:       0.72,
		ClutterScale:  0.35,
		SmokeRooms:    1,
	}
}

// SmallTestConfig returns a tiny two-floor building for rapid iteration.
func SmallTestConfig() BuildingConfig {
	return BuildingConfig{
		Floors:        2,
		FloorHeight:   2.2,
		CellSize:      1,
		RoomsPerSide:  2,
		RoomWidth:     5,
		RoomDepth:     4,
		CorridorWidth: 3,
		StairWidth:    2,
		BeaconSpacing: 6,
		BeaconRange:   15,
		Clutter:       1,
		ClutterScale:  0.35,
	}
}

// Validate checks that the plan is buildable.
func (c BuildingConfig) Validate() error {
	var errs []error
	if c.Floors < 1 {
		errs = append(errs, fmt.Errorf("floors %d < 1", c.Floors))
	}
	if c.FloorHeight <= 0 || c.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("floor height %.2f and cell size %.2f must be positive", c.FloorHeight, c.CellSize))
	}
	if c.RoomsPerSide < 1 || c.RoomWidth < 3 || c.RoomDepth < 3 {
		errs = append(errs, fmt.Errorf("rooms %d of %dx%d too small", c.RoomsPerSide, c.RoomWidth, c.RoomDepth))
	}
	if c.CorridorWidth < 1 || c.StairWidth < 1 {
		errs = append(errs, fmt.Errorf("corridor %d and stair %d widths must be positive", c.CorridorWidth, c.StairWidth))
	}
	if c.BeaconSpacing < 1 {
		errs = append(errs, fmt.Errorf("beacon spacing %d < 1", c.BeaconSpacing))
	}
	return errors.Join(errs...)
}

// plan holds the derived cell layout shared by every floor.
type plan struct {
	pitch          int
	width, depth   int
	stairX0        int
	corrZ0, corrZ1 int
	southZ0        int
	corrMid        int
	stairMid       int
}

func newPlan(c BuildingConfig) plan {
	p := plan{pitch: c.RoomWidth + 1}
	p.stairX0 = c.RoomsPerSide*p.pitch + 1
	p.width = p.stairX0 + c.StairWidth + 1
	p.corrZ0 = c.RoomDepth + 2
	p.corrZ1 = p.corrZ0 + c.CorridorWidth - 1
	p.southZ0 = p.corrZ1 + 2
	p.depth = p.southZ0 + c.RoomDepth + 1
	p.corrMid = p.corrZ0 + c.CorridorWidth/2
	p.stairMid = p.stairX0 + c.StairWidth/2
	return p
}

// Generate builds the scene registry and its navigation grid. The same
// config and seed always give the same building.
func Generate(cfg BuildingConfig, seed int64) (*Registry, *nav.Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("building config: %w", err)
	}
	p := newPlan(cfg)
	cs := cfg.CellSize

	elevations := make([]float64, cfg.Floors)
	for f := range elevations {
		elevations[f] = float64(f) * cfg.FloorHeight
	}
	g := nav.NewGrid(r3.Vec{}, p.width, p.depth, cs, elevations)
	reg := NewRegistry()
	noise := opensimplex.NewNormalized(seed)

	for f, elev := range elevations {
		for z := 0; z < p.depth; z++ {
			for x := 0; x < p.width; x++ {
				g.Set(f, x, z, nav.CellWall)
			}
		}

		for z := p.corrZ0; z <= p.corrZ1; z++ {
			for x := 1; x < p.width-1; x++ {
				kind := nav.CellOpen
				if x >= p.stairX0 {
					kind = nav.CellStair
				}
				g.Set(f, x, z, kind)
			}
		}
		reg.AddCorridor(fmt.Sprintf("F%d-corridor", f), cellBox(cs, elev, cfg.FloorHeight, 1, p.corrZ0, p.width-2, p.corrZ1), f)

		for k := 0; k < cfg.RoomsPerSide; k++ {
			x0 := 1 + k*p.pitch
			x1 := x0 + cfg.RoomWidth - 1
			door := x0 + cfg.RoomWidth/2

			north := [4]int{x0, 1, x1, cfg.RoomDepth}
			south := [4]int{x0, p.southZ0, x1, p.southZ0 + cfg.RoomDepth - 1}
			for side, r := range [2][4]int{north, south} {
				for z := r[1]; z <= r[3]; z++ {
					for x := r[0]; x <= r[2]; x++ {
						g.Set(f, x, z, nav.CellOpen)
					}
				}
				clutter(g, noise, cfg, f, r)
				name := fmt.Sprintf("F%d-N%d", f, k+1)
				doorZ := p.corrZ0 - 1
				if side == 1 {
					name = fmt.Sprintf("F%d-S%d", f, k+1)
					doorZ = p.corrZ1 + 1
				}
				g.Set(f, door, doorZ, nav.CellOpen)
				reg.AddRoom(name, cellBox(cs, elev, cfg.FloorHeight, r[0], r[1], r[2], r[3]), f)
			}
		}

		if f == 0 {
			for z := p.corrZ0; z <= p.corrZ1; z++ {
				g.Set(f, 0, z, nav.CellOpen)
			}
			reg.AddExit("west-door", g.CellCenter(0, 0, p.corrMid))
		}
		sealUnreachable(g, f, 1, p.corrMid)
	}

	if err := placeBeacons(reg, g, cfg, p); err != nil {
		return nil, nil, err
	}
	placeSmoke(reg, cfg.SmokeRooms, seed)
	return reg, g, nil
}

// cellBox converts an inclusive cell rectangle to a world box one floor tall.
func cellBox(cs, elev, height float64, x0, z0, x1, z1 int) r3.Box {
	return r3.Box{
		Min: r3.Vec{X: float64(x0) * cs, Y: elev, Z: float64(z0) * cs},
		Max: r3.Vec{X: float64(x1+1) * cs, Y: elev + height, Z: float64(z1+1) * cs},
	}
}

// clutter turns noisy interior cells into furniture, leaving a free ring
// along the room walls.
func clutter(g *nav.Grid, noise opensimplex.Noise, cfg BuildingConfig, f int, r [4]int) {
	if cfg.Clutter >= 1 {
		return
	}
	for z := r[1] + 1; z < r[3]; z++ {
		for x := r[0] + 1; x < r[2]; x++ {
			v := octaveNoise(noise, float64(x), float64(z)+float64(f)*31.7, 2, cfg.ClutterScale, 0.5)
			if v > cfg.Clutter {
				g.Set(f, x, z, nav.CellWall)
			}
		}
	}
}

// sealUnreachable walls off walkable cells that cannot be reached from the
// given cell, so every spawn point has a route out.
func sealUnreachable(g *nav.Grid, f, sx, sz int) {
	seen := make([]bool, g.Width*g.Depth)
	queue := [][2]int{{sx, sz}}
	seen[sx+sz*g.Width] = true
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			x, z := c[0]+d[0], c[1]+d[1]
			if g.Kind(f, x, z) == nav.CellWall || seen[x+z*g.Width] {
				continue
			}
			seen[x+z*g.Width] = true
			queue = append(queue, [2]int{x, z})
		}
	}
	for z := 0; z < g.Depth; z++ {
		for x := 0; x < g.Width; x++ {
			if !seen[x+z*g.Width] && g.Kind(f, x, z) != nav.CellWall {
				g.Set(f, x, z, nav.CellWall)
			}
		}
	}
}

// placeBeacons lays beacon chains along each corridor. Upper floors run east
// to the stairwell beacon, which links to the stairwell beacon below. The
// ground floor runs west from the stairwell to a final-exit beacon.
func placeBeacons(reg *Registry, g *nav.Grid, cfg BuildingConfig, p plan) error {
	half := cfg.BeaconSpacing / 2
	add := func(name string, f, x int, final bool) BeaconID {
		return reg.AddBeacon(Beacon{
			Name:            name,
			Position:        g.CellCenter(f, x, p.corrMid),
			Active:          true,
			VisibilityRange: cfg.BeaconRange,
			FinalExit:       final,
		})
	}
	chain := func(ids []BeaconID) error {
		for i := 1; i < len(ids); i++ {
			if err := reg.LinkBeacons(ids[i-1], ids[i]); err != nil {
				return fmt.Errorf("place beacons: %w", err)
			}
		}
		return nil
	}

	stairs := make([]BeaconID, cfg.Floors)
	ground := []BeaconID{}
	stairs[0] = add("F0-stair", 0, p.stairMid, false)
	ground = append(ground, stairs[0])
	for x := p.stairMid - cfg.BeaconSpacing; x-1 >= half; x -= cfg.BeaconSpacing {
		ground = append(ground, add(fmt.Sprintf("F0-B%d", len(ground)), 0, x, false))
	}
	ground = append(ground, add("F0-exit", 0, 1, true))
	if err := chain(ground); err != nil {
		return err
	}

	for f := 1; f < cfg.Floors; f++ {
		var ids []BeaconID
		for x := 1; p.stairMid-x >= half; x += cfg.BeaconSpacing {
			ids = append(ids, add(fmt.Sprintf("F%d-B%d", f, len(ids)), f, x, false))
		}
		stairs[f] = add(fmt.Sprintf("F%d-stair", f), f, p.stairMid, false)
		ids = append(ids, stairs[f], stairs[f-1])
		if err := chain(ids); err != nil {
			return err
		}
	}
	return reg.ValidateChains()
}

// placeSmoke fills n distinct random rooms with smoke.
func placeSmoke(reg *Registry, n int, seed int64) {
	rooms := reg.Rooms()
	if n <= 0 || len(rooms) == 0 {
		return
	}
	rng := randx.New(seed + 7)
	idx := make([]int, len(rooms))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n && i < len(idx); i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		reg.AddSmokeRegion(rooms[idx[i]].Bounds)
	}
}

// octaveNoise sums octaves of simplex noise, normalized to [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
