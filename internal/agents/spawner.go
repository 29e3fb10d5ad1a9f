// Agent spawning: draws a category for each evacuee, rolls its traits and
// drops it at a navigable point inside a random room.
package agents

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/world"
)

// CategoryTraits gives a category's share of the population and its trait
// ranges. Times are in seconds.
type CategoryTraits struct {
	Weight      float64 `yaml:"weight"`
	SpeedMin    float64 `yaml:"speed_min"`
	SpeedMax    float64 `yaml:"speed_max"`
	VisionMin   float64 `yaml:"vision_min"`
	VisionMax   float64 `yaml:"vision_max"`
	ReactionMin float64 `yaml:"reaction_min"`
	ReactionMax float64 `yaml:"reaction_max"`
}

// SpawnConfig controls initial population generation.
type SpawnConfig struct {
	Count        int            `yaml:"count"`
	SampleRadius float64        `yaml:"sample_radius"`
	Attempts     int            `yaml:"attempts"`
	Standard     CategoryTraits `yaml:"standard"`
	Elderly      CategoryTraits `yaml:"elderly"`
	Disabled     CategoryTraits `yaml:"disabled"`
}

// DefaultSpawnConfig returns a mostly able-bodied office population.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		Count:        60,
		SampleRadius: 2,
		Attempts:     10,
		Standard:     CategoryTraits{Weight: 0.75, SpeedMin: 1.2, SpeedMax: 1.6, VisionMin: 10, VisionMax: 20, ReactionMin: 1, ReactionMax: 4},
		Elderly:      CategoryTraits{Weight: 0.15, SpeedMin: 0.6, SpeedMax: 0.9, VisionMin: 8, VisionMax: 14, ReactionMin: 2, ReactionMax: 6},
		Disabled:     CategoryTraits{Weight: 0.10, SpeedMin: 0.4, SpeedMax: 0.7, VisionMin: 10, VisionMax: 18, ReactionMin: 2, ReactionMax: 5},
	}
}

func (c SpawnConfig) traits(cat Category) CategoryTraits {
	switch cat {
	case CategoryElderly:
		return c.Elderly
	case CategoryDisabled:
		return c.Disabled
	default:
		return c.Standard
	}
}

// Spawner creates agents for the simulation.
type Spawner struct {
	cfg    SpawnConfig
	rng    *randx.RNG
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(cfg SpawnConfig, seed int64) *Spawner {
	return &Spawner{
		cfg:    cfg,
		rng:    randx.New(seed + 300),
		nextID: 1,
	}
}

// Spawn creates one agent in a random room. It fails when the scene has no
// rooms or no navigable spot was found.
func (s *Spawner) Spawn(scene world.Scene, paths nav.PathfindingOracle) (*Agent, bool) {
	rooms := scene.Rooms()
	if len(rooms) == 0 {
		return nil, false
	}
	room := rooms[s.rng.IntN(len(rooms))]
	pos, ok := randx.TryN(s.cfg.Attempts, func(int) (r3.Vec, bool) {
		p := s.rng.PointInBox(room.Bounds)
		p.Y = room.Level()
		snapped, err := paths.SamplePosition(p, s.cfg.SampleRadius)
		return snapped, err == nil
	})
	if !ok {
		return nil, false
	}

	cat := s.category()
	id := s.nextID
	s.nextID++
	return &Agent{
		ID:          id,
		Name:        s.generateName(),
		Traits:      s.rollTraits(cat),
		Position:    pos,
		State:       StateWandering,
		CurrentRoom: room.ID,
	}, true
}

// SpawnPopulation creates up to n agents; fewer when spawning fails.
func (s *Spawner) SpawnPopulation(scene world.Scene, paths nav.PathfindingOracle, n int) []*Agent {
	out := make([]*Agent, 0, n)
	for i := 0; i < n; i++ {
		if a, ok := s.Spawn(scene, paths); ok {
			out = append(out, a)
		}
	}
	return out
}

func (s *Spawner) category() Category {
	weights := [3]float64{s.cfg.Standard.Weight, s.cfg.Elderly.Weight, s.cfg.Disabled.Weight}
	total := weights[0] + weights[1] + weights[2]
	if total <= 0 {
		return CategoryStandard
	}
	r := s.rng.Float() * total
	for i, w := range weights {
		if r < w {
			return Category(i)
		}
		r -= w
	}
	return CategoryStandard
}

func (s *Spawner) rollTraits(cat Category) Traits {
	t := s.cfg.traits(cat)
	return Traits{
		Category:     cat,
		MoveSpeed:    s.rng.Range(t.SpeedMin, t.SpeedMax),
		VisionRange:  s.rng.Range(t.VisionMin, t.VisionMax),
		ReactionTime: s.rng.Range(t.ReactionMin, t.ReactionMax),
	}
}

func (s *Spawner) generateName() string {
	var firsts []string
	if s.rng.Chance(0.5) {
		firsts = maleNames
	} else {
		firsts = femaleNames
	}
	first := firsts[s.rng.IntN(len(firsts))]
	last := lastNames[s.rng.IntN(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var maleNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Oswin", "Per", "Quinn", "Rowan", "Stellan", "Theron", "Ulric",
}

var femaleNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Olwen", "Petra", "Runa", "Senna", "Thea", "Una", "Vera",
}

var lastNames = []string{
	"Voss", "Thornwood", "Ashford", "Dunmore", "Millward", "Copperfield",
	"Silverdale", "Deepwell", "Brightwater", "Redforge", "Marshwood",
	"Holloway", "Farrow", "Wyatt", "Thatcher", "Caldwell", "Harper",
	"Mercer", "Ward", "Cross",
}
