// Package fire simulates a fire front that grows in discrete nodes through a
// building and kills any agent that comes too close to it.
//
// The front starts from one node in a random hazard zone, raises the alarm,
// then spreads on an accelerating interval. Growth and the lethality scan
// run as scheduler tasks owned by the Simulation.
package fire

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/world"
)

// ErrNoIgnitionPoint means no navigable ignition point could be found.
var ErrNoIgnitionPoint = errors.New("fire: no navigable ignition point")

// Config tunes the fire. Times are in seconds, distances in world units.
type Config struct {
	SpreadInterval  float64 `yaml:"spread_interval"`
	SpreadDecrement float64 `yaml:"spread_decrement"`
	MaxNodes        int     `yaml:"max_nodes"`
	MinDistance     float64 `yaml:"min_distance"` // minimum separation between nodes
	SpreadRadius    float64 `yaml:"spread_radius"`
	MaxAttempts     int     `yaml:"max_attempts"`
	FloorHeight     float64 `yaml:"floor_height"`
	ChanceUp        float64 `yaml:"chance_up"`
	ChanceDown      float64 `yaml:"chance_down"`
	VerticalJitter  float64 `yaml:"vertical_jitter"`
	NavTolerance    float64 `yaml:"nav_tolerance"`
	IgnitionRadius  float64 `yaml:"ignition_radius"`
	KillRadius      float64 `yaml:"kill_radius"`
	ScanInterval    float64 `yaml:"scan_interval"`
	CarveObstacles  bool    `yaml:"carve_obstacles"`
	ObstacleRadius  float64 `yaml:"obstacle_radius"`
}

// DefaultConfig returns the stock fire tuning.
func DefaultConfig() Config {
	return Config{
		SpreadInterval:  2,
		SpreadDecrement: 0.02,
		MaxNodes:        400,
		MinDistance:     0.5,
		SpreadRadius:    1.5,
		MaxAttempts:     5,
		FloorHeight:     2.2,
		ChanceUp:        0.075,
		ChanceDown:      0.05,
		VerticalJitter:  0.5,
		NavTolerance:    1,
		IgnitionRadius:  2,
		KillRadius:      0.5,
		ScanInterval:    0.2,
		CarveObstacles:  true,
		ObstacleRadius:  0.5,
	}
}

// State is the fire's lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Node is one unit of the fire front.
type Node struct {
	ID       uint64 `json:"id"`
	Position r3.Vec `json:"position"`
	Order    int    `json:"order"`

	obstacle nav.ObstacleID
	carved   bool
}

// Victims is the set of agents the lethality scan checks.
type Victims interface {
	// Each visits every live agent.
	Each(fn func(id uint64, pos r3.Vec))
	// Kill removes an agent as a fire death and reports whether it was alive.
	Kill(id uint64) bool
}

// Deps are the collaborators a Simulation uses. Carver and Victims are
// optional.
type Deps struct {
	Scene     world.Scene
	Paths     nav.PathfindingOracle
	Carver    nav.ObstacleCarver
	Bus       *alarm.Bus
	Scheduler *clock.Scheduler
	Victims   Victims
	RNG       *randx.RNG
}

// Simulation is the fire front and its growth and lethality loops.
type Simulation struct {
	cfg Config
	d   Deps

	state    State
	nodes    []*Node
	index    *kdtree.Tree
	nextID   uint64
	interval float64
	origin   r3.Vec
	deaths   int

	growth clock.Handle
	scan   clock.Handle
}

// New creates an idle fire.
func New(cfg Config, d Deps) *Simulation {
	return &Simulation{
		cfg:      cfg,
		d:        d,
		index:    &kdtree.Tree{},
		interval: cfg.SpreadInterval,
	}
}

// Start ignites the fire at a random point in a random hazard zone. It does
// nothing while the fire is already active.
func (s *Simulation) Start() error {
	if s.state == StateActive {
		return nil
	}
	rooms := s.d.Scene.Rooms()
	if len(rooms) == 0 {
		slog.Warn("fire cannot start", "err", world.ErrBootstrapMissing)
		return fmt.Errorf("no hazard zones: %w", world.ErrBootstrapMissing)
	}
	room := rooms[s.d.RNG.IntN(len(rooms))]
	p, ok := randx.TryN(s.cfg.MaxAttempts, func(int) (r3.Vec, bool) {
		raw := s.d.RNG.PointInBox(room.Bounds)
		raw.Y = room.Level()
		p, err := s.d.Paths.SamplePosition(raw, s.cfg.IgnitionRadius)
		return p, err == nil
	})
	if !ok {
		return fmt.Errorf("room %s: %w", room.Name, ErrNoIgnitionPoint)
	}
	return s.ignite(p, room.Name)
}

// StartAt ignites the fire at the navigable point nearest p.
func (s *Simulation) StartAt(p r3.Vec) error {
	if s.state == StateActive {
		return nil
	}
	snapped, err := s.d.Paths.SamplePosition(p, s.cfg.IgnitionRadius)
	if err != nil {
		return fmt.Errorf("ignite at %v: %w", p, errors.Join(ErrNoIgnitionPoint, err))
	}
	return s.ignite(snapped, "")
}

func (s *Simulation) ignite(p r3.Vec, zone string) error {
	s.state = StateActive
	s.interval = s.cfg.SpreadInterval
	s.origin = p
	s.addNode(p)
	s.growth = s.d.Scheduler.After(s, clock.Seconds(s.interval), s.grow)
	s.scan = s.d.Scheduler.Every(s, clock.Seconds(s.cfg.ScanInterval), s.scanVictims)
	slog.Info("fire started", "zone", zone, "x", p.X, "y", p.Y, "z", p.Z, "at", s.d.Scheduler.Now())
	if s.d.Bus != nil {
		s.d.Bus.Publish(p)
	}
	return nil
}

// Reset stops both loops, removes every node and its obstacle, and returns
// the fire to idle with its initial interval.
func (s *Simulation) Reset() {
	s.d.Scheduler.CancelOwner(s)
	s.growth, s.scan = clock.Handle{}, clock.Handle{}
	for _, n := range s.nodes {
		if n.carved && s.d.Carver != nil {
			s.d.Carver.RemoveObstacle(n.obstacle)
		}
	}
	removed := len(s.nodes)
	s.nodes = nil
	s.index = &kdtree.Tree{}
	s.interval = s.cfg.SpreadInterval
	s.state = StateIdle
	if s.d.Bus != nil {
		s.d.Bus.Reset()
	}
	slog.Info("fire reset", "nodes_removed", removed)
}

// State returns the lifecycle state.
func (s *Simulation) State() State { return s.state }

// Active reports whether the fire is burning.
func (s *Simulation) Active() bool { return s.state == StateActive }

// Count returns the number of fire nodes.
func (s *Simulation) Count() int { return len(s.nodes) }

// Interval returns the current spread interval in seconds.
func (s *Simulation) Interval() float64 { return s.interval }

// Origin returns the ignition point of the current fire.
func (s *Simulation) Origin() r3.Vec { return s.origin }

// Deaths returns the number of agents the fire has killed since New.
func (s *Simulation) Deaths() int { return s.deaths }

// Nodes returns a copy of the fire front in creation order.
func (s *Simulation) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = *n
	}
	return out
}

// NearestDistance returns the distance from p to the closest node, +Inf
// when there is no fire.
func (s *Simulation) NearestDistance(p r3.Vec) float64 {
	_, d2 := s.index.Nearest(point(p))
	return math.Sqrt(d2)
}

func point(p r3.Vec) kdtree.Point { return kdtree.Point{p.X, p.Y, p.Z} }

func (s *Simulation) addNode(p r3.Vec) {
	s.nextID++
	n := &Node{ID: s.nextID, Position: p, Order: len(s.nodes)}
	if s.cfg.CarveObstacles && s.d.Carver != nil {
		n.obstacle = s.d.Carver.AddObstacle(p, s.cfg.ObstacleRadius)
		n.carved = true
	}
	s.nodes = append(s.nodes, n)
	s.index.Insert(point(p), false)
}
