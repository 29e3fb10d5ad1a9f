package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/agents"
	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/fire"
	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/route"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

// Settings tunes the simulation loop. Times are in seconds.
type Settings struct {
	// FireStartDelay ignites the fire this long after the start. Negative
	// disables automatic ignition.
	FireStartDelay float64 `yaml:"fire_start_delay"`
	// SmokeFireRadius puts agents this close to a fire node in smoke.
	SmokeFireRadius float64 `yaml:"smoke_fire_radius"`

	DensityCulling bool    `yaml:"density_culling"`
	CrowdCellSize  float64 `yaml:"crowd_cell_size"`
	MaxPerCell     int     `yaml:"max_per_cell"`

	// MaxEvents bounds the removal log kept in memory.
	MaxEvents int `yaml:"max_events"`
}

// DefaultSettings returns the stock loop tuning.
func DefaultSettings() Settings {
	return Settings{
		FireStartDelay:  10,
		SmokeFireRadius: 3,
		DensityCulling:  false,
		CrowdCellSize:   1,
		MaxPerCell:      6,
		MaxEvents:       1000,
	}
}

// Params is everything needed to build a Simulation.
type Params struct {
	Seed     int64
	Building world.BuildingConfig
	Behavior agents.BehaviorConfig
	Panic    agents.PanicConfig
	Spawn    agents.SpawnConfig
	Fire     fire.Config
	Route    route.Config
	Settings Settings
}

// DefaultParams returns stock tuning for every subsystem.
func DefaultParams(seed int64) Params {
	return Params{
		Seed:     seed,
		Building: world.DefaultBuildingConfig(),
		Behavior: agents.DefaultBehaviorConfig(),
		Panic:    agents.DefaultPanicConfig(),
		Spawn:    agents.DefaultSpawnConfig(),
		Fire:     fire.DefaultConfig(),
		Route:    route.DefaultConfig(),
		Settings: DefaultSettings(),
	}
}

// Command mutates the simulation from the tick goroutine.
type Command func(s *Simulation)

// Simulation holds the complete drill state and wires systems together.
// Step runs under the write lock; snapshot readers take the read lock.
type Simulation struct {
	mu sync.RWMutex

	Seed     int64
	Scene    *world.Registry
	Grid     *nav.Grid
	Sched    *clock.Scheduler
	Bus      *alarm.Bus
	Stats    *stats.Counter
	Pop      *agents.Population
	Behavior *agents.Behavior
	Routes   *route.Graph
	Fire     *fire.Simulation

	settings Settings
	tick     uint64
	elapsed  float64

	autoIgnite clock.Handle

	cmdMu    sync.Mutex
	commands []Command
}

// NewSimulation generates the building, spawns the crowd and arms the
// automatic ignition. A scene without beacons or rooms is logged and run
// with those subsystems inactive.
func NewSimulation(p Params) (*Simulation, error) {
	reg, grid, err := world.Generate(p.Building, p.Seed)
	if err != nil {
		return nil, fmt.Errorf("generate building: %w", err)
	}
	if err := reg.Validate(); err != nil {
		slog.Warn("scene incomplete", "err", err)
	}

	sched := clock.NewScheduler()
	bus := alarm.NewBus()
	counter := stats.NewCounter(p.Settings.MaxEvents)
	pop := agents.NewPopulation(sched, bus, counter)
	routes := route.New(reg, grid, grid, p.Route)

	s := &Simulation{
		Seed:     p.Seed,
		Scene:    reg,
		Grid:     grid,
		Sched:    sched,
		Bus:      bus,
		Stats:    counter,
		Pop:      pop,
		Routes:   routes,
		settings: p.Settings,
	}
	s.Behavior = agents.NewBehavior(p.Behavior, p.Panic, agents.Deps{
		Scene:      reg,
		Routes:     routes,
		Paths:      grid,
		Sight:      grid,
		Bus:        bus,
		Scheduler:  sched,
		Population: pop,
		RNG:        randx.New(p.Seed + 100),
	})
	s.Fire = fire.New(p.Fire, fire.Deps{
		Scene:     reg,
		Paths:     grid,
		Carver:    grid,
		Bus:       bus,
		Scheduler: sched,
		Victims:   pop,
		RNG:       randx.New(p.Seed + 200),
	})

	spawner := agents.NewSpawner(p.Spawn, p.Seed)
	crowd := spawner.SpawnPopulation(reg, grid, p.Spawn.Count)
	for _, a := range crowd {
		s.Behavior.Attach(a, nav.NewWalker(grid, a.Traits.MoveSpeed))
	}
	counter.AddSpawned(len(crowd))
	if len(crowd) < p.Spawn.Count {
		slog.Warn("spawned fewer agents than requested", "requested", p.Spawn.Count, "spawned", len(crowd))
	}

	if p.Settings.FireStartDelay >= 0 {
		s.autoIgnite = sched.After(s, clock.Seconds(p.Settings.FireStartDelay), func() {
			s.autoIgnite = clock.Handle{}
			if err := s.Fire.Start(); err != nil {
				slog.Warn("automatic ignition failed", "err", err)
			}
		})
	}

	slog.Info("simulation ready",
		"seed", p.Seed,
		"agents", len(crowd),
		"rooms", len(reg.Rooms()),
		"beacons", len(reg.Beacons()),
		"exits", len(reg.Exits()),
		"fire_delay", p.Settings.FireStartDelay,
	)
	return s, nil
}

// Enqueue schedules cmd to run at the start of the next Step. Safe for
// concurrent use.
func (s *Simulation) Enqueue(cmd Command) {
	s.cmdMu.Lock()
	s.commands = append(s.commands, cmd)
	s.cmdMu.Unlock()
}

func (s *Simulation) drainCommands() {
	s.cmdMu.Lock()
	cmds := s.commands
	s.commands = nil
	s.cmdMu.Unlock()
	for _, c := range cmds {
		c(s)
	}
}

// Step advances the simulation by dt seconds: queued commands, due
// scheduler tasks, smoke detection, agent behavior, movement, then crowd
// culling.
func (s *Simulation) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainCommands()
	s.tick++
	s.elapsed += dt
	s.Sched.AdvanceTo(clock.Seconds(s.elapsed))

	for _, a := range s.Pop.Alive() {
		s.Behavior.SetInSmoke(a, s.inSmoke(a.Position))
		s.Behavior.Tick(a, dt)
	}
	for _, a := range s.Pop.Alive() {
		a.Move(dt)
	}
	if s.settings.DensityCulling {
		s.cullCrowds()
	}
}

// StartFire ignites the fire, at the navigable point nearest at when given,
// otherwise in a random room. Call it from a Command or between Steps.
func (s *Simulation) StartFire(at *r3.Vec) error {
	s.autoIgnite.Cancel()
	s.autoIgnite = clock.Handle{}
	if at != nil {
		return s.Fire.StartAt(*at)
	}
	return s.Fire.Start()
}

// ResetFire extinguishes the fire and clears the alarm. Agents already
// evacuating keep evacuating. Call it from a Command or between Steps.
func (s *Simulation) ResetFire() {
	s.autoIgnite.Cancel()
	s.autoIgnite = clock.Handle{}
	s.Fire.Reset()
}

// Finished reports whether nobody is left in the building.
func (s *Simulation) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Pop.Len() == 0
}

// Elapsed returns the simulated time.
func (s *Simulation) Elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clock.Seconds(s.elapsed)
}

// ErrFireActive is returned by ignition requests while a fire burns.
var ErrFireActive = errors.New("engine: fire already active")

// RequestFire queues an ignition and reports synchronously whether one is
// already burning.
func (s *Simulation) RequestFire(at *r3.Vec) error {
	s.mu.RLock()
	active := s.Fire.Active()
	s.mu.RUnlock()
	if active {
		return ErrFireActive
	}
	s.Enqueue(func(s *Simulation) {
		if err := s.StartFire(at); err != nil {
			slog.Warn("requested ignition failed", "err", err)
		}
	})
	return nil
}

// RequestReset queues a fire reset.
func (s *Simulation) RequestReset() {
	s.Enqueue(func(s *Simulation) { s.ResetFire() })
}
