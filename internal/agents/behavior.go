// Agent behavior: a two-state machine. Agents wander between rooms until the
// alarm reaches them, then, after their reaction time, evacuate along beacon
// chains toward an exit. Panic and smoke bend both speed and destination.
package agents

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/route"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

// BehaviorConfig tunes the state machine. Distances are in world units,
// times in seconds, rates per second.
type BehaviorConfig struct {
	// Wandering
	WanderInterval      float64 `yaml:"wander_interval"`
	MinTimeInRoom       float64 `yaml:"min_time_in_room"`
	MaxTimeInRoom       float64 `yaml:"max_time_in_room"`
	ChanceToChangeRoom  float64 `yaml:"chance_to_change_room"`
	NearArrival         float64 `yaml:"near_arrival"`
	RoomHeightTolerance float64 `yaml:"room_height_tolerance"`
	WanderRadius        float64 `yaml:"wander_radius"`
	WanderSampleRadius  float64 `yaml:"wander_sample_radius"`
	ExitSafetyRadius    float64 `yaml:"exit_safety_radius"`
	WanderAttempts      int     `yaml:"wander_attempts"`

	// Evacuating
	ExitRadius          float64 `yaml:"exit_radius"`
	BeaconArrival       float64 `yaml:"beacon_arrival"`
	BeaconArrivalHeight float64 `yaml:"beacon_arrival_height"`
	ExhaustedDistance   float64 `yaml:"exhausted_distance"`
	CorridorMaxAbove    float64 `yaml:"corridor_max_above"`
	CorridorOnIt        float64 `yaml:"corridor_on_it"`
	PeerRecency         float64 `yaml:"peer_recency"`
	SearchRadiusMin     float64 `yaml:"search_radius_min"`
	SearchRadiusMax     float64 `yaml:"search_radius_max"`

	// Panic response
	PanicSpeedFactor  float64 `yaml:"panic_speed_factor"`
	PanicWanderRate   float64 `yaml:"panic_wander_rate"`
	PanicWanderRadius float64 `yaml:"panic_wander_radius"`

	// Smoke
	SmokeVisionLoss      float64 `yaml:"smoke_vision_loss"`
	SmokeDisorientRate   float64 `yaml:"smoke_disorient_rate"`
	SmokeDisorientRadius float64 `yaml:"smoke_disorient_radius"`
	CoughRate            float64 `yaml:"cough_rate"`
	CoughMin             float64 `yaml:"cough_min"`
	CoughMax             float64 `yaml:"cough_max"`
}

// DefaultBehaviorConfig returns the stock tuning.
func DefaultBehaviorConfig() BehaviorConfig {
	return BehaviorConfig{
		WanderInterval:      5,
		MinTimeInRoom:       5,
		MaxTimeInRoom:       20,
		ChanceToChangeRoom:  0.4,
		NearArrival:         1.5,
		RoomHeightTolerance: 2,
		WanderRadius:        15,
		WanderSampleRadius:  5,
		ExitSafetyRadius:    5,
		WanderAttempts:      10,

		ExitRadius:          3,
		BeaconArrival:       1.5,
		BeaconArrivalHeight: 1,
		ExhaustedDistance:   0.5,
		CorridorMaxAbove:    1,
		CorridorOnIt:        0.2,
		PeerRecency:         3,
		SearchRadiusMin:     5,
		SearchRadiusMax:     20,

		PanicSpeedFactor:  0.7,
		PanicWanderRate:   0.5,
		PanicWanderRadius: 10,

		SmokeVisionLoss:      0.5,
		SmokeDisorientRate:   0.3,
		SmokeDisorientRadius: 4,
		CoughRate:            0.05,
		CoughMin:             0.5,
		CoughMax:             2,
	}
}

// Deps are the collaborators a Behavior consults.
type Deps struct {
	Scene      world.Scene
	Routes     *route.Graph
	Paths      nav.PathfindingOracle
	Sight      nav.VisibilityOracle
	Bus        *alarm.Bus
	Scheduler  *clock.Scheduler
	Population *Population
	RNG        *randx.RNG
}

// Behavior runs the state machine for every agent in a population.
type Behavior struct {
	cfg      BehaviorConfig
	panicCfg PanicConfig

	scene  world.Scene
	routes *route.Graph
	paths  nav.PathfindingOracle
	sight  nav.VisibilityOracle
	bus    *alarm.Bus
	sched  *clock.Scheduler
	pop    *Population
	rng    *randx.RNG
}

// NewBehavior creates a behavior over the given collaborators.
func NewBehavior(cfg BehaviorConfig, panicCfg PanicConfig, d Deps) *Behavior {
	return &Behavior{
		cfg:      cfg,
		panicCfg: panicCfg,
		scene:    d.Scene,
		routes:   d.Routes,
		paths:    d.Paths,
		sight:    d.Sight,
		bus:      d.Bus,
		sched:    d.Scheduler,
		pop:      d.Population,
		rng:      d.RNG,
	}
}

// Attach gives an agent its movement executor, subscribes it to the alarm
// and adds it to the population.
func (b *Behavior) Attach(a *Agent, m Motion) {
	a.motion = m
	m.SetSpeed(a.Traits.MoveSpeed)
	a.dwell = b.drawDwell()
	id := a.ID
	a.sub = b.bus.Subscribe(alarm.ObserverFunc(func(origin r3.Vec) {
		b.OnAlarm(id, origin)
	}))
	b.pop.Add(a)
}

// OnAlarm schedules the agent's switch to evacuating after its reaction
// time. Evacuating agents and agents already reacting ignore it.
func (b *Behavior) OnAlarm(id AgentID, origin r3.Vec) {
	a, ok := b.pop.Get(id)
	if !ok || a.Removed || a.State == StateEvacuating || a.reaction.Pending() {
		return
	}
	a.reaction = b.sched.After(a, clock.Seconds(a.Traits.ReactionTime), func() {
		b.beginEvacuation(id)
	})
	slog.Debug("alarm heard", "agent", a.Name, "reaction", a.Traits.ReactionTime, "origin", origin)
}

// beginEvacuation moves the agent to evacuating. Its wander path is dropped
// so the first evacuating tick re-decides.
func (b *Behavior) beginEvacuation(id AgentID) {
	a, ok := b.pop.Get(id)
	if !ok || a.Removed || a.State == StateEvacuating {
		return
	}
	a.State = StateEvacuating
	a.reaction = clock.Handle{}
	a.motion.Clear()
	a.redecide = true
	slog.Debug("agent evacuating", "agent", a.Name, "at", b.sched.Now())
}

// Tick advances one agent by dt seconds.
func (b *Behavior) Tick(a *Agent, dt float64) {
	if a.Removed || a.motion == nil {
		return
	}
	switch a.State {
	case StateWandering:
		b.wander(a, dt)
	case StateEvacuating:
		b.evacuate(a, dt)
	}
}

// SetInSmoke records whether the agent stands in smoke.
func (b *Behavior) SetInSmoke(a *Agent, in bool) {
	if a.InSmoke != in {
		slog.Debug("smoke", "agent", a.Name, "in", in)
	}
	a.InSmoke = in
}

// EffectiveVision is the agent's vision range, shortened in smoke.
func (b *Behavior) EffectiveVision(a *Agent) float64 {
	v := a.Traits.VisionRange
	if a.InSmoke {
		v *= 1 - b.cfg.SmokeVisionLoss
	}
	return v
}

// Panicking reports whether the agent's panic is above the threshold.
func (b *Behavior) Panicking(a *Agent) bool {
	return a.Panic.Panicking(b.panicCfg)
}

func (b *Behavior) evacuate(a *Agent, dt float64) {
	m := a.motion

	if world.NearExit(b.scene, a.Position, b.cfg.ExitRadius) {
		b.pop.Remove(a.ID, stats.ReasonEvacuated)
		return
	}

	reached := false
	if a.TargetBeacon != 0 {
		bc, ok := b.routes.Beacon(a.TargetBeacon)
		switch {
		case !ok || !bc.Active:
			a.TargetBeacon = 0
			a.redecide = true
		case b.arrived(a, bc):
			b.reachBeacon(a, bc)
			reached = true
		}
	}

	if !reached && (a.redecide || !m.HasPath() || m.PathPending() || m.RemainingDistance(a.Position) <= b.cfg.ExhaustedDistance) {
		a.redecide = false
		b.decide(a)
	}

	a.TimeSinceBeaconSeen += dt
	b.applyPanic(a, dt)

	if a.InSmoke {
		b.smoke(a, dt)
	}
}

func (b *Behavior) arrived(a *Agent, bc *world.Beacon) bool {
	planar := math.Hypot(bc.Position.X-a.Position.X, bc.Position.Z-a.Position.Z)
	return planar <= b.cfg.BeaconArrival && math.Abs(bc.Position.Y-a.Position.Y) <= b.cfg.BeaconArrivalHeight
}

// reachBeacon advances the agent along the chain. A final-exit beacon sends
// the agent straight to the nearest exit; the end of any other chain, or an
// unreachable next beacon, forces a re-decision on the next tick. A reached
// beacon is never chosen again by decide.
func (b *Behavior) reachBeacon(a *Agent, bc *world.Beacon) {
	a.TimeSinceBeaconSeen = 0
	a.markPassed(bc.ID)
	if bc.FinalExit {
		a.TargetBeacon = 0
		if e, _, ok := world.NearestExit(b.scene, a.Position); ok && a.motion.SetDestination(a.Position, e.Position) {
			return
		}
		a.redecide = true
		return
	}
	next, ok := b.routes.Next(bc.ID)
	if !ok {
		a.TargetBeacon = 0
		a.redecide = true
		return
	}
	a.TargetBeacon = next.ID
	if !a.motion.SetDestination(a.Position, next.Position) {
		a.redecide = true
	}
	slog.Debug("beacon reached", "agent", a.Name, "beacon", bc.Name, "next", next.Name)
}

func (b *Behavior) applyPanic(a *Agent, dt float64) {
	m := a.motion
	a.Panic.Update(b.panicCfg, PanicInputs{
		SinceBeaconSeen: a.TimeSinceBeaconSeen,
		HoldingBeacon:   a.TargetBeacon != 0,
		AnyoneNearby:    b.pop.AnyWithin(a.Position, b.panicCfg.NearbyRadius, a.ID),
		HasPath:         m.HasPath(),
		Remaining:       m.RemainingDistance(a.Position),
		Vision:          b.EffectiveVision(a),
		InSmoke:         a.InSmoke,
	}, dt)

	if a.coughing {
		return
	}
	if !a.Panic.Panicking(b.panicCfg) {
		m.SetSpeed(a.Traits.MoveSpeed)
		return
	}
	m.SetSpeed(a.Traits.MoveSpeed * (1 + a.Panic.Level*b.cfg.PanicSpeedFactor))
	if b.rng.Chance(b.cfg.PanicWanderRate * dt) {
		b.perturb(a, b.cfg.PanicWanderRadius)
	}
}
