// Package agents provides the evacuee data model, the per-agent panic rule,
// and the wander/evacuate state machine that drives each agent.
package agents

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// State is the agent's place in the evacuation state machine.
type State uint8

const (
	StateWandering  State = iota // Going about their business
	StateEvacuating              // Heading for an exit; never reverts
)

func (s State) String() string {
	if s == StateEvacuating {
		return "evacuating"
	}
	return "wandering"
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Category groups agents by mobility.
type Category uint8

const (
	CategoryStandard Category = iota
	CategoryElderly
	CategoryDisabled
)

func (c Category) String() string {
	switch c {
	case CategoryElderly:
		return "elderly"
	case CategoryDisabled:
		return "disabled"
	default:
		return "standard"
	}
}

// MarshalText renders the category by name in JSON.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Traits are fixed at spawn. Times are in seconds.
type Traits struct {
	Category     Category `json:"category"`
	MoveSpeed    float64  `json:"move_speed"`
	VisionRange  float64  `json:"vision_range"`
	ReactionTime float64  `json:"reaction_time"`
}

// Motion is the movement executor the behavior steers. nav.Walker is the
// stock implementation.
type Motion interface {
	SetDestination(from, to r3.Vec) bool
	HasPath() bool
	PathPending() bool
	RemainingDistance(pos r3.Vec) float64
	Speed() float64
	SetSpeed(v float64)
	Clear()
	Advance(pos r3.Vec, dt float64) r3.Vec
}

// Agent is one evacuee.
type Agent struct {
	ID     AgentID `json:"id"`
	Name   string  `json:"name"`
	Traits Traits  `json:"traits"`

	Position r3.Vec     `json:"position"`
	State    State      `json:"state"`
	Panic    PanicState `json:"panic"`

	// Seconds since a beacon was last seen or reached.
	TimeSinceBeaconSeen float64 `json:"time_since_beacon_seen"`

	TargetBeacon world.BeaconID `json:"target_beacon,omitempty"`
	CurrentRoom  world.RoomID   `json:"current_room,omitempty"`
	InSmoke      bool           `json:"in_smoke"`

	// Optional wander area used when no room is known.
	WanderBounds *r3.Box `json:"-"`

	Removed bool `json:"-"`

	motion Motion
	sub    alarm.Subscription

	reaction clock.Handle
	cough    clock.Handle
	coughing bool
	preCough float64

	wanderTimer float64
	roomTimer   float64
	dwell       float64
	redecide    bool

	// Beacons reached during this evacuation.
	passed map[world.BeaconID]struct{}
}

func (a *Agent) markPassed(id world.BeaconID) {
	if a.passed == nil {
		a.passed = make(map[world.BeaconID]struct{})
	}
	a.passed[id] = struct{}{}
}

func (a *Agent) hasPassed(bc *world.Beacon) bool {
	_, ok := a.passed[bc.ID]
	return ok
}

// Motion returns the agent's movement executor.
func (a *Agent) Motion() Motion { return a.motion }

// Move advances the agent along its current path.
func (a *Agent) Move(dt float64) {
	if a.Removed || a.motion == nil {
		return
	}
	a.Position = a.motion.Advance(a.Position, dt)
}

// ReactionPending reports whether an alarm reaction is scheduled.
func (a *Agent) ReactionPending() bool { return a.reaction.Pending() }

// Coughing reports whether the agent is stopped by a cough.
func (a *Agent) Coughing() bool { return a.coughing }
