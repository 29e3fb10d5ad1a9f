package agents

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/stats"
)

// Population is the arena of live agents. Alive returns a slice that is
// replaced, never edited, on removal, so a caller may remove agents while
// ranging over it.
type Population struct {
	byID  map[AgentID]*Agent
	alive []*Agent

	sched *clock.Scheduler
	bus   *alarm.Bus
	rec   stats.Recorder
}

// NewPopulation creates an empty population. Removal cancels the agent's
// scheduled tasks, drops its alarm subscription and reports to rec.
func NewPopulation(sched *clock.Scheduler, bus *alarm.Bus, rec stats.Recorder) *Population {
	return &Population{
		byID:  make(map[AgentID]*Agent),
		sched: sched,
		bus:   bus,
		rec:   rec,
	}
}

// Add inserts an agent.
func (p *Population) Add(a *Agent) {
	p.byID[a.ID] = a
	p.alive = append(p.alive, a)
}

// Get looks up a live agent.
func (p *Population) Get(id AgentID) (*Agent, bool) {
	a, ok := p.byID[id]
	return a, ok
}

// Alive returns the live agents.
func (p *Population) Alive() []*Agent { return p.alive }

// Len returns the number of live agents.
func (p *Population) Len() int { return len(p.alive) }

// AnyWithin reports whether a live agent other than except stands within
// radius of pos.
func (p *Population) AnyWithin(pos r3.Vec, radius float64, except AgentID) bool {
	r2 := radius * radius
	for _, a := range p.alive {
		if a.ID != except && r3.Norm2(r3.Sub(a.Position, pos)) <= r2 {
			return true
		}
	}
	return false
}

// Remove takes an agent out of the simulation for the given reason. It
// reports false if the agent was already gone.
func (p *Population) Remove(id AgentID, reason stats.Reason) bool {
	a, ok := p.byID[id]
	if !ok {
		return false
	}
	delete(p.byID, id)
	alive := make([]*Agent, 0, len(p.alive))
	for _, other := range p.alive {
		if other.ID != id {
			alive = append(alive, other)
		}
	}
	p.alive = alive

	a.Removed = true
	a.reaction = clock.Handle{}
	a.cough = clock.Handle{}
	if p.sched != nil {
		p.sched.CancelOwner(a)
	}
	if p.bus != nil {
		p.bus.Unsubscribe(a.sub)
	}
	if a.motion != nil {
		a.motion.Clear()
	}
	if p.rec != nil {
		p.rec.Record(p.now(), uint64(id), reason)
	}
	slog.Debug("agent removed", "agent", a.Name, "id", id, "reason", reason)
	return true
}

func (p *Population) now() time.Duration {
	if p.sched == nil {
		return 0
	}
	return p.sched.Now()
}

// Each visits every live agent's ID and position.
func (p *Population) Each(fn func(id uint64, pos r3.Vec)) {
	for _, a := range p.alive {
		fn(uint64(a.ID), a.Position)
	}
}

// Kill removes an agent as a fire death.
func (p *Population) Kill(id uint64) bool {
	return p.Remove(AgentID(id), stats.ReasonFireDeath)
}
