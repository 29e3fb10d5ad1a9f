package agents

import (
	"log/slog"

	"github.com/talgya/firedrill/internal/clock"
)

// smoke applies the per-tick smoke effects: an occasional disorientation
// excursion and a rarer cough that stops the agent for a moment.
func (b *Behavior) smoke(a *Agent, dt float64) {
	if b.rng.Chance(b.cfg.SmokeDisorientRate * dt) {
		b.perturb(a, b.cfg.SmokeDisorientRadius)
	}
	if !a.coughing && b.rng.Chance(b.cfg.CoughRate*dt) {
		b.startCough(a)
	}
}

func (b *Behavior) startCough(a *Agent) {
	a.coughing = true
	a.preCough = a.motion.Speed()
	a.motion.SetSpeed(0)
	d := b.rng.Range(b.cfg.CoughMin, b.cfg.CoughMax)
	id := a.ID
	a.cough = b.sched.After(a, clock.Seconds(d), func() { b.endCough(id) })
	slog.Debug("coughing", "agent", a.Name, "seconds", d)
}

func (b *Behavior) endCough(id AgentID) {
	a, ok := b.pop.Get(id)
	if !ok || a.Removed || !a.coughing {
		return
	}
	a.coughing = false
	a.cough = clock.Handle{}
	a.motion.SetSpeed(a.preCough)
}
