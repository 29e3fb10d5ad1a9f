package agents

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/world"
)

// eyeHeight lifts sight lines off the floor.
const eyeHeight = 0.6

// decide picks a new evacuation target. The first option that yields a
// path wins: the nearest visible beacon not yet passed, the nearest
// corridor, a peer who recently saw a beacon, a random search.
func (b *Behavior) decide(a *Agent) {
	m := a.motion
	vision := b.EffectiveVision(a)

	if bc, _, ok := b.routes.NearestVisible(a.Position, vision, a.hasPassed); ok && m.SetDestination(a.Position, bc.Position) {
		a.TargetBeacon = bc.ID
		a.TimeSinceBeaconSeen = 0
		return
	}
	a.TargetBeacon = 0

	if p, d, ok := world.NearestCorridorPoint(b.scene, a.Position, b.cfg.CorridorMaxAbove); ok && d > b.cfg.CorridorOnIt && m.SetDestination(a.Position, p) {
		return
	}
	if b.followPeer(a, vision) {
		return
	}
	b.search(a)
}

// followPeer heads toward the nearest visible evacuee who saw a beacon
// within the recency window.
func (b *Behavior) followPeer(a *Agent, vision float64) bool {
	var best *Agent
	bestD := math.Inf(1)
	eye := r3.Vec{Y: eyeHeight}
	for _, p := range b.pop.Alive() {
		if p.ID == a.ID || p.TargetBeacon == 0 || p.TimeSinceBeaconSeen > b.cfg.PeerRecency {
			continue
		}
		d := r3.Norm(r3.Sub(p.Position, a.Position))
		if d > vision || d >= bestD {
			continue
		}
		if !b.sight.HasLineOfSight(r3.Add(a.Position, eye), r3.Add(p.Position, eye)) {
			continue
		}
		best, bestD = p, d
	}
	if best == nil {
		return false
	}
	return a.motion.SetDestination(a.Position, best.Position)
}

// search walks to a random nearby navigable point, further than a normal
// wander, hoping to bring a beacon or corridor into view.
func (b *Behavior) search(a *Agent) bool {
	radius := b.rng.Range(b.cfg.SearchRadiusMin, b.cfg.SearchRadiusMax)
	_, ok := randx.TryN(b.cfg.WanderAttempts, func(int) (r3.Vec, bool) {
		return b.tryDestination(a, r3.Add(a.Position, r3.Scale(radius, b.rng.InsideUnitCircle())), false)
	})
	return ok
}

// perturb replaces the destination with a random point within radius.
func (b *Behavior) perturb(a *Agent, radius float64) bool {
	_, ok := b.tryDestination(a, r3.Add(a.Position, r3.Scale(radius, b.rng.InsideUnitCircle())), false)
	return ok
}

// tryDestination snaps candidate onto the navigable surface and paths there.
// With avoidExits set, candidates near an exit are refused.
func (b *Behavior) tryDestination(a *Agent, candidate r3.Vec, avoidExits bool) (r3.Vec, bool) {
	p, err := b.paths.SamplePosition(candidate, b.cfg.WanderSampleRadius)
	if err != nil {
		return r3.Vec{}, false
	}
	if avoidExits && world.NearExit(b.scene, p, b.cfg.ExitSafetyRadius) {
		return r3.Vec{}, false
	}
	if !a.motion.SetDestination(a.Position, p) {
		return r3.Vec{}, false
	}
	return p, true
}
