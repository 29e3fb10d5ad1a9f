package agents

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/world"
)

func (b *Behavior) wander(a *Agent, dt float64) {
	a.wanderTimer += dt
	a.roomTimer += dt

	m := a.motion
	if m.HasPath() && !m.PathPending() &&
		m.RemainingDistance(a.Position) >= b.cfg.NearArrival &&
		a.wanderTimer < b.cfg.WanderInterval {
		return
	}
	a.wanderTimer = 0
	b.retarget(a)
}

// retarget picks the next wander destination. Once the dwell time in the
// current room is used up the agent may move to another room on its level.
func (b *Behavior) retarget(a *Agent) {
	room, ok := b.scene.Room(a.CurrentRoom)
	if a.CurrentRoom == 0 || !ok {
		a.CurrentRoom = 0
		b.wanderFree(a)
		return
	}
	if a.roomTimer >= a.dwell {
		if b.rng.Chance(b.cfg.ChanceToChangeRoom) {
			if b.changeRoom(a, room) {
				return
			}
		} else {
			a.roomTimer = 0
			a.dwell = b.drawDwell()
		}
	}
	b.wanderInRoom(a, room)
}

// changeRoom moves the agent's home to a random other room on its level,
// heading first for the corridor between the two rooms when there is one.
func (b *Behavior) changeRoom(a *Agent, from *world.Room) bool {
	others := world.RoomsNear(b.scene, a.Position.Y, b.cfg.RoomHeightTolerance, from.ID)
	if len(others) == 0 {
		return false
	}
	to := others[b.rng.IntN(len(others))]
	a.CurrentRoom = to.ID
	a.roomTimer = 0
	a.dwell = b.drawDwell()

	if p, ok := world.CorridorBetween(b.scene, from, to, b.cfg.RoomHeightTolerance); ok && a.motion.SetDestination(a.Position, p) {
		return true
	}
	a.motion.SetDestination(a.Position, b.pointInRoom(to))
	return true
}

func (b *Behavior) wanderInRoom(a *Agent, room *world.Room) {
	randx.TryN(b.cfg.WanderAttempts, func(int) (r3.Vec, bool) {
		return b.tryDestination(a, b.pointInRoom(room), false)
	})
}

// wanderFree picks a point inside the agent's wander bounds, or anywhere
// within the wander radius, keeping clear of exits.
func (b *Behavior) wanderFree(a *Agent) {
	randx.TryN(b.cfg.WanderAttempts, func(int) (r3.Vec, bool) {
		var candidate r3.Vec
		if a.WanderBounds != nil {
			candidate = b.rng.PointInBox(*a.WanderBounds)
			candidate.Y = a.Position.Y
		} else {
			candidate = r3.Add(a.Position, r3.Scale(b.cfg.WanderRadius, b.rng.InsideUnitCircle()))
		}
		return b.tryDestination(a, candidate, true)
	})
}

func (b *Behavior) pointInRoom(room *world.Room) r3.Vec {
	p := b.rng.PointInBox(room.Bounds)
	p.Y = room.Level()
	return p
}

func (b *Behavior) drawDwell() float64 {
	return b.rng.Range(b.cfg.MinTimeInRoom, b.cfg.MaxTimeInRoom)
}
