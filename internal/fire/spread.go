package fire

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/randx"
)

// grow is the growth loop body: one spread attempt, then reschedule.
func (s *Simulation) grow() {
	if s.state != StateActive {
		return
	}
	if s.spread() {
		s.interval = nextInterval(s.interval, s.cfg.SpreadDecrement)
	}
	if len(s.nodes) >= s.cfg.MaxNodes {
		slog.Info("fire reached node cap", "nodes", len(s.nodes))
		s.growth = clock.Handle{}
		return
	}
	s.growth = s.d.Scheduler.After(s, clock.Seconds(s.interval), s.grow)
}

// nextInterval shrinks the interval by dec without going below 2*dec, and
// never grows it.
func nextInterval(interval, dec float64) float64 {
	next := interval - dec
	if floor := 2 * dec; next < floor {
		next = math.Min(interval, floor)
	}
	return next
}

// spread tries to add one node next to a random existing node. A vertical
// spread gets all its attempts before falling back to the source's level.
func (s *Simulation) spread() bool {
	if len(s.nodes) == 0 || len(s.nodes) >= s.cfg.MaxNodes {
		return false
	}
	src := s.nodes[s.d.RNG.IntN(len(s.nodes))].Position
	vertical := s.d.RNG.Chance(s.cfg.ChanceUp + s.cfg.ChanceDown)

	var (
		p  r3.Vec
		ok bool
	)
	if vertical {
		p, ok = randx.TryN(s.cfg.MaxAttempts, func(int) (r3.Vec, bool) {
			return s.verticalCandidate(src)
		})
	}
	if !ok {
		p, ok = randx.TryN(s.cfg.MaxAttempts, func(int) (r3.Vec, bool) {
			return s.horizontalCandidate(src)
		})
	}
	if !ok {
		slog.Warn("fire spread found no candidate", "nodes", len(s.nodes), "vertical", vertical)
		return false
	}
	s.addNode(p)
	return true
}

// verticalCandidate proposes a point one floor up or down. It only counts
// when it lands at least 0.8 floors away from the source.
func (s *Simulation) verticalCandidate(src r3.Vec) (r3.Vec, bool) {
	dir := 1.0
	if total := s.cfg.ChanceUp + s.cfg.ChanceDown; total > 0 && s.d.RNG.Float() < s.cfg.ChanceDown/total {
		dir = -1
	}
	raw := r3.Add(src, r3.Scale(s.cfg.VerticalJitter, s.d.RNG.InsideUnitCircle()))
	raw.Y += dir * s.cfg.FloorHeight
	p, err := s.d.Paths.SamplePosition(raw, s.cfg.NavTolerance)
	if err != nil {
		return r3.Vec{}, false
	}
	if math.Abs(p.Y-src.Y) < 0.8*s.cfg.FloorHeight {
		return r3.Vec{}, false
	}
	return p, s.separated(p)
}

// horizontalCandidate proposes a point on the source's level.
func (s *Simulation) horizontalCandidate(src r3.Vec) (r3.Vec, bool) {
	d := s.d.RNG.Range(s.cfg.MinDistance, s.cfg.SpreadRadius)
	raw := r3.Add(src, r3.Scale(d, s.d.RNG.Direction()))
	p, err := s.d.Paths.SamplePosition(raw, s.cfg.NavTolerance)
	if err != nil {
		return r3.Vec{}, false
	}
	return p, s.separated(p)
}

func (s *Simulation) separated(p r3.Vec) bool {
	return s.NearestDistance(p) >= s.cfg.MinDistance
}

// scanVictims is the lethality loop body.
func (s *Simulation) scanVictims() {
	if s.state != StateActive || s.d.Victims == nil || len(s.nodes) == 0 {
		return
	}
	var doomed []uint64
	s.d.Victims.Each(func(id uint64, pos r3.Vec) {
		if s.NearestDistance(pos) <= s.cfg.KillRadius {
			doomed = append(doomed, id)
		}
	})
	for _, id := range doomed {
		if s.d.Victims.Kill(id) {
			s.deaths++
			slog.Info("agent killed by fire", "agent", id, "at", s.d.Scheduler.Now())
		}
	}
}
