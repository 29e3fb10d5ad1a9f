package engine

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/agents"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

// inSmoke reports whether p is inside an authored smoke region or close
// enough to the burning fire front.
func (s *Simulation) inSmoke(p r3.Vec) bool {
	if world.InSmokeRegion(s.Scene, p) {
		return true
	}
	return s.Fire.Active() && s.Fire.NearestDistance(p) <= s.settings.SmokeFireRadius
}

type crowdCell struct {
	floor, x, z int
}

// cullCrowds removes agents beyond MaxPerCell from every over-full crowd
// cell. The first agents in population order are kept.
func (s *Simulation) cullCrowds() {
	size := s.settings.CrowdCellSize
	if size <= 0 || s.settings.MaxPerCell <= 0 {
		return
	}
	cells := make(map[crowdCell][]*agents.Agent)
	for _, a := range s.Pop.Alive() {
		k := crowdCell{
			floor: s.Grid.FloorAt(a.Position.Y),
			x:     int(math.Floor(a.Position.X / size)),
			z:     int(math.Floor(a.Position.Z / size)),
		}
		cells[k] = append(cells[k], a)
	}
	culled := 0
	for _, group := range cells {
		if len(group) <= s.settings.MaxPerCell {
			continue
		}
		for _, a := range group[s.settings.MaxPerCell:] {
			if s.Pop.Remove(a.ID, stats.ReasonCulled) {
				culled++
			}
		}
	}
	if culled > 0 {
		slog.Debug("crowd culled", "agents", culled, "at", s.Sched.Now())
	}
}
