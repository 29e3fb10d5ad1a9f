package engine

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/firedrill/internal/agents"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/fire"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

// Status is a point-in-time summary of the drill.
type Status struct {
	Tick    uint64  `json:"tick"`
	Elapsed float64 `json:"elapsed"`
	SimTime string  `json:"sim_time"`
	Seed    int64   `json:"seed"`

	Alive      int `json:"alive"`
	Wandering  int `json:"wandering"`
	Evacuating int `json:"evacuating"`
	Panicking  int `json:"panicking"`
	InSmoke    int `json:"in_smoke"`

	PanicMean   float64 `json:"panic_mean"`
	PanicStdDev float64 `json:"panic_stddev"`

	Alarm  bool         `json:"alarm"`
	Fire   FireStatus   `json:"fire"`
	Totals stats.Totals `json:"totals"`
}

// FireStatus summarises the fire front.
type FireStatus struct {
	State    string  `json:"state"`
	Nodes    int     `json:"nodes"`
	Interval float64 `json:"interval"`
	Deaths   int     `json:"deaths"`
	Origin   *r3.Vec `json:"origin,omitempty"`
}

// AgentView is a copy of one agent's observable state.
type AgentView struct {
	ID           agents.AgentID  `json:"id"`
	Name         string          `json:"name"`
	Category     agents.Category `json:"category"`
	State        agents.State    `json:"state"`
	Position     r3.Vec          `json:"position"`
	Panic        float64         `json:"panic"`
	TargetBeacon world.BeaconID  `json:"target_beacon,omitempty"`
	InSmoke      bool            `json:"in_smoke"`
	Coughing     bool            `json:"coughing"`
}

// RunReport is the outcome of a finished or interrupted run.
type RunReport struct {
	Seed        int64         `json:"seed"`
	Duration    time.Duration `json:"duration"`
	Ticks       uint64        `json:"ticks"`
	Spawned     int           `json:"spawned"`
	Evacuated   int           `json:"evacuated"`
	FireDeaths  int           `json:"fire_deaths"`
	Culled      int           `json:"culled"`
	Remaining   int           `json:"remaining"`
	FireNodes   int           `json:"fire_nodes"`
	PanicMean   float64       `json:"panic_mean"`
	PanicStdDev float64       `json:"panic_stddev"`
	Events      []stats.Event `json:"events"`
}

// Status returns a snapshot under the read lock.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Tick:    s.tick,
		Elapsed: s.elapsed,
		SimTime: SimTime(clock.Seconds(s.elapsed)),
		Seed:    s.Seed,
		Totals:  s.Stats.Totals(),
	}
	alive := s.Pop.Alive()
	levels := make([]float64, 0, len(alive))
	for _, a := range alive {
		st.Alive++
		switch a.State {
		case agents.StateWandering:
			st.Wandering++
		case agents.StateEvacuating:
			st.Evacuating++
		}
		if s.Behavior.Panicking(a) {
			st.Panicking++
		}
		if a.InSmoke {
			st.InSmoke++
		}
		levels = append(levels, a.Panic.Level)
	}
	st.PanicMean, st.PanicStdDev = meanStdDev(levels)
	_, st.Alarm = s.Bus.Triggered()
	st.Fire = s.fireStatus()
	return st
}

func (s *Simulation) fireStatus() FireStatus {
	fs := FireStatus{
		State:    s.Fire.State().String(),
		Nodes:    s.Fire.Count(),
		Interval: s.Fire.Interval(),
		Deaths:   s.Fire.Deaths(),
	}
	if s.Fire.Active() {
		o := s.Fire.Origin()
		fs.Origin = &o
	}
	return fs
}

// Agents returns copies of every live agent.
func (s *Simulation) Agents() []AgentView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alive := s.Pop.Alive()
	out := make([]AgentView, 0, len(alive))
	for _, a := range alive {
		out = append(out, AgentView{
			ID:           a.ID,
			Name:         a.Name,
			Category:     a.Traits.Category,
			State:        a.State,
			Position:     a.Position,
			Panic:        a.Panic.Level,
			TargetBeacon: a.TargetBeacon,
			InSmoke:      a.InSmoke,
			Coughing:     a.Coughing(),
		})
	}
	return out
}

// FireNodes returns a copy of the fire front.
func (s *Simulation) FireNodes() (FireStatus, []fire.Node) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fireStatus(), s.Fire.Nodes()
}

// Report summarises the run so far.
func (s *Simulation) Report() RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.Stats.Totals()
	alive := s.Pop.Alive()
	levels := make([]float64, len(alive))
	for i, a := range alive {
		levels[i] = a.Panic.Level
	}
	mean, sd := meanStdDev(levels)
	return RunReport{
		Seed:        s.Seed,
		Duration:    clock.Seconds(s.elapsed),
		Ticks:       s.tick,
		Spawned:     t.Spawned,
		Evacuated:   t.Evacuated,
		FireDeaths:  t.FireDeaths,
		Culled:      t.Culled,
		Remaining:   len(alive),
		FireNodes:   s.Fire.Count(),
		PanicMean:   mean,
		PanicStdDev: sd,
		Events:      s.Stats.Events(),
	}
}

// meanStdDev is stat.MeanStdDev with zeros instead of NaN for short input.
func meanStdDev(x []float64) (mean, sd float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	mean, sd = stat.MeanStdDev(x, nil)
	if math.IsNaN(sd) {
		sd = 0
	}
	return mean, sd
}
