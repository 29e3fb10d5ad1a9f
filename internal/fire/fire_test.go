package fire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

type victim struct {
	id  uint64
	pos r3.Vec
}

// crowd is a Victims backed by a slice, recording deaths into a Counter.
type crowd struct {
	live  []victim
	sched *clock.Scheduler
	rec   *stats.Counter
}

func (c *crowd) Each(fn func(id uint64, pos r3.Vec)) {
	for _, v := range c.live {
		fn(v.id, v.pos)
	}
}

func (c *crowd) Kill(id uint64) bool {
	for i, v := range c.live {
		if v.id == id {
			c.live = append(c.live[:i], c.live[i+1:]...)
			c.rec.Record(c.sched.Now(), id, stats.ReasonFireDeath)
			return true
		}
	}
	return false
}

type rig struct {
	grid  *nav.Grid
	reg   *world.Registry
	sched *clock.Scheduler
	bus   *alarm.Bus
	crowd *crowd
	rec   *stats.Counter
	fire  *Simulation
}

func newRig(t *testing.T, cfg Config, elevations ...float64) *rig {
	t.Helper()
	if len(elevations) == 0 {
		elevations = []float64{0}
	}
	r := &rig{
		grid:  nav.NewGrid(r3.Vec{}, 20, 20, 1, elevations),
		reg:   world.NewRegistry(),
		sched: clock.NewScheduler(),
		bus:   alarm.NewBus(),
		rec:   stats.NewCounter(16),
	}
	r.reg.AddRoom("hall", r3.Box{Min: r3.Vec{X: 5, Z: 5}, Max: r3.Vec{X: 15, Y: 2, Z: 15}}, 0)
	r.crowd = &crowd{sched: r.sched, rec: r.rec}
	r.fire = New(cfg, Deps{
		Scene:     r.reg,
		Paths:     r.grid,
		Carver:    r.grid,
		Bus:       r.bus,
		Scheduler: r.sched,
		Victims:   r.crowd,
		RNG:       randx.New(42),
	})
	return r
}

func TestSpreadAddsOneNodePerInterval(t *testing.T) {
	r := newRig(t, DefaultConfig())
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))
	require.Equal(t, 1, r.fire.Count())

	r.sched.Advance(1999 * time.Millisecond)
	assert.Equal(t, 1, r.fire.Count())

	r.sched.Advance(time.Millisecond)
	assert.Equal(t, 2, r.fire.Count())
	assert.InDelta(t, 1.98, r.fire.Interval(), 1e-9)

	nodes := r.fire.Nodes()
	assert.GreaterOrEqual(t, r3.Norm(r3.Sub(nodes[1].Position, nodes[0].Position)), 0.5)
	assert.Equal(t, 1, nodes[1].Order)
}

func TestIntervalNeverIncreasesAndStopsAtFloor(t *testing.T) {
	assert.InDelta(t, 1.98, nextInterval(2, 0.02), 1e-12)
	assert.InDelta(t, 0.04, nextInterval(0.05, 0.02), 1e-12)
	assert.InDelta(t, 0.04, nextInterval(0.04, 0.02), 1e-12)
	assert.InDelta(t, 0.03, nextInterval(0.03, 0.02), 1e-12)

	cfg := DefaultConfig()
	cfg.SpreadInterval = 0.1
	cfg.SpreadDecrement = 0.03
	r := newRig(t, cfg)
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))
	prev := r.fire.Interval()
	for i := 0; i < 20; i++ {
		r.sched.Advance(clock.Seconds(prev))
		assert.LessOrEqual(t, r.fire.Interval(), prev)
		prev = r.fire.Interval()
	}
	assert.InDelta(t, 0.06, prev, 1e-9)
}

func TestGrowthStopsAtCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 5
	r := newRig(t, cfg)
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))

	r.sched.Advance(60 * time.Second)
	assert.Equal(t, 5, r.fire.Count())
	// Only the lethality scan remains scheduled.
	assert.Equal(t, 1, r.sched.Len())
}

func TestVerticalSpreadReachesNextFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChanceUp, cfg.ChanceDown = 1, 0
	cfg.CarveObstacles = false
	r := newRig(t, cfg, 0, 2.2)
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))

	r.sched.Advance(2 * time.Second)
	require.Equal(t, 2, r.fire.Count())
	assert.Equal(t, 2.2, r.fire.Nodes()[1].Position.Y)
}

func TestVerticalSpreadRejectsShortHops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChanceUp, cfg.ChanceDown = 1, 0
	cfg.FloorHeight = 2.2
	cfg.NavTolerance = 1
	r := newRig(t, cfg, 0, 1.5)
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))

	r.sched.Advance(2 * time.Second)
	require.Equal(t, 2, r.fire.Count())
	// 1.5 is within tolerance of the raised point but under 0.8 floors, so
	// every vertical attempt fails and the spread stays on the source's level.
	assert.Equal(t, 0.0, r.fire.Nodes()[1].Position.Y)
}

// patchyUpstairs refuses the first misses samples above the ground floor.
type patchyUpstairs struct {
	*nav.Grid
	misses int
	upper  int
}

func (p *patchyUpstairs) SamplePosition(at r3.Vec, maxRadius float64) (r3.Vec, error) {
	if at.Y > 1 {
		p.upper++
		if p.upper <= p.misses {
			return r3.Vec{}, nav.ErrNotNavigable
		}
	}
	return p.Grid.SamplePosition(at, maxRadius)
}

func TestVerticalSpreadUsesEveryAttemptFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChanceUp, cfg.ChanceDown = 1, 0
	cfg.CarveObstacles = false
	r := newRig(t, cfg, 0, 2.2)
	paths := &patchyUpstairs{Grid: r.grid, misses: cfg.MaxAttempts - 1}
	r.fire = New(cfg, Deps{
		Scene:     r.reg,
		Paths:     paths,
		Bus:       r.bus,
		Scheduler: r.sched,
		Victims:   r.crowd,
		RNG:       randx.New(42),
	})
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))

	r.sched.Advance(2 * time.Second)
	require.Equal(t, 2, r.fire.Count())
	assert.Equal(t, cfg.MaxAttempts, paths.upper)
	assert.Equal(t, 2.2, r.fire.Nodes()[1].Position.Y)
}

func TestLethalityScanKillsNearbyAgent(t *testing.T) {
	r := newRig(t, DefaultConfig())
	r.crowd.live = []victim{
		{id: 1, pos: r3.Vec{X: 10.7, Z: 10.5}},
		{id: 2, pos: r3.Vec{X: 2, Z: 2}},
	}
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))

	r.sched.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, r.rec.Totals().FireDeaths)
	assert.Equal(t, 1, r.fire.Deaths())
	require.Len(t, r.crowd.live, 1)
	assert.Equal(t, uint64(2), r.crowd.live[0].id)

	r.sched.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, r.rec.Totals().FireDeaths)
}

func TestStartRaisesAlarmOnce(t *testing.T) {
	r := newRig(t, DefaultConfig())
	var calls int
	r.bus.Subscribe(alarm.ObserverFunc(func(r3.Vec) { calls++ }))

	require.NoError(t, r.fire.Start())
	require.NoError(t, r.fire.Start())
	assert.True(t, r.fire.Active())
	assert.Equal(t, 1, r.fire.Count())
	assert.Equal(t, 1, calls)

	origin, ok := r.bus.Triggered()
	require.True(t, ok)
	assert.Equal(t, r.fire.Origin(), origin)
	assert.True(t, r.reg.Rooms()[0].Bounds.Contains(r3.Vec{X: origin.X, Y: 1, Z: origin.Z}))
}

func TestStartWithoutRooms(t *testing.T) {
	r := newRig(t, DefaultConfig())
	f := New(DefaultConfig(), Deps{
		Scene:     world.NewRegistry(),
		Paths:     r.grid,
		Scheduler: r.sched,
		RNG:       randx.New(1),
	})
	err := f.Start()
	require.ErrorIs(t, err, world.ErrBootstrapMissing)
	assert.Equal(t, StateIdle, f.State())
	assert.Zero(t, r.sched.Len())
}

func TestStartAtOffGrid(t *testing.T) {
	r := newRig(t, DefaultConfig())
	err := r.fire.StartAt(r3.Vec{X: 100, Z: 100})
	require.ErrorIs(t, err, ErrNoIgnitionPoint)
	assert.False(t, r.fire.Active())
}

func TestResetClearsEverything(t *testing.T) {
	r := newRig(t, DefaultConfig())
	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))
	r.sched.Advance(10 * time.Second)
	require.Greater(t, r.fire.Count(), 1)
	require.Equal(t, r.fire.Count(), r.grid.ObstacleCount())

	r.fire.Reset()
	assert.Equal(t, StateIdle, r.fire.State())
	assert.Zero(t, r.fire.Count())
	assert.Zero(t, r.grid.ObstacleCount())
	assert.Zero(t, r.sched.Len())
	assert.Equal(t, 2.0, r.fire.Interval())
	_, ok := r.bus.Triggered()
	assert.False(t, ok)

	require.NoError(t, r.fire.StartAt(r3.Vec{X: 10.5, Z: 10.5}))
	assert.Equal(t, 1, r.fire.Count())
}
