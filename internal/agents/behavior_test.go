package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/alarm"
	"github.com/talgya/firedrill/internal/clock"
	"github.com/talgya/firedrill/internal/nav"
	"github.com/talgya/firedrill/internal/randx"
	"github.com/talgya/firedrill/internal/route"
	"github.com/talgya/firedrill/internal/stats"
	"github.com/talgya/firedrill/internal/world"
)

// recordingWalker remembers every accepted destination.
type recordingWalker struct {
	*nav.Walker
	dests []r3.Vec
}

func (w *recordingWalker) SetDestination(from, to r3.Vec) bool {
	ok := w.Walker.SetDestination(from, to)
	if ok {
		w.dests = append(w.dests, w.Walker.Destination())
	}
	return ok
}

type rig struct {
	grid    *nav.Grid
	reg     *world.Registry
	sched   *clock.Scheduler
	bus     *alarm.Bus
	counter *stats.Counter
	pop     *Population
	beh     *Behavior
	nextID  AgentID
}

// quietConfig disables the random panic and smoke excursions.
func quietConfig() BehaviorConfig {
	cfg := DefaultBehaviorConfig()
	cfg.PanicWanderRate = 0
	cfg.SmokeDisorientRate = 0
	cfg.CoughRate = 0
	return cfg
}

func newRig(width, depth int, reg *world.Registry, cfg BehaviorConfig, pcfg PanicConfig) *rig {
	g := nav.NewGrid(r3.Vec{}, width, depth, 1, []float64{0})
	sched := clock.NewScheduler()
	bus := alarm.NewBus()
	counter := stats.NewCounter(0)
	pop := NewPopulation(sched, bus, counter)
	beh := NewBehavior(cfg, pcfg, Deps{
		Scene:      reg,
		Routes:     route.New(reg, g, g, route.DefaultConfig()),
		Paths:      g,
		Sight:      g,
		Bus:        bus,
		Scheduler:  sched,
		Population: pop,
		RNG:        randx.New(1),
	})
	return &rig{grid: g, reg: reg, sched: sched, bus: bus, counter: counter, pop: pop, beh: beh}
}

func (r *rig) add(pos r3.Vec, speed float64) (*Agent, *recordingWalker) {
	r.nextID++
	a := &Agent{
		ID:       r.nextID,
		Name:     "tester",
		Position: pos,
		Traits:   Traits{MoveSpeed: speed, VisionRange: 10, ReactionTime: 3},
	}
	w := &recordingWalker{Walker: nav.NewWalker(r.grid, speed)}
	r.beh.Attach(a, w)
	return a, w
}

func (r *rig) evacuee(pos r3.Vec) (*Agent, *recordingWalker) {
	a, w := r.add(pos, 1.4)
	a.State = StateEvacuating
	return a, w
}

func TestWanderRetargetsAfterInterval(t *testing.T) {
	cfg := quietConfig()
	cfg.NearArrival = 0
	r := newRig(40, 40, world.NewRegistry(), cfg, DefaultPanicConfig())
	a, w := r.add(r3.Vec{X: 20, Z: 20}, 0)

	r.beh.Tick(a, 0)
	require.Len(t, w.dests, 1)
	for i := 0; i < 9; i++ {
		r.beh.Tick(a, 0.5)
	}
	assert.Len(t, w.dests, 1)

	r.beh.Tick(a, 0.5)
	require.Len(t, w.dests, 2)
	for _, d := range w.dests {
		assert.LessOrEqual(t, r3.Norm(r3.Sub(d, a.Position)), 15.0)
	}
}

func TestWanderStaysInBounds(t *testing.T) {
	r := newRig(40, 40, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	a, w := r.add(r3.Vec{X: 20, Z: 20}, 0)
	bounds := r3.NewBox(15, 0, 15, 25, 0, 25)
	a.WanderBounds = &bounds

	for i := 0; i < 20; i++ {
		a.Motion().Clear()
		r.beh.Tick(a, 0.1)
	}
	require.NotEmpty(t, w.dests)
	for _, d := range w.dests {
		assert.True(t, d.X >= 15 && d.X <= 25 && d.Z >= 15 && d.Z <= 25, "destination %v", d)
	}
}

func TestWanderAvoidsExits(t *testing.T) {
	reg := world.NewRegistry()
	reg.AddExit("door", r3.Vec{X: 20, Z: 20})
	r := newRig(40, 40, reg, quietConfig(), DefaultPanicConfig())
	a, w := r.add(r3.Vec{X: 20, Z: 20}, 0)

	for i := 0; i < 30; i++ {
		a.Motion().Clear()
		r.beh.Tick(a, 0.1)
	}
	for _, d := range w.dests {
		assert.Greater(t, r3.Norm(r3.Sub(d, r3.Vec{X: 20, Z: 20})), 5.0)
	}
}

func TestRoomChangeHeadsForCorridor(t *testing.T) {
	reg := world.NewRegistry()
	from := reg.AddRoom("west", r3.NewBox(0, 0, 0, 10, 2.2, 5), 0)
	to := reg.AddRoom("east", r3.NewBox(20, 0, 0, 30, 2.2, 5), 0)
	reg.AddCorridor("hall", r3.NewBox(0, 0, 6, 30, 2.2, 9), 0)

	cfg := quietConfig()
	cfg.ChanceToChangeRoom = 1
	cfg.MinTimeInRoom, cfg.MaxTimeInRoom = 0, 0
	r := newRig(30, 12, reg, cfg, DefaultPanicConfig())
	a, w := r.add(r3.Vec{X: 5, Z: 2}, 1)
	a.CurrentRoom = from

	r.beh.Tick(a, 0.1)
	assert.Equal(t, to, a.CurrentRoom)
	require.Len(t, w.dests, 1)
	assert.Equal(t, r3.Vec{X: 15, Z: 6}, w.dests[0])
}

func TestDeclinedRoomChangeStaysHome(t *testing.T) {
	reg := world.NewRegistry()
	home := reg.AddRoom("west", r3.NewBox(0, 0, 0, 10, 2.2, 5), 0)
	reg.AddRoom("east", r3.NewBox(20, 0, 0, 30, 2.2, 5), 0)

	cfg := quietConfig()
	cfg.ChanceToChangeRoom = 0
	cfg.MinTimeInRoom, cfg.MaxTimeInRoom = 0, 0
	r := newRig(30, 12, reg, cfg, DefaultPanicConfig())
	a, w := r.add(r3.Vec{X: 5, Z: 2}, 1)
	a.CurrentRoom = home

	r.beh.Tick(a, 0.1)
	assert.Equal(t, home, a.CurrentRoom)
	require.Len(t, w.dests, 1)
	assert.LessOrEqual(t, w.dests[0].X, 10.0)
	assert.LessOrEqual(t, w.dests[0].Z, 5.0)
}

func TestAlarmReactionDelay(t *testing.T) {
	r := newRig(20, 20, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	a, _ := r.add(r3.Vec{X: 5, Z: 5}, 1)

	assert.Equal(t, 1, r.bus.Publish(r3.Vec{X: 1, Z: 1}))
	r.sched.Advance(clock.Seconds(2.99))
	assert.Equal(t, StateWandering, a.State)
	assert.True(t, a.ReactionPending())

	r.sched.Advance(clock.Seconds(0.01))
	assert.Equal(t, StateEvacuating, a.State)
	assert.False(t, a.ReactionPending())
}

func TestAlarmHandledOnce(t *testing.T) {
	r := newRig(20, 20, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	a, _ := r.add(r3.Vec{X: 5, Z: 5}, 1)

	r.bus.Publish(r3.Vec{})
	r.bus.Publish(r3.Vec{})
	assert.Equal(t, 1, r.sched.Len())

	r.sched.Advance(clock.Seconds(3))
	require.Equal(t, StateEvacuating, a.State)

	r.bus.Publish(r3.Vec{})
	assert.Zero(t, r.sched.Len())
	for i := 0; i < 50; i++ {
		r.beh.Tick(a, 0.1)
		if a.Removed {
			break
		}
		assert.Equal(t, StateEvacuating, a.State)
	}
}

func TestRemovedAgentNeverReacts(t *testing.T) {
	r := newRig(20, 20, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	a, _ := r.add(r3.Vec{X: 5, Z: 5}, 1)

	r.bus.Publish(r3.Vec{})
	require.True(t, r.pop.Remove(a.ID, stats.ReasonCulled))
	assert.False(t, r.pop.Remove(a.ID, stats.ReasonCulled))

	assert.Zero(t, r.sched.Len())
	assert.Zero(t, r.bus.Len())
	assert.Zero(t, r.sched.Advance(clock.Seconds(10)))
	assert.Equal(t, StateWandering, a.State)
	assert.Equal(t, 1, r.counter.Totals().Culled)
}

func TestBeaconChainToFinalExit(t *testing.T) {
	reg := world.NewRegistry()
	aID := reg.AddBeacon(world.Beacon{Name: "A", Position: r3.Vec{X: 5.5, Z: 5.5}, Active: true})
	bID := reg.AddBeacon(world.Beacon{Name: "B", Position: r3.Vec{X: 10.5, Z: 5.5}, Active: true, FinalExit: true})
	require.NoError(t, reg.LinkBeacons(aID, bID))
	exit := r3.Vec{X: 35.5, Z: 5.5}
	reg.AddExit("door", exit)

	r := newRig(40, 10, reg, quietConfig(), DefaultPanicConfig())
	a, w := r.evacuee(r3.Vec{X: 5.5, Z: 5.5})
	a.TargetBeacon = aID

	r.beh.Tick(a, 0.1)
	assert.Equal(t, bID, a.TargetBeacon)
	assert.Equal(t, r3.Vec{X: 10.5, Z: 5.5}, w.Destination())

	a.Position = r3.Vec{X: 10.5, Z: 5.5}
	r.beh.Tick(a, 0.1)
	assert.Zero(t, a.TargetBeacon)
	assert.Equal(t, exit, w.Destination())
	assert.Less(t, a.TimeSinceBeaconSeen, 0.2)
}

func TestChainVisitsEveryBeaconInOrder(t *testing.T) {
	reg := world.NewRegistry()
	var chain []world.BeaconID
	for i := 0; i < 4; i++ {
		id := reg.AddBeacon(world.Beacon{Position: r3.Vec{X: 3.5 + 5*float64(i), Z: 5.5}, Active: true})
		if i > 0 {
			require.NoError(t, reg.LinkBeacons(chain[i-1], id))
		}
		chain = append(chain, id)
	}

	r := newRig(40, 10, reg, quietConfig(), DefaultPanicConfig())
	a, _ := r.evacuee(r3.Vec{X: 3.5, Z: 5.5})
	a.TargetBeacon = chain[0]

	var visited []world.BeaconID
	for step := 0; a.TargetBeacon != 0 && step < 10; step++ {
		bc, ok := reg.Beacon(a.TargetBeacon)
		require.True(t, ok)
		visited = append(visited, bc.ID)
		a.Position = bc.Position
		r.beh.Tick(a, 0.1)
	}
	assert.Equal(t, chain, visited)
	assert.Zero(t, a.TargetBeacon)
}

func TestStaleTargetIsCleared(t *testing.T) {
	reg := world.NewRegistry()
	id := reg.AddBeacon(world.Beacon{Position: r3.Vec{X: 8.5, Z: 5.5}, Active: true})
	r := newRig(20, 10, reg, quietConfig(), DefaultPanicConfig())
	a, _ := r.evacuee(r3.Vec{X: 1.5, Z: 5.5})
	a.TargetBeacon = id

	reg.SetBeaconActive(id, false)
	r.beh.Tick(a, 0.1)
	assert.Zero(t, a.TargetBeacon)

	reg.SetBeaconActive(id, true)
	r.beh.Tick(a, 0.1)
	a.Motion().Clear()
	r.beh.Tick(a, 0.1)
	require.Equal(t, id, a.TargetBeacon)

	reg.RemoveBeacon(id)
	r.beh.Tick(a, 0.1)
	assert.Zero(t, a.TargetBeacon)
}

func TestChainEndDoesNotReacquireReachedBeacon(t *testing.T) {
	reg := world.NewRegistry()
	aID := reg.AddBeacon(world.Beacon{Name: "A", Position: r3.Vec{X: 15.5, Z: 20.5}, Active: true})
	bID := reg.AddBeacon(world.Beacon{Name: "B", Position: r3.Vec{X: 20.5, Z: 20.5}, Active: true})
	require.NoError(t, reg.LinkBeacons(aID, bID))
	reg.AddExit("door", r3.Vec{X: 38.5, Z: 38.5})

	r := newRig(40, 40, reg, quietConfig(), DefaultPanicConfig())
	a, w := r.evacuee(r3.Vec{X: 15.5, Z: 20.5})
	a.TargetBeacon = aID

	r.beh.Tick(a, 0.1)
	require.Equal(t, bID, a.TargetBeacon)

	a.Position = r3.Vec{X: 20.5, Z: 20.5}
	r.beh.Tick(a, 0.1)
	require.Zero(t, a.TargetBeacon)

	for i := 0; i < 20; i++ {
		r.beh.Tick(a, 0.1)
		a.Move(0.1)
		assert.NotEqual(t, aID, a.TargetBeacon)
		assert.NotEqual(t, bID, a.TargetBeacon)
	}
	assert.True(t, w.HasPath())
	assert.NotEqual(t, r3.Vec{X: 20.5, Z: 20.5}, w.Destination())
	assert.Greater(t, r3.Norm(r3.Sub(a.Position, r3.Vec{X: 20.5, Z: 20.5})), 1.0)
}

func TestUnreachableNextBeaconFallsBackToCorridor(t *testing.T) {
	reg := world.NewRegistry()
	aID := reg.AddBeacon(world.Beacon{Name: "A", Position: r3.Vec{X: 5.5, Z: 5.5}, Active: true})
	bID := reg.AddBeacon(world.Beacon{Name: "B", Position: r3.Vec{X: 20.5, Z: 5.5}, Active: true})
	require.NoError(t, reg.LinkBeacons(aID, bID))
	reg.AddCorridor("hall", r3.NewBox(0, 0, 8, 14, 2.2, 10), 0)

	r := newRig(40, 10, reg, quietConfig(), DefaultPanicConfig())
	for z := 0; z < 10; z++ {
		r.grid.Set(0, 15, z, nav.CellWall)
	}
	a, w := r.evacuee(r3.Vec{X: 5.5, Z: 5.5})
	a.TargetBeacon = aID

	r.beh.Tick(a, 0.1)
	assert.Equal(t, bID, a.TargetBeacon)
	assert.Empty(t, w.dests)

	r.beh.Tick(a, 0.1)
	assert.Zero(t, a.TargetBeacon)
	require.Len(t, w.dests, 1)
	assert.Equal(t, r3.Vec{X: 5.5, Z: 8}, w.Destination())
}

func TestPanicPerturbsDestinationKeepingTarget(t *testing.T) {
	reg := world.NewRegistry()
	beacon := r3.Vec{X: 28.5, Z: 20.5}
	id := reg.AddBeacon(world.Beacon{Position: beacon, Active: true})
	cfg := quietConfig()
	cfg.PanicWanderRate = 1e6
	pcfg := DefaultPanicConfig()
	pcfg.IncreaseRate, pcfg.DecreaseRate, pcfg.SmokeRate = 0, 0, 0
	r := newRig(40, 40, reg, cfg, pcfg)
	a, w := r.evacuee(r3.Vec{X: 20.5, Z: 20.5})
	a.Panic.Level = 1

	r.beh.Tick(a, 0.1)
	assert.Equal(t, id, a.TargetBeacon)
	require.Len(t, w.dests, 2)
	assert.Equal(t, beacon, w.dests[0])
	assert.NotEqual(t, beacon, w.Destination())
	assert.LessOrEqual(t, r3.Norm(r3.Sub(w.Destination(), a.Position)), cfg.PanicWanderRadius+1e-9)
}

func TestSmokeDisorientsKeepingTarget(t *testing.T) {
	reg := world.NewRegistry()
	beacon := r3.Vec{X: 26.5, Z: 20.5}
	id := reg.AddBeacon(world.Beacon{Position: beacon, Active: true})
	cfg := quietConfig()
	cfg.SmokeDisorientRate = 1e6
	pcfg := DefaultPanicConfig()
	pcfg.IncreaseRate, pcfg.DecreaseRate, pcfg.SmokeRate = 0, 0, 0
	r := newRig(40, 40, reg, cfg, pcfg)
	a, w := r.evacuee(r3.Vec{X: 20.5, Z: 20.5})
	r.beh.SetInSmoke(a, true)

	r.beh.Tick(a, 0.1)
	assert.Equal(t, id, a.TargetBeacon)
	assert.False(t, r.beh.Panicking(a))
	require.Len(t, w.dests, 2)
	assert.Equal(t, beacon, w.dests[0])
	assert.NotEqual(t, beacon, w.Destination())
	assert.LessOrEqual(t, r3.Norm(r3.Sub(w.Destination(), a.Position)), cfg.SmokeDisorientRadius+1e-9)
}

func TestReachingExitRemovesAgent(t *testing.T) {
	reg := world.NewRegistry()
	reg.AddExit("door", r3.Vec{X: 2.5, Z: 2.5})
	r := newRig(20, 10, reg, quietConfig(), DefaultPanicConfig())
	a, _ := r.evacuee(r3.Vec{X: 4.5, Z: 2.5})

	r.beh.Tick(a, 0.1)
	assert.True(t, a.Removed)
	assert.Zero(t, r.pop.Len())
	assert.Equal(t, 1, r.counter.Totals().Evacuated)
}

func TestDecideFallsBackToCorridor(t *testing.T) {
	reg := world.NewRegistry()
	reg.AddCorridor("hall", r3.NewBox(0, 0, 8, 40, 2.2, 10), 0)
	r := newRig(40, 12, reg, quietConfig(), DefaultPanicConfig())
	a, w := r.evacuee(r3.Vec{X: 5.5, Z: 2.5})

	r.beh.Tick(a, 0.1)
	assert.Zero(t, a.TargetBeacon)
	assert.Equal(t, r3.Vec{X: 5.5, Z: 8}, w.Destination())
}

func TestDecideFollowsPeer(t *testing.T) {
	r := newRig(20, 10, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	peer, _ := r.add(r3.Vec{X: 8.5, Z: 5.5}, 1)
	peer.TargetBeacon = 7
	peer.TimeSinceBeaconSeen = 1

	a, w := r.evacuee(r3.Vec{X: 3.5, Z: 5.5})
	r.beh.Tick(a, 0.1)
	assert.Equal(t, peer.Position, w.Destination())

	// A peer whose sighting is stale is not followed.
	peer.TimeSinceBeaconSeen = 10
	a.Motion().Clear()
	r.beh.Tick(a, 0.1)
	assert.NotEqual(t, peer.Position, w.Destination())
}

func TestPanicScalesSpeed(t *testing.T) {
	pcfg := DefaultPanicConfig()
	pcfg.IncreaseRate, pcfg.DecreaseRate, pcfg.SmokeRate = 0, 0, 0
	r := newRig(20, 10, world.NewRegistry(), quietConfig(), pcfg)
	a, w := r.evacuee(r3.Vec{X: 3.5, Z: 5.5})

	a.Panic.Level = 0.9
	r.beh.Tick(a, 0.1)
	assert.InDelta(t, 1.4*(1+0.9*0.7), w.Speed(), 1e-9)

	a.Panic.Level = 0.2
	r.beh.Tick(a, 0.1)
	assert.InDelta(t, 1.4, w.Speed(), 1e-9)
}

func TestSmokeShortensVision(t *testing.T) {
	r := newRig(20, 10, world.NewRegistry(), quietConfig(), DefaultPanicConfig())
	a, _ := r.add(r3.Vec{X: 3.5, Z: 5.5}, 1)
	assert.Equal(t, 10.0, r.beh.EffectiveVision(a))
	r.beh.SetInSmoke(a, true)
	assert.Equal(t, 5.0, r.beh.EffectiveVision(a))
}

func TestCoughPausesThenRestoresSpeed(t *testing.T) {
	cfg := quietConfig()
	cfg.CoughRate = 1e6
	cfg.CoughMin, cfg.CoughMax = 1, 1
	pcfg := DefaultPanicConfig()
	pcfg.IncreaseRate, pcfg.DecreaseRate, pcfg.SmokeRate = 0, 0, 0
	r := newRig(20, 10, world.NewRegistry(), cfg, pcfg)
	a, w := r.evacuee(r3.Vec{X: 3.5, Z: 5.5})
	r.beh.SetInSmoke(a, true)

	r.beh.Tick(a, 0.1)
	require.True(t, a.Coughing())
	assert.Zero(t, w.Speed())

	r.beh.Tick(a, 0.1)
	assert.Zero(t, w.Speed())

	r.sched.Advance(clock.Seconds(1))
	assert.False(t, a.Coughing())
	assert.InDelta(t, 1.4, w.Speed(), 1e-9)
}

func TestCoughCancelledOnRemoval(t *testing.T) {
	cfg := quietConfig()
	cfg.CoughRate = 1e6
	r := newRig(20, 10, world.NewRegistry(), cfg, DefaultPanicConfig())
	a, _ := r.evacuee(r3.Vec{X: 3.5, Z: 5.5})
	r.beh.SetInSmoke(a, true)

	r.beh.Tick(a, 0.1)
	require.True(t, a.Coughing())
	r.pop.Kill(uint64(a.ID))
	assert.Zero(t, r.sched.Len())
	assert.Equal(t, 1, r.counter.Totals().FireDeaths)
}
