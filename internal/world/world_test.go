package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/talgya/firedrill/internal/nav"
)

func TestLinkRejectsCycles(t *testing.T) {
	r := NewRegistry()
	a := r.AddBeacon(Beacon{Name: "a", Active: true})
	b := r.AddBeacon(Beacon{Name: "b", Active: true})
	c := r.AddBeacon(Beacon{Name: "c", Active: true})

	require.NoError(t, r.LinkBeacons(a, b))
	require.NoError(t, r.LinkBeacons(b, c))
	assert.ErrorIs(t, r.LinkBeacons(c, a), ErrBeaconCycle)
	assert.ErrorIs(t, r.LinkBeacons(a, a), ErrBeaconCycle)
	assert.ErrorIs(t, r.LinkBeacons(a, 99), ErrUnknownBeacon)
	assert.NoError(t, r.ValidateChains())

	got, ok := r.Beacon(c)
	require.True(t, ok)
	assert.Zero(t, got.Next)
}

func TestRemoveBeaconUnlinks(t *testing.T) {
	r := NewRegistry()
	a := r.AddBeacon(Beacon{Active: true})
	b := r.AddBeacon(Beacon{Active: true})
	require.NoError(t, r.LinkBeacons(a, b))

	before := r.Beacons()
	r.RemoveBeacon(b)
	assert.Len(t, before, 2)
	assert.Len(t, r.Beacons(), 1)

	ba, _ := r.Beacon(a)
	assert.Zero(t, ba.Next)
	_, ok := r.Beacon(b)
	assert.False(t, ok)
	assert.False(t, r.SetBeaconActive(b, false))
}

func TestValidateReportsMissingBootstrap(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Validate(), ErrBootstrapMissing)

	r.AddBeacon(Beacon{Active: true})
	assert.ErrorIs(t, r.Validate(), ErrBootstrapMissing)

	r.AddRoom("lab", r3.NewBox(0, 0, 0, 5, 2.2, 5), 0)
	r.AddExit("door", r3.Vec{})
	assert.NoError(t, r.Validate())
}

func TestSceneQueries(t *testing.T) {
	r := NewRegistry()
	west := r.AddRoom("west", r3.NewBox(0, 0, 0, 4, 2.2, 4), 0)
	east := r.AddRoom("east", r3.NewBox(10, 0, 0, 14, 2.2, 4), 0)
	r.AddRoom("upstairs", r3.NewBox(0, 2.2, 0, 4, 4.4, 4), 1)
	r.AddCorridor("hall", r3.NewBox(0, 0, 5, 14, 2.2, 7), 0)
	r.AddCorridor("hall-1", r3.NewBox(0, 2.2, 5, 14, 4.4, 7), 1)
	r.AddExit("door", r3.Vec{X: -1, Z: 6})
	r.AddSmokeRegion(r3.NewBox(10, 0, 0, 14, 2.2, 4))

	p, d, ok := NearestCorridorPoint(r, r3.Vec{X: 2, Z: 2}, 1)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 2, Z: 5}, p)
	assert.InDelta(t, 3, d, 1e-9)

	wr, _ := r.Room(west)
	er, _ := r.Room(east)
	mid, ok := CorridorBetween(r, wr, er, 2)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{X: 7, Z: 5}, mid)

	room, ok := RoomAt(r, r3.Vec{X: 1, Z: 1}, 2)
	require.True(t, ok)
	assert.Equal(t, west, room.ID)
	room, ok = RoomAt(r, r3.Vec{X: 1, Y: 2.2, Z: 1}, 1)
	require.True(t, ok)
	assert.Equal(t, "upstairs", room.Name)
	_, ok = RoomAt(r, r3.Vec{X: 7, Z: 6}, 2)
	assert.False(t, ok)

	near := RoomsNear(r, 0, 2, west)
	require.Len(t, near, 1)
	assert.Equal(t, east, near[0].ID)

	assert.True(t, NearExit(r, r3.Vec{X: 1, Z: 6}, 3))
	assert.False(t, NearExit(r, r3.Vec{X: 5, Z: 6}, 3))
	assert.True(t, InSmokeRegion(r, r3.Vec{X: 12, Y: 1, Z: 2}))
	assert.False(t, InSmokeRegion(r, r3.Vec{X: 2, Y: 1, Z: 2}))
}

func TestGenerateSmallBuilding(t *testing.T) {
	reg, g, err := Generate(SmallTestConfig(), 42)
	require.NoError(t, err)

	assert.Equal(t, 2, g.Floors())
	assert.Len(t, reg.Rooms(), 8)
	assert.Len(t, reg.Corridors(), 2)
	require.Len(t, reg.Exits(), 1)
	assert.Len(t, reg.Beacons(), 6)
	assert.NoError(t, reg.Validate())

	finals := 0
	for _, b := range reg.Beacons() {
		if b.FinalExit {
			finals++
		}
	}
	assert.Equal(t, 1, finals)
}

func TestGeneratedChainsReachFinalExit(t *testing.T) {
	reg, _, err := Generate(DefaultBuildingConfig(), 7)
	require.NoError(t, err)

	n := len(reg.Beacons())
	for _, b := range reg.Beacons() {
		cur := b
		for steps := 0; !cur.FinalExit; steps++ {
			require.Less(t, steps, n, "chain from %s does not terminate", b.Name)
			next, ok := reg.Beacon(cur.Next)
			require.True(t, ok, "chain from %s breaks at %s", b.Name, cur.Name)
			cur = next
		}
	}
}

func TestGeneratedRoomsReachExit(t *testing.T) {
	reg, g, err := Generate(DefaultBuildingConfig(), 99)
	require.NoError(t, err)
	exit := reg.Exits()[0].Position

	for _, room := range reg.Rooms() {
		c := room.Bounds.Center()
		c.Y = room.Level()
		start, err := g.SamplePosition(c, 3)
		require.NoError(t, err, room.Name)
		d := nav.PathDistance(g, start, exit, 1)
		assert.False(t, math.IsInf(d, 1), "room %s cut off", room.Name)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	_, a, err := Generate(DefaultBuildingConfig(), 5)
	require.NoError(t, err)
	_, b, err := Generate(DefaultBuildingConfig(), 5)
	require.NoError(t, err)

	for f := 0; f < a.Floors(); f++ {
		for z := 0; z < a.Depth; z++ {
			for x := 0; x < a.Width; x++ {
				require.Equal(t, a.Kind(f, x, z), b.Kind(f, x, z))
			}
		}
	}
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Floors = 0
	_, _, err := Generate(cfg, 1)
	assert.Error(t, err)
}
