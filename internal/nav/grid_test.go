package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// wallGrid is a 10x10 single floor with a wall along x=5 except a gap at z=9.
func wallGrid() *Grid {
	g := NewGrid(r3.Vec{}, 10, 10, 1, []float64{0})
	for z := 0; z < 9; z++ {
		g.Set(0, 5, z, CellWall)
	}
	return g
}

func TestSampleOpenPointReturnsItself(t *testing.T) {
	g := NewGrid(r3.Vec{}, 10, 10, 1, []float64{0})
	p, err := g.SamplePosition(r3.Vec{X: 3.3, Y: 0.4, Z: 7.1}, 1)
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 3.3, Y: 0, Z: 7.1}, p)
}

func TestSampleSnapsOffWall(t *testing.T) {
	g := wallGrid()
	p, err := g.SamplePosition(r3.Vec{X: 5.5, Z: 2.5}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r3.Norm(r3.Sub(p, r3.Vec{X: 5.5, Z: 2.5})), 1e-9)

	_, err = g.SamplePosition(r3.Vec{X: 5.5, Z: 2.5}, 0.5)
	assert.ErrorIs(t, err, ErrNotNavigable)

	_, err = g.SamplePosition(r3.Vec{X: 2, Y: 10, Z: 2}, 1)
	assert.ErrorIs(t, err, ErrNotNavigable)
}

func TestPathGoesAroundWall(t *testing.T) {
	g := wallGrid()
	a, b := r3.Vec{X: 1.5, Z: 1.5}, r3.Vec{X: 8.5, Z: 1.5}
	path, err := g.CalculatePath(a, b)
	require.NoError(t, err)
	assert.Equal(t, PathComplete, path.Status)
	assert.Equal(t, a, path.Corners[0])
	assert.Equal(t, b, path.Corners[len(path.Corners)-1])
	assert.Greater(t, path.Length(), 14.0)

	for _, c := range path.Corners {
		f, ix, iz := g.CellOf(c)
		assert.True(t, g.Walkable(f, ix, iz), "corner %v on wall", c)
	}
}

func TestPathIncompleteWhenSealed(t *testing.T) {
	g := wallGrid()
	g.Set(0, 5, 9, CellWall)
	path, err := g.CalculatePath(r3.Vec{X: 1.5, Z: 1.5}, r3.Vec{X: 8.5, Z: 1.5})
	assert.ErrorIs(t, err, ErrPathIncomplete)
	assert.Equal(t, PathPartial, path.Status)
	assert.True(t, math.IsInf(PathDistance(g, r3.Vec{X: 1.5, Z: 1.5}, r3.Vec{X: 8.5, Z: 1.5}, 1), 1))
}

func TestPathUsesStairs(t *testing.T) {
	g := NewGrid(r3.Vec{}, 6, 3, 1, []float64{0, 2.2})
	g.Set(0, 5, 1, CellStair)
	g.Set(1, 5, 1, CellStair)

	d := PathDistance(g, r3.Vec{X: 0.5, Y: 2.2, Z: 1.5}, r3.Vec{X: 0.5, Z: 1.5}, 1)
	assert.InDelta(t, 5+5+2.2, d, 1e-9)
}

func TestLineOfSight(t *testing.T) {
	g := wallGrid()
	assert.False(t, g.HasLineOfSight(r3.Vec{X: 1.5, Z: 1.5}, r3.Vec{X: 8.5, Z: 1.5}))
	assert.True(t, g.HasLineOfSight(r3.Vec{X: 1.5, Z: 1.5}, r3.Vec{X: 4.5, Z: 4.5}))
	assert.True(t, g.HasLineOfSight(r3.Vec{X: 1.5, Z: 9.5}, r3.Vec{X: 8.5, Z: 9.5}))

	// A marker mounted on the wall face stays visible.
	assert.True(t, g.HasLineOfSight(r3.Vec{X: 1.5, Z: 2.5}, r3.Vec{X: 5.2, Z: 2.5}))

	stacked := NewGrid(r3.Vec{}, 4, 4, 1, []float64{0, 2.2})
	assert.False(t, stacked.HasLineOfSight(r3.Vec{X: 1, Z: 1}, r3.Vec{X: 1, Y: 2.2, Z: 1}))
}

func TestObstacleCarving(t *testing.T) {
	g := NewGrid(r3.Vec{}, 10, 3, 1, []float64{0})
	for x := 0; x < 10; x++ {
		g.Set(0, x, 0, CellWall)
		g.Set(0, x, 2, CellWall)
	}
	a, b := r3.Vec{X: 0.5, Z: 1.5}, r3.Vec{X: 9.5, Z: 1.5}
	require.False(t, math.IsInf(PathDistance(g, a, b, 1), 1))

	id := g.AddObstacle(r3.Vec{X: 5.5, Z: 1.5}, 0.5)
	assert.Equal(t, 1, g.ObstacleCount())
	assert.False(t, g.Walkable(0, 5, 1))
	assert.True(t, math.IsInf(PathDistance(g, a, b, 1), 1))

	g.RemoveObstacle(id)
	assert.True(t, g.Walkable(0, 5, 1))
	assert.Zero(t, g.ObstacleCount())
}

func TestWalkerFollowsPath(t *testing.T) {
	g := wallGrid()
	w := NewWalker(g, 2)
	pos := r3.Vec{X: 1.5, Z: 1.5}
	assert.True(t, math.IsInf(w.RemainingDistance(pos), 1))

	require.True(t, w.SetDestination(pos, r3.Vec{X: 8.5, Z: 1.5}))
	assert.True(t, w.HasPath())
	assert.False(t, w.PathPending())
	total := w.RemainingDistance(pos)

	pos = w.Advance(pos, 1)
	assert.InDelta(t, total-2, w.RemainingDistance(pos), 1e-9)

	for i := 0; i < 100; i++ {
		pos = w.Advance(pos, 1)
	}
	assert.InDelta(t, 0, r3.Norm(r3.Sub(pos, r3.Vec{X: 8.5, Z: 1.5})), 1e-9)
	assert.Zero(t, w.RemainingDistance(pos))
	assert.True(t, w.HasPath())

	w.Clear()
	assert.False(t, w.HasPath())
	assert.False(t, w.SetDestination(pos, r3.Vec{X: 2, Y: 30, Z: 2}))
}
