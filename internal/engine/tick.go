// Package engine provides the fixed-step tick loop and the Simulation that
// wires the building, agents, fire and alarm together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// DefaultStep is the simulated time covered by one tick.
const DefaultStep = 50 * time.Millisecond

// Engine drives the simulation forward.
type Engine struct {
	Tick uint64        // Current tick counter (monotonic, never resets)
	Step time.Duration // Simulated time per tick

	// ReportEvery is the tick period of OnReport. Zero disables it.
	ReportEvery uint64

	OnTick   func(dt float64)  // Every tick, dt in seconds
	OnReport func(tick uint64) // Every ReportEvery ticks
	Done     func() bool       // Ends Run and RunFor when it returns true

	running atomic.Bool
	speed   atomic.Uint64 // float64 bits of the pacing multiplier
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	e := &Engine{Step: DefaultStep}
	e.SetSpeed(1.0)
	return e
}

// SetSpeed changes the pacing multiplier: 1.0 is real time, 0 pauses.
// Safe to call while Run is active.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Speed returns the pacing multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool { return e.running.Load() }

// Run paces ticks against the wall clock until ctx is done or Done reports
// true.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "step", e.Step)

	for !e.finished() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused.
			if !sleep(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		e.step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Step) / speed)
		if elapsed < target {
			if !sleep(ctx, target-elapsed) {
				break
			}
		} else if ctx.Err() != nil {
			break
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick, "sim_time", SimTime(e.Elapsed()))
}

// RunFor ticks without pacing until d of simulated time has passed, ctx is
// done, or Done reports true. It returns the number of ticks run.
func (e *Engine) RunFor(ctx context.Context, d time.Duration) uint64 {
	from := e.Tick
	var covered time.Duration
	for covered < d && !e.finished() && ctx.Err() == nil {
		e.step()
		covered += e.Step
	}
	return e.Tick - from
}

// Elapsed returns the simulated time covered so far.
func (e *Engine) Elapsed() time.Duration {
	return time.Duration(e.Tick) * e.Step
}

func (e *Engine) finished() bool {
	return e.Done != nil && e.Done()
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Step.Seconds())
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SimTime formats simulated time as minutes and seconds.
func SimTime(d time.Duration) string {
	total := d.Seconds()
	minutes := int(total) / 60
	return fmt.Sprintf("%02d:%04.1f", minutes, total-float64(minutes*60))
}
