// Package stats collects evacuation outcome counts and a bounded event log.
package stats

import (
	"sync"
	"time"
)

// Reason is why an agent left the simulation.
type Reason uint8

const (
	ReasonEvacuated Reason = iota + 1
	ReasonFireDeath
	ReasonCulled
)

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r Reason) String() string {
	switch r {
	case ReasonEvacuated:
		return "evacuated"
	case ReasonFireDeath:
		return "fire_death"
	case ReasonCulled:
		return "culled"
	default:
		return "unknown"
	}
}

// Recorder is written to by the simulation core whenever an agent is removed.
type Recorder interface {
	Record(at time.Duration, agentID uint64, reason Reason)
}

// Event is one removal.
type Event struct {
	At      time.Duration `json:"at"`
	AgentID uint64        `json:"agent_id"`
	Reason  Reason        `json:"reason"`
}

// Totals is a point-in-time copy of the counters.
type Totals struct {
	Spawned    int `json:"spawned"`
	Evacuated  int `json:"evacuated"`
	FireDeaths int `json:"fire_deaths"`
	Culled     int `json:"culled"`
}

// Removed returns the number of agents that left the simulation.
func (t Totals) Removed() int { return t.Evacuated + t.FireDeaths + t.Culled }

// Counter is the in-memory Recorder. Safe for concurrent readers.
type Counter struct {
	mu      sync.Mutex
	totals  Totals
	events  []Event
	maxKeep int
}

// NewCounter creates a Counter keeping at most maxEvents events (0 = 1000).
func NewCounter(maxEvents int) *Counter {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &Counter{maxKeep: maxEvents}
}

// AddSpawned increments the spawned total.
func (c *Counter) AddSpawned(n int) {
	c.mu.Lock()
	c.totals.Spawned += n
	c.mu.Unlock()
}

// Record implements Recorder.
func (c *Counter) Record(at time.Duration, agentID uint64, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch reason {
	case ReasonEvacuated:
		c.totals.Evacuated++
	case ReasonFireDeath:
		c.totals.FireDeaths++
	case ReasonCulled:
		c.totals.Culled++
	}
	c.events = append(c.events, Event{At: at, AgentID: agentID, Reason: reason})
	if len(c.events) > c.maxKeep {
		c.events = c.events[len(c.events)-c.maxKeep:]
	}
}

// Totals returns the current counters.
func (c *Counter) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// Events returns a copy of the retained events, oldest first.
func (c *Counter) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Reset zeroes all counters and drops events.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.totals = Totals{}
	c.events = nil
	c.mu.Unlock()
}
