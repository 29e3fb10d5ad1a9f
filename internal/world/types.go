// Package world holds the authored scene: beacons, rooms (hazard zones),
// corridors, exits and smoke regions, stored in ID-indexed arenas.
// References between scene objects are IDs; zero means "none".
package world

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// BeaconID identifies a beacon. Zero is no beacon.
type BeaconID uint32

// RoomID identifies a room. Zero is no room.
type RoomID uint32

// CorridorID identifies a corridor.
type CorridorID uint32

// ExitID identifies an exit.
type ExitID uint32

// SmokeID identifies a smoke region.
type SmokeID uint32

// Beacon is a waypoint on an evacuation route. Next links the chain toward
// an exit. Only Active changes at runtime.
type Beacon struct {
	ID              BeaconID `json:"id"`
	Name            string   `json:"name"`
	Position        r3.Vec   `json:"position"`
	Active          bool     `json:"active"`
	VisibilityRange float64  `json:"visibility_range"`
	FinalExit       bool     `json:"final_exit"`
	Next            BeaconID `json:"next,omitempty"`
}

// Room is a hazard zone: a wandering region and fire ignition volume.
type Room struct {
	ID     RoomID `json:"id"`
	Name   string `json:"name"`
	Bounds r3.Box `json:"bounds"`
	Floor  int    `json:"floor"`
}

// Level is the floor elevation of the room.
func (r *Room) Level() float64 { return r.Bounds.Min.Y }

// Corridor is a connective region agents head for when no beacon is visible.
type Corridor struct {
	ID     CorridorID `json:"id"`
	Name   string     `json:"name"`
	Bounds r3.Box     `json:"bounds"`
	Floor  int        `json:"floor"`
}

// Level is the floor elevation of the corridor.
func (c *Corridor) Level() float64 { return c.Bounds.Min.Y }

// Exit is a point whose detection radius removes evacuating agents.
type Exit struct {
	ID       ExitID `json:"id"`
	Name     string `json:"name"`
	Position r3.Vec `json:"position"`
}

// SmokeRegion is a volume that puts agents inside it in smoke.
type SmokeRegion struct {
	ID     SmokeID `json:"id"`
	Bounds r3.Box  `json:"bounds"`
}

// Scene is the read-only registry view the simulation queries every tick.
// Returned slices must not be modified. Implementations may substitute a
// spatial index without changing callers.
type Scene interface {
	Beacons() []*Beacon
	Beacon(id BeaconID) (*Beacon, bool)
	Rooms() []*Room
	Room(id RoomID) (*Room, bool)
	Corridors() []*Corridor
	Exits() []*Exit
	SmokeRegions() []*SmokeRegion
}
