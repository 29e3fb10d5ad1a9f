package world

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrBootstrapMissing means the scene lacks beacons or hazard zones.
	ErrBootstrapMissing = errors.New("world: bootstrap objects missing")
	// ErrBeaconCycle means a link would close a cycle in a beacon chain.
	ErrBeaconCycle = errors.New("world: beacon chain cycle")
	// ErrUnknownBeacon means a beacon ID is not registered.
	ErrUnknownBeacon = errors.New("world: unknown beacon")
)

// Registry is the arena-backed Scene. Slices handed out are replaced, not
// mutated, on removal, so callers iterating an earlier slice stay safe.
type Registry struct {
	beacons    map[BeaconID]*Beacon
	beaconList []*Beacon
	nextBeacon BeaconID

	rooms    map[RoomID]*Room
	roomList []*Room
	nextRoom RoomID

	corridors    []*Corridor
	nextCorridor CorridorID

	exits    []*Exit
	nextExit ExitID

	smoke     []*SmokeRegion
	nextSmoke SmokeID
}

// NewRegistry creates an empty scene.
func NewRegistry() *Registry {
	return &Registry{
		beacons: make(map[BeaconID]*Beacon),
		rooms:   make(map[RoomID]*Room),
	}
}

// AddBeacon registers b with a fresh ID and no link. Use LinkBeacons to chain.
func (r *Registry) AddBeacon(b Beacon) BeaconID {
	r.nextBeacon++
	b.ID = r.nextBeacon
	b.Next = 0
	if b.Name == "" {
		b.Name = fmt.Sprintf("beacon-%d", b.ID)
	}
	stored := &b
	r.beacons[b.ID] = stored
	r.beaconList = append(r.beaconList, stored)
	return b.ID
}

// LinkBeacons sets from.Next = to. A zero `to` unlinks. Links that would
// make the chain revisit `from` are rejected with ErrBeaconCycle.
func (r *Registry) LinkBeacons(from, to BeaconID) error {
	src, ok := r.beacons[from]
	if !ok {
		return fmt.Errorf("link from %d: %w", from, ErrUnknownBeacon)
	}
	if to == 0 {
		src.Next = 0
		return nil
	}
	if _, ok := r.beacons[to]; !ok {
		return fmt.Errorf("link to %d: %w", to, ErrUnknownBeacon)
	}
	cur := to
	for steps := 0; cur != 0 && steps <= len(r.beacons); steps++ {
		if cur == from {
			return fmt.Errorf("link %d -> %d: %w", from, to, ErrBeaconCycle)
		}
		cur = r.beacons[cur].Next
	}
	src.Next = to
	return nil
}

// SetBeaconActive toggles a beacon. Reports false for unknown IDs.
func (r *Registry) SetBeaconActive(id BeaconID, active bool) bool {
	b, ok := r.beacons[id]
	if !ok {
		return false
	}
	b.Active = active
	return true
}

// RemoveBeacon deletes a beacon and unlinks every beacon pointing at it.
func (r *Registry) RemoveBeacon(id BeaconID) {
	if _, ok := r.beacons[id]; !ok {
		return
	}
	delete(r.beacons, id)
	list := make([]*Beacon, 0, len(r.beaconList)-1)
	for _, b := range r.beaconList {
		if b.ID == id {
			continue
		}
		if b.Next == id {
			b.Next = 0
		}
		list = append(list, b)
	}
	r.beaconList = list
}

// AddRoom registers a hazard zone.
func (r *Registry) AddRoom(name string, bounds r3.Box, floor int) RoomID {
	r.nextRoom++
	room := &Room{ID: r.nextRoom, Name: name, Bounds: bounds.Canon(), Floor: floor}
	r.rooms[room.ID] = room
	r.roomList = append(r.roomList, room)
	return room.ID
}

// AddCorridor registers a corridor.
func (r *Registry) AddCorridor(name string, bounds r3.Box, floor int) CorridorID {
	r.nextCorridor++
	r.corridors = append(r.corridors, &Corridor{ID: r.nextCorridor, Name: name, Bounds: bounds.Canon(), Floor: floor})
	return r.nextCorridor
}

// AddExit registers an exit point.
func (r *Registry) AddExit(name string, pos r3.Vec) ExitID {
	r.nextExit++
	r.exits = append(r.exits, &Exit{ID: r.nextExit, Name: name, Position: pos})
	return r.nextExit
}

// AddSmokeRegion registers a smoke volume.
func (r *Registry) AddSmokeRegion(bounds r3.Box) SmokeID {
	r.nextSmoke++
	r.smoke = append(r.smoke, &SmokeRegion{ID: r.nextSmoke, Bounds: bounds.Canon()})
	return r.nextSmoke
}

// Beacons returns every beacon in insertion order.
func (r *Registry) Beacons() []*Beacon { return r.beaconList }

// Beacon resolves an ID; removed beacons are not found.
func (r *Registry) Beacon(id BeaconID) (*Beacon, bool) {
	b, ok := r.beacons[id]
	return b, ok
}

// Rooms returns every room in insertion order.
func (r *Registry) Rooms() []*Room { return r.roomList }

// Room resolves a room ID.
func (r *Registry) Room(id RoomID) (*Room, bool) {
	room, ok := r.rooms[id]
	return room, ok
}

// Corridors returns every corridor.
func (r *Registry) Corridors() []*Corridor { return r.corridors }

// Exits returns every exit.
func (r *Registry) Exits() []*Exit { return r.exits }

// SmokeRegions returns every authored smoke volume.
func (r *Registry) SmokeRegions() []*SmokeRegion { return r.smoke }

// Validate reports ErrBootstrapMissing when beacons or hazard zones are
// absent. The scene is still usable; dependent subsystems stay inactive.
func (r *Registry) Validate() error {
	var errs []error
	if len(r.beaconList) == 0 {
		errs = append(errs, fmt.Errorf("no beacons: %w", ErrBootstrapMissing))
	}
	if len(r.roomList) == 0 {
		errs = append(errs, fmt.Errorf("no hazard zones: %w", ErrBootstrapMissing))
	}
	if len(r.exits) == 0 {
		slog.Warn("scene has no exits; evacuation can only end by beacon arrival")
	}
	return errors.Join(errs...)
}

// ValidateChains walks every beacon chain and reports dangling links and
// chains that revisit a beacon.
func (r *Registry) ValidateChains() error {
	var errs []error
	for _, b := range r.beaconList {
		cur := b
		for steps := 0; cur.Next != 0; steps++ {
			if steps >= len(r.beacons) {
				errs = append(errs, fmt.Errorf("chain from %s: %w", b.Name, ErrBeaconCycle))
				break
			}
			next, ok := r.beacons[cur.Next]
			if !ok {
				errs = append(errs, fmt.Errorf("%s links to %d: %w", cur.Name, cur.Next, ErrUnknownBeacon))
				break
			}
			cur = next
		}
		if !cur.FinalExit {
			slog.Debug("beacon chain ends short of a final exit", "from", b.Name, "end", cur.Name)
		}
	}
	return errors.Join(errs...)
}
