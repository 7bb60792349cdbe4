package location

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the loaded rooms.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Load validates rooms against devices and replaces the registry contents.
// Nothing changes when any room is invalid.
func (r *Registry) Load(rooms []Room, devices DeviceChecker) error {
	built := make(map[string]*Room, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		if err := ValidateRoom(room, devices); err != nil {
			return err
		}
		if _, dup := built[room.ID]; dup {
			return fmt.Errorf("%w: %s", ErrRoomExists, room.ID)
		}
		built[room.ID] = room.DeepCopy()
	}

	r.mu.Lock()
	r.rooms = built
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the room or ErrRoomNotFound.
func (r *Registry) Get(id string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return room.DeepCopy(), nil
}

// ContainsDevice reports whether room roomID lists deviceID. Unknown rooms
// contain nothing.
func (r *Registry) ContainsDevice(roomID, deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	return room.HasDevice(deviceID)
}

// List returns copies of every room, sorted by ID.
func (r *Registry) List() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
