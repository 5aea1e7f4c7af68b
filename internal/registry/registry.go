// Package registry keeps track of live connections and the rooms they joined.
package registry

import (
	"sort"
	"sync"
)

type set map[string]struct{}

// room is looked up by id in the registry's room table. It lives exactly as
// long as it has members.
type room struct {
	id      string
	members set
}

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// Stats is a point-in-time count of connections and rooms.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]set   // connID -> joined room ids
	rooms map[string]*room // roomID -> room
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]set),
		rooms: make(map[string]*room),
	}
}

// Register creates an empty membership set for connID. Registering a known
// connection keeps its memberships.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(set)
	}
}

// Join adds connID to roomID, creating the room on first join. It reports
// whether membership changed; unknown connections are ignored.
func (r *Registry) Join(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, already := joined[roomID]; already {
		return false
	}

	rm := r.rooms[roomID]
	if rm == nil {
		rm = &room{id: roomID, members: make(set)}
		r.rooms[roomID] = rm
	}
	rm.members[connID] = struct{}{}
	joined[roomID] = struct{}{}
	return true
}

// LeaveAll drops connID from every room and forgets it. Rooms left empty are
// removed from the table. It returns the ids of the rooms the connection left.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[connID]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
		rm := r.rooms[roomID]
		if rm == nil {
			continue
		}
		delete(rm.members, connID)
		if len(rm.members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(r.conns, connID)
	sort.Strings(left)
	return left
}

// MembersOf returns the members of roomID other than excluding. An unknown
// room has no members.
func (r *Registry) MembersOf(roomID, excluding string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[roomID]
	if rm == nil {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for connID := range rm.members {
		if connID == excluding {
			continue
		}
		out = append(out, connID)
	}
	return out
}

func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.conns[connID]
	out := make([]string, 0, len(joined))
	for roomID := range joined {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) RoomSize(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm := r.rooms[roomID]; rm != nil {
		return len(rm.members)
	}
	return 0
}

func (r *Registry) IsRegistered(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Connections: len(r.conns), Rooms: len(r.rooms)}
}

// Rooms lists every live room sorted by id.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, RoomInfo{ID: rm.id, Members: len(rm.members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
