package app

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is one live client connection the registry can deliver events to.
// Implementations must not block; send failures are the implementation's
// to report and the registry's to swallow.
type Conn interface {
	SendEvent(event string, payload any) error
}

// Registry tracks which connections belong to which session code and fans
// events out to a room's current members. A connection belongs to at most
// one room at a time. All methods are safe for concurrent use; one RWMutex
// guards the room map, which keeps join/leave/broadcast linearizable with
// respect to each other.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]map[Conn]struct{}
	members map[Conn]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[Conn]struct{}),
		members: make(map[Conn]string),
	}
}

// Join registers conn under sessionCode. Joining the same code twice is a
// no-op; joining a different code first leaves the old room.
func (r *Registry) Join(sessionCode string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[conn]; ok {
		if current == sessionCode {
			return
		}
		r.removeLocked(conn, current)
	}

	room, ok := r.rooms[sessionCode]
	if !ok {
		room = make(map[Conn]struct{})
		r.rooms[sessionCode] = room
	}
	room[conn] = struct{}{}
	r.members[conn] = sessionCode
}

// Leave removes conn from its current room. Safe to call repeatedly and
// for connections that never joined; disconnect can race an explicit leave.
func (r *Registry) Leave(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.members[conn]
	if !ok {
		return
	}
	r.removeLocked(conn, code)
}

// Broadcast delivers payload to every current member of sessionCode.
// Unknown or empty rooms are a silent no-op: sessions end organically and a
// broadcast may race the final leave. A failed send to one member never
// aborts delivery to the rest.
func (r *Registry) Broadcast(sessionCode, event string, payload any) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[sessionCode]
	if !ok {
		return
	}
	for conn := range room {
		if err := conn.SendEvent(event, payload); err != nil {
			log.Warn().Err(err).Str("session", sessionCode).Str("event", event).Msg("dropping broadcast to dead member")
		}
	}
}

// MembersOf returns a snapshot of the room's members, for diagnostics and
// tests.
func (r *Registry) MembersOf(sessionCode string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[sessionCode]
	members := make([]Conn, 0, len(room))
	for conn := range room {
		members = append(members, conn)
	}
	return members
}

func (r *Registry) removeLocked(conn Conn, code string) {
	if room, ok := r.rooms[code]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(r.rooms, code)
		}
	}
	delete(r.members, conn)
}
