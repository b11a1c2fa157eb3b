package app

import (
	"sync"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Room    domain.RoomID
	Session core.MemberSession
}

// Registry tracks which room each connected client is bound to on the
// channel side. It mirrors live connections, not store membership.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ClientID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ClientID]*sessionEntry),
	}
}

// Bind returns the session of client in room, creating it when needed.
// If client was bound to another room, that stale session is returned
// as prev so the caller can kick it.
func (r *Registry) Bind(client domain.ClientID, room domain.RoomID) (sess core.MemberSession, prev core.MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[client]; ok {
		if e.Room == room {
			return e.Session, nil
		}
		prev = e.Session
	}
	sess = core.NewMemberSession(client, room)
	r.sessions[client] = &sessionEntry{Room: room, Session: sess}
	log.Info().Str("module", "app.registry").Str("client", string(client)).Str("room", string(room)).Msg("bound session")
	return sess, prev
}

func (r *Registry) GetSession(client domain.ClientID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[client]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind removes client only if it is still bound to sess.
func (r *Registry) Unbind(client domain.ClientID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[client]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, client)
	log.Info().Str("module", "app.registry").Str("client", string(client)).Msg("unbind session")
	return true
}

func (r *Registry) RoomOf(client domain.ClientID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[client]
	if !ok {
		return "", nil, false
	}
	return entry.Room, entry.Session, true
}

type regSnap struct {
	Client  domain.ClientID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, domain.RoomCapacity)
	for client, e := range r.sessions {
		if e.Room == room {
			out = append(out, regSnap{Client: client, Session: e.Session})
		}
	}
	return out
}

// RoomMates lists the other clients bound to the same room as client.
func (r *Registry) RoomMates(client domain.ClientID) []regSnap {
	room, _, ok := r.RoomOf(client)
	if !ok {
		return nil
	}
	var out []regSnap
	for _, snap := range r.MembersOfRoom(room) {
		if snap.Client != client {
			out = append(out, snap)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
