package core

import (
	"sync"

	"github.com/dkeye/Roulette/internal/domain"
)

// MemberSession binds one client of a room to its server-side transports.
// This is what a channel stores and fans out to.
type MemberSession interface {
	Client() domain.ClientID
	Room() domain.RoomID
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}

type memberSession struct {
	client domain.ClientID
	room   domain.RoomID

	mu     sync.RWMutex
	signal SignalConnection
	media  MediaConnection
}

func NewMemberSession(client domain.ClientID, room domain.RoomID) MemberSession {
	return &memberSession{client: client, room: room}
}

func (m *memberSession) Client() domain.ClientID { return m.client }
func (m *memberSession) Room() domain.RoomID     { return m.room }

func (m *memberSession) Signal() SignalConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signal
}

func (m *memberSession) Media() MediaConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.media
}

func (m *memberSession) UpdateSignal(sc SignalConnection) MemberSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal = sc
	return m
}

func (m *memberSession) UpdateMedia(mc MediaConnection) MemberSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = mc
	return m
}
