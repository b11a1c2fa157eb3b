// Package session runs the client side of a pairing: it asks the
// matchmaker for a room, joins the room's messaging channel and media
// transport, and tears all of it down again on next or stop.
package session

import (
	"errors"

	"github.com/dkeye/Roulette/internal/domain"
)

type State int

const (
	Idle State = iota
	Searching
	Paired
	Active
	Leaving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Paired:
		return "paired"
	case Active:
		return "active"
	case Leaving:
		return "leaving"
	}
	return "unknown"
}

var (
	ErrNotActive = errors.New("no active pairing")
	ErrStopped   = errors.New("session stopped")
)

type UpdateKind int

const (
	StateChanged UpdateKind = iota
	MessageReceived
	MessageSent
	PeerGone
	Failed
)

// Update is pushed to the UI for every visible change.
type Update struct {
	Kind    UpdateKind
	State   State
	Room    domain.RoomID
	Message domain.ChatMessage
	Err     error
}
