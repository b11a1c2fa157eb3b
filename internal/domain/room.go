package domain

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// RoomCapacity is the number of members a pairing holds.
const RoomCapacity = 2

type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusChatting Status = "chatting"
	StatusInactive Status = "inactive"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusWaiting, StatusChatting, StatusInactive:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// StatusForSize maps a member count to the only status it may carry.
func StatusForSize(n int) Status {
	switch n {
	case 1:
		return StatusWaiting
	case RoomCapacity:
		return StatusChatting
	default:
		return StatusInactive
	}
}

// Room is a value snapshot of a stored room. Stores hand out copies,
// so mutating a Room never changes stored state.
type Room struct {
	ID      RoomID     `json:"id"`
	Status  Status     `json:"status"`
	Members []ClientID `json:"members"`
}

// Size is derived from Members and never stored on its own.
func (r Room) Size() int { return len(r.Members) }

func (r Room) Has(id ClientID) bool {
	return slices.Contains(r.Members, id)
}

// Peer returns the other member of a paired room.
func (r Room) Peer(id ClientID) (ClientID, bool) {
	if !r.Has(id) {
		return "", false
	}
	for _, m := range r.Members {
		if m != id {
			return m, true
		}
	}
	return "", false
}

// Valid reports whether the capacity and status/size mapping hold.
func (r Room) Valid() bool {
	if r.Size() > RoomCapacity {
		return false
	}
	return r.Status == StatusForSize(r.Size())
}

func (r Room) Clone() Room {
	r.Members = slices.Clone(r.Members)
	if r.Members == nil {
		r.Members = []ClientID{}
	}
	return r
}

// RoomView is the persisted/wire shape, with size materialised.
type RoomView struct {
	ID      RoomID     `json:"id"`
	Status  Status     `json:"status"`
	Members []ClientID `json:"members"`
	Size    int        `json:"size"`
}

func (r Room) View() RoomView {
	c := r.Clone()
	return RoomView{ID: c.ID, Status: c.Status, Members: c.Members, Size: c.Size()}
}

func (v RoomView) Room() Room {
	return Room{ID: v.ID, Status: v.Status, Members: v.Members}.Clone()
}
