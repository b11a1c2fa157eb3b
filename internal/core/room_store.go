package core

import (
	"context"

	"github.com/dkeye/Roulette/internal/domain"
)

// RoomStore is the single source of truth for rooms. Every mutating
// method is one indivisible conditional update against a single room;
// no caller performs read-modify-write on its own.
type RoomStore interface {
	// Create inserts {members: [client], status: waiting}.
	Create(ctx context.Context, client domain.ClientID) (domain.Room, error)
	Get(ctx context.Context, id domain.RoomID) (domain.Room, error)
	// FindOneWaitingExcluding returns a waiting room whose sole member is
	// not client, skipping the given rooms. domain.ErrNotFound when none.
	FindOneWaitingExcluding(ctx context.Context, client domain.ClientID, skip ...domain.RoomID) (domain.Room, error)
	ListWaiting(ctx context.Context, exclude domain.ClientID, limit int) ([]domain.Room, error)
	// RoomsOf lists non-inactive rooms that contain client.
	RoomsOf(ctx context.Context, client domain.ClientID) ([]domain.Room, error)

	// TryJoin succeeds only if the room is waiting with one member that is
	// not client; otherwise domain.ErrConflict and nothing changes.
	TryJoin(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error)
	// Leave removes client and recomputes status. Removing an absent
	// member returns the current room unchanged.
	Leave(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error)
	// SetStatus applies status only when it agrees with the current
	// member count; otherwise domain.ErrConflict.
	SetStatus(ctx context.Context, id domain.RoomID, status domain.Status) (domain.Room, error)

	Close() error
}
