package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// Lifecycle is the only component that mutates room membership or
// status after creation. waiting -> chatting happens only through Join,
// chatting -> waiting/inactive only through Release. inactive is terminal.
type Lifecycle struct {
	store core.RoomStore
}

func NewLifecycle(store core.RoomStore) *Lifecycle {
	return &Lifecycle{store: store}
}

func checkRoom(op string, room domain.Room) (domain.Room, error) {
	if !room.Valid() {
		log.Error().Str("module", "app.lifecycle").Str("op", op).Str("room", string(room.ID)).
			Str("status", string(room.Status)).Int("size", room.Size()).Msg("room invariant broken")
		return domain.Room{}, fmt.Errorf("%w: %s left room %s %s with %d members",
			domain.ErrInvalidRoomState, op, room.ID, room.Status, room.Size())
	}
	return room, nil
}

func (l *Lifecycle) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	return l.store.Get(ctx, id)
}

// Join adds client as the second member of a waiting room.
func (l *Lifecycle) Join(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	room, err := l.store.TryJoin(ctx, id, client)
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Str("client", string(client)).Msg("paired")
	return checkRoom("join", room)
}

// Release removes client from the room. An inactive result needs no
// further action; expiry of inactive rows happens outside this process.
func (l *Lifecycle) Release(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	room, err := l.store.Leave(ctx, id, client)
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Str("client", string(client)).
		Str("status", string(room.Status)).Msg("released")
	return checkRoom("release", room)
}

// ReleaseAll drops client from every room it still occupies. Used before
// matching so a client that vanished without teardown cannot hold two rooms.
func (l *Lifecycle) ReleaseAll(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	rooms, err := l.store.RoomsOf(ctx, client)
	if err != nil {
		return nil, err
	}
	released := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		room, err := l.Release(ctx, r.ID, client)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return released, err
		}
		log.Warn().Str("module", "app.lifecycle").Str("room", string(r.ID)).Str("client", string(client)).Msg("released stale membership")
		released = append(released, room)
	}
	return released, nil
}

// SetStatus is the administrative override. The store only applies a
// status that agrees with the member count, so the override can
// reconcile a drifted status but can never break the mapping.
func (l *Lifecycle) SetStatus(ctx context.Context, id domain.RoomID, status domain.Status) (domain.Room, error) {
	if _, err := domain.ParseStatus(string(status)); err != nil {
		return domain.Room{}, err
	}
	room, err := l.store.SetStatus(ctx, id, status)
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Str("status", string(status)).Msg("status set")
	return checkRoom("set status", room)
}
