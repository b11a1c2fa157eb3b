// Package memory is an in-process RoomStore. Each room carries its own
// lock, so conflicting updates to one room serialise while different
// rooms proceed in parallel.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

type entry struct {
	mu   sync.Mutex
	room domain.Room
}

type Store struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*entry
	order []domain.RoomID
}

var _ core.RoomStore = (*Store)(nil)

func New() *Store {
	return &Store{rooms: make(map[domain.RoomID]*entry)}
}

func (s *Store) lookup(id domain.RoomID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

// snapshot returns entries in creation order without holding the map lock
// while individual rooms are inspected.
func (s *Store) snapshot() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rooms[id])
	}
	return out
}

func (s *Store) Create(ctx context.Context, client domain.ClientID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	room := domain.Room{
		ID:      domain.NewRoomID(),
		Status:  domain.StatusWaiting,
		Members: []domain.ClientID{client},
	}
	s.mu.Lock()
	s.rooms[room.ID] = &entry{room: room}
	s.order = append(s.order, room.ID)
	s.mu.Unlock()
	log.Debug().Str("module", "store.memory").Str("room", string(room.ID)).Str("client", string(client)).Msg("room created")
	return room.Clone(), nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	e, ok := s.lookup(id)
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

func waitingFor(r domain.Room, client domain.ClientID) bool {
	return r.Status == domain.StatusWaiting && r.Size() == 1 && !r.Has(client)
}

func (s *Store) FindOneWaitingExcluding(ctx context.Context, client domain.ClientID, skip ...domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	for _, e := range s.snapshot() {
		e.mu.Lock()
		r := e.room
		ok := waitingFor(r, client) && !slices.Contains(skip, r.ID)
		if ok {
			r = r.Clone()
		}
		e.mu.Unlock()
		if ok {
			return r, nil
		}
	}
	return domain.Room{}, domain.ErrNotFound
}

func (s *Store) ListWaiting(ctx context.Context, exclude domain.ClientID, limit int) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.Room{}
	for _, e := range s.snapshot() {
		if limit > 0 && len(out) >= limit {
			break
		}
		e.mu.Lock()
		if waitingFor(e.room, exclude) {
			out = append(out, e.room.Clone())
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (s *Store) RoomsOf(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Room
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.room.Status != domain.StatusInactive && e.room.Has(client) {
			out = append(out, e.room.Clone())
		}
		e.mu.Unlock()
	}
	return out, nil
}

// update runs fn under the room lock. fn mutates a copy; the copy is
// committed only when fn returns nil.
func (s *Store) update(ctx context.Context, id domain.RoomID, fn func(r *domain.Room) error) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	e, ok := s.lookup(id)
	if !ok {
		return domain.Room{}, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.room.Clone()
	if err := fn(&next); err != nil {
		return e.room.Clone(), err
	}
	e.room = next
	return next.Clone(), nil
}

func (s *Store) TryJoin(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	room, err := s.update(ctx, id, func(r *domain.Room) error {
		if !waitingFor(*r, client) {
			return domain.ErrConflict
		}
		r.Members = append(r.Members, client)
		r.Status = domain.StatusChatting
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) Leave(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	return s.update(ctx, id, func(r *domain.Room) error {
		i := slices.Index(r.Members, client)
		if i < 0 {
			return nil
		}
		r.Members = slices.Delete(r.Members, i, i+1)
		r.Status = domain.StatusForSize(r.Size())
		return nil
	})
}

func (s *Store) SetStatus(ctx context.Context, id domain.RoomID, status domain.Status) (domain.Room, error) {
	room, err := s.update(ctx, id, func(r *domain.Room) error {
		if domain.StatusForSize(r.Size()) != status {
			return domain.ErrConflict
		}
		r.Status = status
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) Close() error { return nil }
