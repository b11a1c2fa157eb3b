package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/store/memory"
)

func newMatchmaker(store core.RoomStore, retries int) (*Matchmaker, *Lifecycle) {
	lc := NewLifecycle(store)
	return NewMatchmaker(store, lc, retries), lc
}

func TestMatchScenarios(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mm, lc := newMatchmaker(store, 0)

	// A: empty store, first client creates, second joins.
	r1, err := mm.Match(ctx, "u1")
	if err != nil {
		t.Fatalf("Match(u1) error = %v", err)
	}
	if r1.Status != domain.StatusWaiting || len(r1.Members) != 1 || r1.Members[0] != "u1" {
		t.Fatalf("Match(u1) = %+v, want waiting [u1]", r1)
	}
	got, err := mm.Match(ctx, "u2")
	if err != nil {
		t.Fatalf("Match(u2) error = %v", err)
	}
	if got.ID != r1.ID || got.Status != domain.StatusChatting || got.Size() != 2 {
		t.Fatalf("Match(u2) = %+v, want chatting %s with two members", got, r1.ID)
	}

	// B: the first member leaves, the room waits for a new partner.
	got, err = lc.Release(ctx, r1.ID, "u1")
	if err != nil {
		t.Fatalf("Release(u1) error = %v", err)
	}
	if got.Status != domain.StatusWaiting || len(got.Members) != 1 || got.Members[0] != "u2" {
		t.Fatalf("after Release(u1) = %+v, want waiting [u2]", got)
	}

	// C: the last member leaves, the room is gone for good.
	got, err = lc.Release(ctx, r1.ID, "u2")
	if err != nil {
		t.Fatalf("Release(u2) error = %v", err)
	}
	if got.Status != domain.StatusInactive || got.Size() != 0 {
		t.Fatalf("after Release(u2) = %+v, want inactive []", got)
	}
	r3, err := mm.Match(ctx, "u3")
	if err != nil {
		t.Fatalf("Match(u3) error = %v", err)
	}
	if r3.ID == r1.ID {
		t.Fatal("Match(u3) reused an inactive room")
	}
	if r3.Status != domain.StatusWaiting {
		t.Errorf("Match(u3) status = %s, want waiting", r3.Status)
	}
}

// barrierStore holds the first n finds until all of them have looked, so
// no caller can create a room before every caller has searched.
type barrierStore struct {
	core.RoomStore

	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

func newBarrierStore(inner core.RoomStore, n int) *barrierStore {
	b := &barrierStore{RoomStore: inner, pending: n}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) FindOneWaitingExcluding(ctx context.Context, client domain.ClientID, skip ...domain.RoomID) (domain.Room, error) {
	room, err := b.RoomStore.FindOneWaitingExcluding(ctx, client, skip...)
	b.mu.Lock()
	wait := b.pending > 0
	if wait {
		b.pending--
	}
	b.mu.Unlock()
	if wait {
		b.wg.Done()
		b.wg.Wait()
	}
	return room, err
}

func TestSimultaneousMatchCreatesTwoRooms(t *testing.T) {
	ctx := context.Background()
	store := newBarrierStore(memory.New(), 2)
	mm, _ := newMatchmaker(store, 0)

	var wg sync.WaitGroup
	rooms := make([]domain.Room, 2)
	errs := make([]error, 2)
	for i, client := range []domain.ClientID{"u1", "u2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rooms[i], errs[i] = mm.Match(ctx, client)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Match #%d error = %v", i, err)
		}
	}
	if rooms[0].ID == rooms[1].ID {
		t.Fatalf("both clients landed in %s", rooms[0].ID)
	}
	for _, r := range rooms {
		if r.Status != domain.StatusWaiting || r.Size() != 1 {
			t.Errorf("room %+v, want waiting with one member", r)
		}
	}
}

// conflictStore loses every join race.
type conflictStore struct {
	core.RoomStore

	mu    sync.Mutex
	tried []domain.RoomID
}

func (c *conflictStore) TryJoin(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tried = append(c.tried, id)
	return domain.Room{}, domain.ErrConflict
}

func TestMatchFallsBackToCreate(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	for i := range 5 {
		if _, err := inner.Create(ctx, domain.ClientID(fmt.Sprintf("other-%d", i))); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	store := &conflictStore{RoomStore: inner}
	mm, _ := newMatchmaker(store, 3)

	room, err := mm.Match(ctx, "u9")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if room.Status != domain.StatusWaiting || len(room.Members) != 1 || room.Members[0] != "u9" {
		t.Errorf("Match() = %+v, want a new waiting room for u9", room)
	}
	if len(store.tried) != 3 {
		t.Fatalf("TryJoin called %d times, want 3", len(store.tried))
	}
	seen := map[domain.RoomID]bool{}
	for _, id := range store.tried {
		if seen[id] {
			t.Errorf("room %s tried twice in one match", id)
		}
		seen[id] = true
	}
}

func TestMatchReleasesStaleMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mm, _ := newMatchmaker(store, 0)

	first, err := mm.Match(ctx, "u1")
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	second, err := mm.Match(ctx, "u1")
	if err != nil {
		t.Fatalf("second Match() error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("second Match() returned the stale room")
	}
	rooms, err := store.RoomsOf(ctx, "u1")
	if err != nil {
		t.Fatalf("RoomsOf() error = %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != second.ID {
		t.Errorf("RoomsOf(u1) = %v, want only %s", rooms, second.ID)
	}
	old, _ := store.Get(ctx, first.ID)
	if old.Status != domain.StatusInactive {
		t.Errorf("stale room status = %s, want inactive", old.Status)
	}
}

func TestConcurrentMatchKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mm, _ := newMatchmaker(store, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mm.Match(ctx, domain.ClientID(fmt.Sprintf("c%d", i))); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Match() error = %v", err)
	}

	for i := range n {
		client := domain.ClientID(fmt.Sprintf("c%d", i))
		rooms, err := store.RoomsOf(ctx, client)
		if err != nil {
			t.Fatalf("RoomsOf() error = %v", err)
		}
		if len(rooms) != 1 {
			t.Errorf("client %s is in %d rooms, want 1", client, len(rooms))
		}
		for _, r := range rooms {
			if !r.Valid() {
				t.Errorf("room %+v breaks the status/size mapping", r)
			}
		}
	}
}

type failingStore struct {
	core.RoomStore
}

func (failingStore) RoomsOf(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	return nil, nil
}

func (failingStore) FindOneWaitingExcluding(ctx context.Context, client domain.ClientID, skip ...domain.RoomID) (domain.Room, error) {
	return domain.Room{}, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func TestMatchSurfacesStoreUnavailable(t *testing.T) {
	mm, _ := newMatchmaker(failingStore{}, 0)
	_, err := mm.Match(context.Background(), "u1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("Match() error = %v, want %v", err, domain.ErrStoreUnavailable)
	}
}
