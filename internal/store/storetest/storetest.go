// Package storetest runs the same behavioural checks against every
// core.RoomStore implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

type Factory func(t *testing.T) core.RoomStore

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s core.RoomStore)
	}{
		{"CreateIsWaiting", testCreate},
		{"GetMissing", testGetMissing},
		{"FindWaitingExcludesSelf", testFindExcludesSelf},
		{"FindWaitingSkips", testFindSkips},
		{"TryJoin", testTryJoin},
		{"TryJoinConflicts", testTryJoinConflicts},
		{"TryJoinRace", testTryJoinRace},
		{"LeaveTransitions", testLeaveTransitions},
		{"LeaveIdempotent", testLeaveIdempotent},
		{"SetStatus", testSetStatus},
		{"ListWaitingAndRoomsOf", testListAndRoomsOf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func assertRoom(t *testing.T, got domain.Room, status domain.Status, members ...domain.ClientID) {
	t.Helper()
	if got.Status != status {
		t.Errorf("status = %s, want %s", got.Status, status)
	}
	if !slices.Equal(got.Members, members) {
		t.Errorf("members = %v, want %v", got.Members, members)
	}
	if !got.Valid() {
		t.Errorf("room %+v violates status/size mapping", got)
	}
}

func testCreate(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, err := s.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("empty room id")
	}
	assertRoom(t, r, domain.StatusWaiting, "u1")

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertRoom(t, got, domain.StatusWaiting, "u1")
}

func testGetMissing(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := s.TryJoin(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("TryJoin err = %v, want ErrNotFound", err)
	}
	if _, err := s.Leave(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Leave err = %v, want ErrNotFound", err)
	}
	if _, err := s.SetStatus(ctx, "missing", domain.StatusWaiting); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SetStatus err = %v, want ErrNotFound", err)
	}
}

func testFindExcludesSelf(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	if _, err := s.FindOneWaitingExcluding(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty store err = %v, want ErrNotFound", err)
	}
	r, _ := s.Create(ctx, "u1")
	if _, err := s.FindOneWaitingExcluding(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("own room returned, err = %v", err)
	}
	got, err := s.FindOneWaitingExcluding(ctx, "u2")
	if err != nil {
		t.Fatalf("FindOneWaitingExcluding: %v", err)
	}
	if got.ID != r.ID {
		t.Errorf("room = %s, want %s", got.ID, r.ID)
	}
}

func testFindSkips(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r1, _ := s.Create(ctx, "u1")
	r2, _ := s.Create(ctx, "u2")
	got, err := s.FindOneWaitingExcluding(ctx, "u3", r1.ID)
	if err != nil {
		t.Fatalf("FindOneWaitingExcluding: %v", err)
	}
	if got.ID != r2.ID {
		t.Errorf("room = %s, want %s", got.ID, r2.ID)
	}
	if _, err := s.FindOneWaitingExcluding(ctx, "u3", r1.ID, r2.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func testTryJoin(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, _ := s.Create(ctx, "u1")
	got, err := s.TryJoin(ctx, r.ID, "u2")
	if err != nil {
		t.Fatalf("TryJoin: %v", err)
	}
	assertRoom(t, got, domain.StatusChatting, "u1", "u2")
	if _, err := s.FindOneWaitingExcluding(ctx, "u3"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("chatting room still matchable, err = %v", err)
	}
}

func testTryJoinConflicts(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	self, _ := s.Create(ctx, "u1")
	full, _ := s.Create(ctx, "u2")
	if _, err := s.TryJoin(ctx, full.ID, "u3"); err != nil {
		t.Fatalf("TryJoin: %v", err)
	}
	dead, _ := s.Create(ctx, "u4")
	if _, err := s.Leave(ctx, dead.ID, "u4"); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	tests := []struct {
		name   string
		room   domain.RoomID
		client domain.ClientID
	}{
		{"already member", self.ID, "u1"},
		{"full", full.ID, "u5"},
		{"inactive", dead.ID, "u5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := s.Get(ctx, tt.room)
			if _, err := s.TryJoin(ctx, tt.room, tt.client); !errors.Is(err, domain.ErrConflict) {
				t.Errorf("err = %v, want ErrConflict", err)
			}
			after, _ := s.Get(ctx, tt.room)
			assertRoom(t, after, before.Status, before.Members...)
		})
	}
}

func testTryJoinRace(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, _ := s.Create(ctx, "owner")

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []domain.ClientID
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func(id domain.ClientID) {
			defer wg.Done()
			_, err := s.TryJoin(ctx, r.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("TryJoin(%s): %v", id, err)
			}
		}(domain.ClientID(fmt.Sprintf("c%d", i)))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	if conflicts != n-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, n-1)
	}
	got, _ := s.Get(ctx, r.ID)
	assertRoom(t, got, domain.StatusChatting, "owner", winners[0])
}

func testLeaveTransitions(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, _ := s.Create(ctx, "u1")
	if _, err := s.TryJoin(ctx, r.ID, "u2"); err != nil {
		t.Fatalf("TryJoin: %v", err)
	}

	got, err := s.Leave(ctx, r.ID, "u1")
	if err != nil {
		t.Fatalf("Leave u1: %v", err)
	}
	assertRoom(t, got, domain.StatusWaiting, "u2")

	got, err = s.Leave(ctx, r.ID, "u2")
	if err != nil {
		t.Fatalf("Leave u2: %v", err)
	}
	assertRoom(t, got, domain.StatusInactive)

	if _, err := s.FindOneWaitingExcluding(ctx, "u3"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("inactive room matchable, err = %v", err)
	}
}

func testLeaveIdempotent(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, _ := s.Create(ctx, "u1")
	_, _ = s.TryJoin(ctx, r.ID, "u2")

	once, err := s.Leave(ctx, r.ID, "u2")
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	twice, err := s.Leave(ctx, r.ID, "u2")
	if err != nil {
		t.Fatalf("second Leave: %v", err)
	}
	assertRoom(t, twice, once.Status, once.Members...)

	absent, err := s.Leave(ctx, r.ID, "nobody")
	if err != nil {
		t.Fatalf("Leave absent: %v", err)
	}
	assertRoom(t, absent, domain.StatusWaiting, "u1")
}

func testSetStatus(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r, _ := s.Create(ctx, "u1")

	got, err := s.SetStatus(ctx, r.ID, domain.StatusWaiting)
	if err != nil {
		t.Fatalf("SetStatus waiting: %v", err)
	}
	assertRoom(t, got, domain.StatusWaiting, "u1")

	for _, st := range []domain.Status{domain.StatusChatting, domain.StatusInactive} {
		if _, err := s.SetStatus(ctx, r.ID, st); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("SetStatus(%s) err = %v, want ErrConflict", st, err)
		}
	}
	after, _ := s.Get(ctx, r.ID)
	assertRoom(t, after, domain.StatusWaiting, "u1")
}

func testListAndRoomsOf(t *testing.T, s core.RoomStore) {
	ctx := context.Background()
	r1, _ := s.Create(ctx, "u1")
	r2, _ := s.Create(ctx, "u2")
	_, _ = s.Create(ctx, "u3")
	_, _ = s.TryJoin(ctx, r2.ID, "u4")

	rooms, err := s.ListWaiting(ctx, "u3", 0)
	if err != nil {
		t.Fatalf("ListWaiting: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != r1.ID {
		t.Errorf("ListWaiting = %+v, want only %s", rooms, r1.ID)
	}

	mine, err := s.RoomsOf(ctx, "u4")
	if err != nil {
		t.Fatalf("RoomsOf: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != r2.ID {
		t.Errorf("RoomsOf = %+v, want only %s", mine, r2.ID)
	}

	_, _ = s.Leave(ctx, r1.ID, "u1")
	if gone, _ := s.RoomsOf(ctx, "u1"); len(gone) != 0 {
		t.Errorf("RoomsOf after leave = %+v, want none", gone)
	}
}
