package roomapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	router "github.com/dkeye/Roulette/internal/adapters/http"
	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/store/memory"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	lc := app.NewLifecycle(store)
	h := &router.RoomHandlers{
		Matchmaker: app.NewMatchmaker(store, lc, app.DefaultMatchRetries),
		Lifecycle:  lc,
		Tokens:     app.NewTokenIssuer("secret", time.Minute),
	}
	cfg := &config.Config{Mode: "test", Secret: "secret"}
	srv := httptest.NewServer(router.SetupRouter(context.Background(), cfg, h, nil))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestPairingLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	first, err := c.Match(ctx, "u1")
	if err != nil {
		t.Fatalf("Match(u1) error = %v", err)
	}
	if first.Room.Status != domain.StatusWaiting || first.RTCToken == "" || first.RTMToken == "" {
		t.Fatalf("Match(u1) = %+v, want waiting room with tokens", first)
	}

	rooms, err := c.Search(ctx, "u2")
	if err != nil || len(rooms) != 1 || rooms[0].ID != first.Room.ID {
		t.Fatalf("Search(u2) = %v, %v, want [%s]", rooms, err, first.Room.ID)
	}
	if own, _ := c.Search(ctx, "u1"); len(own) != 0 {
		t.Errorf("Search(u1) = %v, want own room excluded", own)
	}

	second, err := c.Match(ctx, "u2")
	if err != nil {
		t.Fatalf("Match(u2) error = %v", err)
	}
	if second.Room.ID != first.Room.ID || second.Room.Status != domain.StatusChatting {
		t.Fatalf("Match(u2) = %+v, want chatting %s", second.Room, first.Room.ID)
	}

	room, err := c.Leave(ctx, first.Room.ID, "u1")
	if err != nil {
		t.Fatalf("Leave(u1) error = %v", err)
	}
	if room.Status != domain.StatusWaiting || len(room.Members) != 1 || room.Members[0] != "u2" {
		t.Errorf("after Leave(u1) room = %+v, want waiting [u2]", room)
	}

	room, err = c.Leave(ctx, first.Room.ID, "u2")
	if err != nil {
		t.Fatalf("Leave(u2) error = %v", err)
	}
	if room.Status != domain.StatusInactive || len(room.Members) != 0 {
		t.Errorf("after Leave(u2) room = %+v, want inactive []", room)
	}

	third, err := c.Match(ctx, "u3")
	if err != nil {
		t.Fatalf("Match(u3) error = %v", err)
	}
	if third.Room.ID == first.Room.ID {
		t.Error("Match(u3) resurrected an inactive room")
	}
}

func TestErrorMapping(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want %v", err, domain.ErrNotFound)
	}
	if _, err := c.Leave(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Leave(missing) error = %v, want %v", err, domain.ErrNotFound)
	}

	as, err := c.Match(ctx, "u1")
	if err != nil {
		t.Fatalf("Match(u1) error = %v", err)
	}
	if _, err := c.Join(ctx, as.Room.ID, "u1"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Join(self) error = %v, want %v", err, domain.ErrConflict)
	}
	if _, err := c.SetStatus(ctx, as.Room.ID, domain.StatusChatting); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("SetStatus(chatting) with one member error = %v, want %v", err, domain.ErrConflict)
	}
	if _, err := c.SetStatus(ctx, as.Room.ID, "bogus"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Errorf("SetStatus(bogus) error = %v, want %v", err, domain.ErrInvalidStatus)
	}

	joined, err := c.Join(ctx, as.Room.ID, "u2")
	if err != nil {
		t.Fatalf("Join(u2) error = %v", err)
	}
	if joined.RTMToken == "" {
		t.Error("Join(u2) returned no messaging token")
	}
	if _, err := c.Join(ctx, as.Room.ID, "u3"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Join(full) error = %v, want %v", err, domain.ErrConflict)
	}
}

func TestUnreachableServer(t *testing.T) {
	c, err := New("http://127.0.0.1:1", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Match(context.Background(), "u1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("Match() error = %v, want %v", err, domain.ErrStoreUnavailable)
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable() = false for an unreachable server")
	}
}
