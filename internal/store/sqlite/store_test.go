package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.RoomStore {
		dsn := "file:" + filepath.Join(t.TempDir(), "rooms.db") + "?_busy_timeout=5000"
		s, err := Open(context.Background(), dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestOpenBadPath(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "missing", "dir", "rooms.db")
	if _, err := Open(context.Background(), dsn); err == nil {
		t.Fatal("expected error opening database in a missing directory")
	}
}
