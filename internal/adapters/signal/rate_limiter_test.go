package signal

import (
	"testing"
	"time"
)

func TestRoomRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("first two messages rejected")
	}
	if rl.Allow("u1") {
		t.Error("third message in window allowed")
	}
	if !rl.Allow("u2") {
		t.Error("limit leaked across clients")
	}

	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("u1") {
		t.Error("message after window rejected")
	}

	rl.Allow("u1")
	rl.Forget("u1")
	if !rl.Allow("u1") {
		t.Error("history kept after Forget")
	}
}
