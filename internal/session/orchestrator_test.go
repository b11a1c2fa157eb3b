package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

func TestFirstMemberWaitsForPeer(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	o := run(t, h.deps(nil))

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := o.State(); got != Paired {
		t.Fatalf("State() = %v, want %v", got, Paired)
	}
	if room, ok := o.Room(); !ok || room != "r1" {
		t.Errorf("Room() = %q, %v, want r1", room, ok)
	}

	h.messenger.current().events <- core.ChannelEvent{Kind: core.PeerJoined, From: "u2"}
	waitFor(t, "active", func() bool { return o.State() == Active })
}

func TestJoinerIsActiveImmediately(t *testing.T) {
	h := newHarness(chattingRoom("r1"))
	o := run(t, h.deps(nil))

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := o.State(); got != Active {
		t.Errorf("State() = %v, want %v", got, Active)
	}
	for _, call := range []string{"match", "messaging.join", "media.join"} {
		if !h.rec.has(call) {
			t.Errorf("missing call %q in %v", call, h.rec.list())
		}
	}
}

func TestTrackArrivalActivates(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	o := run(t, h.deps(nil))

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.media.current().events <- core.MediaEvent{Kind: core.TrackAdded, TrackID: "t1", Media: "audio"}
	waitFor(t, "active", func() bool { return o.State() == Active })
}

func TestInboundScreening(t *testing.T) {
	tests := []struct {
		name         string
		filter       core.ToxicityFilter
		want         string
		wantFiltered bool
	}{
		{name: "no filter", filter: nil, want: "hello", wantFiltered: false},
		{name: "clean", filter: fakeFilter{toxic: 0.1}, want: "hello", wantFiltered: false},
		{name: "at threshold", filter: fakeFilter{toxic: 0.5}, want: "hello", wantFiltered: false},
		{name: "toxic", filter: fakeFilter{toxic: 0.9}, want: domain.ToxicPlaceholder, wantFiltered: true},
		{name: "classifier down", filter: fakeFilter{err: errors.New("503")}, want: domain.UncheckedPlaceholder, wantFiltered: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(chattingRoom("r1"))
			o := run(t, h.deps(tt.filter))
			if err := o.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}

			h.messenger.current().events <- core.ChannelEvent{Kind: core.ChannelMessage, From: "u0", Text: "hello"}
			waitFor(t, "message", func() bool { return len(o.Messages()) == 1 })

			got := o.Messages()[0]
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
			if got.Filtered != tt.wantFiltered {
				t.Errorf("Filtered = %v, want %v", got.Filtered, tt.wantFiltered)
			}
			if got.From != "u0" {
				t.Errorf("From = %q, want u0", got.From)
			}
		})
	}
}

func TestOutboundNotScreened(t *testing.T) {
	h := newHarness(chattingRoom("r1"))
	o := run(t, h.deps(fakeFilter{toxic: 1}))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := o.Send(context.Background(), "rude words"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	msgs := o.Messages()
	if len(msgs) != 1 || msgs[0].Text != "rude words" || msgs[0].From != "u1" {
		t.Fatalf("Messages() = %+v, want one unfiltered outbound message", msgs)
	}
	ch := h.messenger.current()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.sent) != 1 || ch.sent[0] != "rude words" {
		t.Errorf("sent = %v, want [rude words]", ch.sent)
	}
}

func TestSendRequiresActive(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	o := run(t, h.deps(nil))

	if err := o.Send(context.Background(), "hi"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Send() from idle error = %v, want %v", err, ErrNotActive)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := o.Send(context.Background(), "hi"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Send() from paired error = %v, want %v", err, ErrNotActive)
	}
}

func TestNextTearsDownBeforeSearching(t *testing.T) {
	h := newHarness(chattingRoom("r1"), waitingRoom("r2"))
	o := run(t, h.deps(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.messenger.current().events <- core.ChannelEvent{Kind: core.ChannelMessage, From: "u0", Text: "hi"}
	waitFor(t, "message", func() bool { return len(o.Messages()) == 1 })

	if err := o.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if room, _ := o.Room(); room != "r2" {
		t.Errorf("Room() = %q, want r2", room)
	}
	if got := len(o.Messages()); got != 0 {
		t.Errorf("len(Messages()) = %d, want 0 after next", got)
	}

	calls := h.rec.list()
	start := -1
	for i, c := range calls {
		if c == "messaging.leave" {
			start = i
			break
		}
	}
	if start < 0 || start+3 >= len(calls) {
		t.Fatalf("calls = %v, want teardown then match", calls)
	}
	want := []string{"messaging.leave", "media.leave", "release:r1", "match"}
	for i, w := range want {
		if calls[start+i] != w {
			t.Fatalf("calls = %v, want %v starting at %d", calls, want, start)
		}
	}
}

func TestTeardownToleratesFailures(t *testing.T) {
	h := newHarness(chattingRoom("r1"))
	h.messenger.leaveErr = errors.New("channel gone")
	h.media.leaveErr = errors.New("media gone")
	o := run(t, h.deps(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := o.Stop(context.Background())
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Errorf("Stop() error = %v, want %v", err, domain.ErrCollaboratorUnavailable)
	}
	if !h.rec.has("release:r1") {
		t.Errorf("room not released, calls = %v", h.rec.list())
	}
	if got := o.State(); got != Idle {
		t.Errorf("State() = %v, want %v", got, Idle)
	}
	if _, ok := o.Room(); ok {
		t.Error("Room() still set after stop")
	}
}

func TestReleaseNotFoundIsClean(t *testing.T) {
	h := newHarness(chattingRoom("r1"))
	h.rooms.leaveErr = domain.ErrNotFound
	o := run(t, h.deps(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := o.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, want nil", err)
	}
}

func TestPeerLeftSearchesAgain(t *testing.T) {
	h := newHarness(chattingRoom("r1"), waitingRoom("r2"))
	o := run(t, h.deps(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.messenger.current().events <- core.ChannelEvent{Kind: core.PeerLeft, From: "u0"}
	waitFor(t, "second match", func() bool { return h.rooms.matchCount() == 2 })
	waitFor(t, "paired in r2", func() bool {
		room, _ := o.Room()
		return o.State() == Paired && room == "r2"
	})
	if !h.rec.has("release:r1") {
		t.Errorf("r1 not released, calls = %v", h.rec.list())
	}
}

func TestEstablishFailureForcesIdle(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	h.media.joinErr = errors.New("no ice")
	o := run(t, h.deps(nil))

	err := o.Start(context.Background())
	if !errors.Is(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("Start() error = %v, want %v", err, domain.ErrCollaboratorUnavailable)
	}
	if got := o.State(); got != Idle {
		t.Errorf("State() = %v, want %v", got, Idle)
	}
	for _, call := range []string{"messaging.leave", "release:r1"} {
		if !h.rec.has(call) {
			t.Errorf("missing cleanup %q, calls = %v", call, h.rec.list())
		}
	}
}

func TestMatchFailureSurfaces(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	h.rooms.matchErr = domain.ErrStoreUnavailable
	o := run(t, h.deps(nil))

	err := o.Start(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Start() error = %v, want %v", err, domain.ErrStoreUnavailable)
	}
	if got := o.State(); got != Idle {
		t.Errorf("State() = %v, want %v", got, Idle)
	}
	if h.rec.has("messaging.join") {
		t.Errorf("joined messaging without a room, calls = %v", h.rec.list())
	}
}

func TestChannelClosedForcesIdle(t *testing.T) {
	h := newHarness(chattingRoom("r1"))
	o := run(t, h.deps(nil))
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	close(h.messenger.current().events)
	waitFor(t, "idle", func() bool { return o.State() == Idle })
	waitFor(t, "release", func() bool { return h.rec.has("release:r1") })
}

func TestStopFromIdle(t *testing.T) {
	h := newHarness(waitingRoom("r1"))
	o := run(t, h.deps(nil))
	if err := o.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if h.rec.has("release:r1") {
		t.Error("released a room that was never matched")
	}
}
