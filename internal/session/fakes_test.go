package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) has(call string) bool {
	for _, c := range r.list() {
		if c == call {
			return true
		}
	}
	return false
}

type fakeRooms struct {
	rec *recorder

	mu       sync.Mutex
	rooms    []domain.Room
	matches  int
	matchErr error
	leaveErr error
}

func (f *fakeRooms) Match(ctx context.Context, client domain.ClientID) (core.Assignment, error) {
	f.rec.add("match")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.matchErr != nil {
		return core.Assignment{}, f.matchErr
	}
	i := f.matches
	if i >= len(f.rooms) {
		i = len(f.rooms) - 1
	}
	f.matches++
	return core.Assignment{Room: f.rooms[i], RTCToken: "rtc", RTMToken: "rtm"}, nil
}

func (f *fakeRooms) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches
}

func (f *fakeRooms) Search(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	return nil, nil
}

func (f *fakeRooms) Join(ctx context.Context, room domain.RoomID, client domain.ClientID) (core.Assignment, error) {
	return core.Assignment{}, domain.ErrConflict
}

func (f *fakeRooms) Leave(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.Room, error) {
	f.rec.add("release:" + string(room))
	return domain.Room{}, f.leaveErr
}

func (f *fakeRooms) SetStatus(ctx context.Context, room domain.RoomID, status domain.Status) (domain.Room, error) {
	return domain.Room{}, nil
}

type fakeChannel struct {
	rec      *recorder
	events   chan core.ChannelEvent
	leaveErr error

	mu   sync.Mutex
	sent []string
}

func (c *fakeChannel) Events() <-chan core.ChannelEvent { return c.events }

func (c *fakeChannel) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeChannel) Leave(ctx context.Context) error {
	c.rec.add("messaging.leave")
	return c.leaveErr
}

type fakeMessenger struct {
	rec      *recorder
	joinErr  error
	leaveErr error

	mu   sync.Mutex
	last *fakeChannel
}

func (m *fakeMessenger) Join(ctx context.Context, room domain.RoomID, client domain.ClientID, token string) (core.Channel, error) {
	m.rec.add("messaging.join")
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	ch := &fakeChannel{rec: m.rec, events: make(chan core.ChannelEvent, 8), leaveErr: m.leaveErr}
	m.mu.Lock()
	m.last = ch
	m.mu.Unlock()
	return ch, nil
}

func (m *fakeMessenger) current() *fakeChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type fakeMediaSession struct {
	rec      *recorder
	events   chan core.MediaEvent
	leaveErr error
}

func (s *fakeMediaSession) LocalTracks() []string          { return []string{"audio", "video"} }
func (s *fakeMediaSession) Events() <-chan core.MediaEvent { return s.events }

func (s *fakeMediaSession) Leave(ctx context.Context) error {
	s.rec.add("media.leave")
	return s.leaveErr
}

type fakeMedia struct {
	rec      *recorder
	joinErr  error
	leaveErr error

	mu   sync.Mutex
	last *fakeMediaSession
}

func (m *fakeMedia) Join(ctx context.Context, room domain.RoomID, client domain.ClientID, token string) (core.MediaSession, error) {
	m.rec.add("media.join")
	if m.joinErr != nil {
		return nil, m.joinErr
	}
	s := &fakeMediaSession{rec: m.rec, events: make(chan core.MediaEvent, 8), leaveErr: m.leaveErr}
	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
	return s, nil
}

func (m *fakeMedia) current() *fakeMediaSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type fakeFilter struct {
	toxic float64
	err   error
}

func (f fakeFilter) Classify(ctx context.Context, text string) ([]core.LabelScore, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.LabelScore{
		{Label: "neutral", Score: 1 - f.toxic},
		{Label: "toxic", Score: f.toxic},
	}, nil
}

type harness struct {
	rec       *recorder
	rooms     *fakeRooms
	messenger *fakeMessenger
	media     *fakeMedia
}

func newHarness(rooms ...domain.Room) *harness {
	rec := &recorder{}
	return &harness{
		rec:       rec,
		rooms:     &fakeRooms{rec: rec, rooms: rooms},
		messenger: &fakeMessenger{rec: rec},
		media:     &fakeMedia{rec: rec},
	}
}

func (h *harness) deps(filter core.ToxicityFilter) Deps {
	return Deps{Rooms: h.rooms, Media: h.media, Messenger: h.messenger, Filter: filter}
}

func run(t *testing.T, deps Deps) *Orchestrator {
	t.Helper()
	o := New("u1", deps)
	ctx, cancel := context.WithCancel(context.Background())
	go o.Run(ctx)
	t.Cleanup(cancel)
	return o
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitingRoom(id domain.RoomID) domain.Room {
	return domain.Room{ID: id, Status: domain.StatusWaiting, Members: []domain.ClientID{"u1"}}
}

func chattingRoom(id domain.RoomID) domain.Room {
	return domain.Room{ID: id, Status: domain.StatusChatting, Members: []domain.ClientID{"u0", "u1"}}
}
