package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/Roulette/internal/domain"
)

type recordingWriter struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (w *recordingWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.seqs = append(w.seqs, p.SequenceNumber)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seqs)
}

func feed() (ReadFunc, chan *rtp.Packet) {
	ch := make(chan *rtp.Packet)
	return func() (*rtp.Packet, error) {
		p, ok := <-ch
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	}, ch
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_ForwardsToSubscribers(t *testing.T) {
	m := NewRelayManager()
	read, ch := feed()
	relay := m.start(context.Background(), "u1", "video-1", "video", read)
	defer close(ch)

	w := &recordingWriter{}
	relay.AddOutTrack("u2", NewOutTrack(w, nil))

	ch <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}
	ch <- &rtp.Packet{Header: rtp.Header{SequenceNumber: 2}}
	waitFor(t, func() bool { return w.count() == 2 })

	if !m.HasRelay("u1") {
		t.Error("HasRelay(u1) = false, want true")
	}
}

func TestRelay_MutedAndDeleted(t *testing.T) {
	m := NewRelayManager()
	read, ch := feed()
	relay := m.start(context.Background(), "u1", "audio-1", "audio", read)
	defer close(ch)

	muted := NewOutTrack(&recordingWriter{}, nil)
	muted.MarkMuted()
	relay.AddOutTrack("muted", muted)

	live := &recordingWriter{}
	relay.AddOutTrack("u2", NewOutTrack(live, nil))

	m.MarkSubscriberDelete("u1", "u2")
	ch <- &rtp.Packet{}
	ch <- &rtp.Packet{}

	if _, ok := relay.outTrack("u2"); ok {
		t.Error("deleted out track still attached")
	}
	if live.count() != 0 {
		t.Errorf("deleted subscriber got %d packets, want 0", live.count())
	}
	if muted.Writer.(*recordingWriter).count() != 0 {
		t.Error("muted subscriber got packets")
	}
}

func TestRelay_WriteErrorDropsSubscriber(t *testing.T) {
	m := NewRelayManager()
	read, ch := feed()
	relay := m.start(context.Background(), "u1", "video-1", "video", read)
	defer close(ch)

	relay.AddOutTrack("u2", NewOutTrack(&recordingWriter{err: errors.New("closed pipe")}, nil))
	ch <- &rtp.Packet{}
	ch <- &rtp.Packet{}

	if _, ok := relay.outTrack("u2"); ok {
		t.Error("failing out track still attached")
	}
}

func TestRelayManager_StopRelays(t *testing.T) {
	m := NewRelayManager()
	read, ch := feed()
	relay := m.start(context.Background(), domain.ClientID("u1"), "video-1", "video", read)
	ot := NewOutTrack(&recordingWriter{}, nil)
	relay.AddOutTrack("u2", ot)

	m.StopRelays("u1")
	close(ch)

	if m.HasRelay("u1") {
		t.Error("HasRelay(u1) = true after StopRelays")
	}
	if ot.GetState() != TrackStateDelete {
		t.Errorf("state = %d, want TrackStateDelete", ot.GetState())
	}
}
