package sfu

import (
	"context"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// RelayManager owns the relays of every publishing member, keyed by
// member and source track id.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ClientID]map[string]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ClientID]map[string]*Relay),
	}
}

// StartRelay creates a relay for a remote track published by src and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, src domain.ClientID, track *webrtc.TrackRemote) *Relay {
	read := func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}
	relay := m.start(ctx, src, track.ID(), track.Kind().String(), read)
	relay.Codec = track.Codec().RTPCodecCapability
	return relay
}

func (m *RelayManager) start(ctx context.Context, src domain.ClientID, trackID, kind string, read ReadFunc) *Relay {
	logger := log.With().
		Str("module", "relay").
		Str("src", string(src)).
		Str("track", trackID).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(trackID, kind, read, cancel)

	m.mu.Lock()
	byTrack, ok := m.relays[src]
	if !ok {
		byTrack = make(map[string]*Relay)
		m.relays[src] = byTrack
	}
	if old, ok := byTrack[trackID]; ok {
		logger.Info().Msg("replacing existing relay for track")
		old.markAllDelete()
		old.cancel()
	}
	byTrack[trackID] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	go relay.loop(relayCtx, &logger)
	return relay
}

func (m *RelayManager) sources(src domain.ClientID) []*Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Relay, 0, len(m.relays[src]))
	for _, r := range m.relays[src] {
		out = append(out, r)
	}
	return out
}

// Subscribe forwards every track src publishes to dst's connection.
// It returns how many new out tracks were attached; the caller
// renegotiates when that is non-zero.
func (m *RelayManager) Subscribe(src, dst domain.ClientID, mc core.MediaConnection) (int, error) {
	added := 0
	for _, relay := range m.sources(src) {
		if ot, ok := relay.outTrack(dst); ok && ot.GetState() != TrackStateDelete {
			continue
		}
		local, err := webrtc.NewTrackLocalStaticRTP(relay.Codec, relay.TrackID, string(src))
		if err != nil {
			return added, err
		}
		sender, err := mc.AddLocalTrack(local)
		if err != nil {
			return added, err
		}
		go drainRTCP(sender)
		relay.AddOutTrack(dst, NewOutTrack(local, sender))
		added++
	}
	return added, nil
}

// Read incoming RTCP so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// MarkSubscriberDelete stops forwarding src's tracks to dst.
func (m *RelayManager) MarkSubscriberDelete(src, dst domain.ClientID) {
	for _, relay := range m.sources(src) {
		if ot, ok := relay.outTrack(dst); ok {
			ot.MarkDelete()
		}
	}
}

// StopRelays stops every relay of src and removes them from the manager.
func (m *RelayManager) StopRelays(src domain.ClientID) {
	m.mu.Lock()
	byTrack, ok := m.relays[src]
	delete(m.relays, src)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, relay := range byTrack {
		relay.markAllDelete()
		relay.cancel()
	}
}

// HasRelay reports whether src publishes anything.
func (m *RelayManager) HasRelay(src domain.ClientID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays[src]) > 0
}
