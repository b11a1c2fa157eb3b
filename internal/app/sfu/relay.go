package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/Roulette/internal/domain"
)

// ReadFunc yields the next packet of a source track.
type ReadFunc func() (*rtp.Packet, error)

// Relay forwards one source track of a member to its room mate.
type Relay struct {
	TrackID string
	Kind    string
	Codec   webrtc.RTPCodecCapability
	read    ReadFunc

	mu        sync.RWMutex
	outTracks map[domain.ClientID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(trackID, kind string, read ReadFunc, cancel context.CancelFunc) *Relay {
	return &Relay{
		TrackID:   trackID,
		Kind:      kind,
		read:      read,
		outTracks: make(map[domain.ClientID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.read()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]domain.ClientID, 0, len(snapshot))
	for dst, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Writer.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst", string(dst)).
					Msg("relay write RTP error, marking out track as delete")
				ot.MarkDelete()
				dirty = append(dirty, dst)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dst := range dirty {
		if ot, ok := r.outTracks[dst]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, dst)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddOutTrack(dst domain.ClientID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[dst] = ot
}

func (r *Relay) outTrack(dst domain.ClientID) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[dst]
	return ot, ok
}
