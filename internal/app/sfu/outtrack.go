package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// RTPWriter is the part of *webrtc.TrackLocalStaticRTP a relay writes to.
type RTPWriter interface {
	WriteRTP(*rtp.Packet) error
}

// OutTrack is one forwarded copy of a source track for a subscriber.
type OutTrack struct {
	Writer RTPWriter
	// Sender is nil when the writer is not attached to a PeerConnection.
	Sender *webrtc.RTPSender
	state  atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(w RTPWriter, sender *webrtc.RTPSender) *OutTrack {
	return &OutTrack{Writer: w, Sender: sender}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.Store(int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.Store(int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
