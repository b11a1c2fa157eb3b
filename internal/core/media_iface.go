package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the server-side end of a member's media transport.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer completes a server-initiated renegotiation.
	ApplyAnswer(webrtc.SessionDescription) error
	// Renegotiate creates a new local offer and hands it to the OnLocalOffer callback.
	Renegotiate() error
	OnLocalOffer(func(webrtc.SessionDescription))
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local static RTP track to the underlying PeerConnection.
	AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error)
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
