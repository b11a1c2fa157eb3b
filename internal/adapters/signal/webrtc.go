package signal

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/adapters/rtc"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

// mediaSession is the state of one media signalling socket.
type mediaSession struct {
	client domain.ClientID
	room   domain.RoomID
	conn   *wsSignalConn

	mu sync.Mutex
	wc *rtc.WebRTCConnection
}

func (ms *mediaSession) peer() *rtc.WebRTCConnection {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.wc
}

func (ms *mediaSession) close() {
	ms.mu.Lock()
	wc := ms.wc
	ms.wc = nil
	ms.mu.Unlock()
	if wc != nil {
		wc.Close()
	}
}

func (ctl *SignalWSController) handleMedia(ctx context.Context, ms *mediaSession, data []byte) {
	typ, err := wire.TypeOf(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch typ {
	case wire.TypeOffer:
		ctl.handleOffer(ctx, ms, data)
	case wire.TypeAnswer:
		ctl.handleAnswer(ms, data)
	case wire.TypeCandidate:
		ctl.handleCandidate(ms, data)
	case wire.TypePing:
		ctl.handlePing(ms.conn)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown media frame")
	}
}

func (ctl *SignalWSController) sendCandidate(c *wsSignalConn, ci webrtc.ICECandidateInit) {
	ctl.sendJSON(c, wire.Candidate{
		Type:          wire.TypeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

func (ctl *SignalWSController) handleOffer(ctx context.Context, ms *mediaSession, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}

	// A repeated offer on an established connection is a client-side
	// renegotiation.
	if wc := ms.peer(); wc != nil && !wc.IsClosed() {
		ctl.answer(ms, wc, p.SDP)
		return
	}

	wc, err := rtc.NewWebRTCConnection(rtc.WebRTCConfig(ctl.ICEServers), ms.client)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		return
	}
	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(ms.conn, ci)
	})
	wc.OnLocalOffer(func(sd webrtc.SessionDescription) {
		ctl.sendJSON(ms.conn, wire.SDP{Type: wire.TypeOffer, SDP: sd.SDP})
	})

	ctl.Orch.AttachMedia(ms.client, ms.room, wc)
	if err := wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}

	ms.mu.Lock()
	ms.wc = wc
	ms.mu.Unlock()

	if ctl.answer(ms, wc, p.SDP) {
		ctl.Orch.OnMediaReady(ms.client)
	}
}

func (ctl *SignalWSController) answer(ms *mediaSession, wc *rtc.WebRTCConnection, sdp string) bool {
	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("client", string(ms.client)).Msg("webrtc apply offer")
		return false
	}
	ctl.sendJSON(ms.conn, wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
	return true
}

func (ctl *SignalWSController) handleAnswer(ms *mediaSession, data []byte) {
	var p wire.SDP
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	wc := ms.peer()
	if wc == nil {
		log.Warn().Str("module", "signal").Str("client", string(ms.client)).Msg("answer without peer connection")
		return
	}
	if err := wc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc apply answer")
	}
}

func (ctl *SignalWSController) handleCandidate(ms *mediaSession, data []byte) {
	var p wire.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	wc := ms.peer()
	if wc == nil {
		return
	}
	ci := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := wc.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc add candidate")
	}
}
