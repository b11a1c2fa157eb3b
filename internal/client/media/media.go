// Package media is the media-transport client: one pion PeerConnection
// per pairing, negotiated over the server's media signalling socket.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/adapters/rtc"
	"github.com/dkeye/Roulette/internal/client"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

const (
	writeWait     = 10 * time.Second
	opusFrame     = 20 * time.Millisecond
	opusFrameTS   = 960
	opusPayload   = 111
	eventsBacklog = 16
)

// opusSilence is a single Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type Transport struct {
	ServerURL  string
	ICEServers []string
	Dialer     *websocket.Dialer
	// FeedSilence keeps the local audio track alive with silent frames
	// when there is no capture device.
	FeedSilence bool
}

var _ core.MediaTransport = (*Transport)(nil)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: media %s: %w", domain.ErrCollaboratorUnavailable, op, err)
}

func (t *Transport) Join(ctx context.Context, room domain.RoomID, id domain.ClientID, token string) (core.MediaSession, error) {
	u, err := client.WebSocketURL(t.ServerURL, "/api/ws/media", token)
	if err != nil {
		return nil, err
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, unavailable("dial", err)
	}

	pc, err := webrtc.NewPeerConnection(rtc.WebRTCConfig(t.ICEServers))
	if err != nil {
		_ = conn.Close()
		return nil, unavailable("peer connection", err)
	}
	s := newSession(conn, pc, room, id)

	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "roulette-"+string(id),
	)
	if err != nil {
		_ = s.Leave(ctx)
		return nil, unavailable("local track", err)
	}
	sender, err := pc.AddTrack(audio)
	if err != nil {
		_ = s.Leave(ctx)
		return nil, unavailable("add track", err)
	}
	s.local = []string{audio.ID()}
	go drainRTCP(sender)

	s.bind()
	go s.readPump()
	go s.writePump()

	if err := s.offer(); err != nil {
		_ = s.Leave(ctx)
		return nil, unavailable("offer", err)
	}

	select {
	case <-s.answered:
	case <-s.gone:
		_ = s.Leave(context.Background())
		return nil, unavailable("negotiate", errors.New("signalling closed before answer"))
	case <-ctx.Done():
		_ = s.Leave(context.Background())
		return nil, unavailable("negotiate", ctx.Err())
	}

	if t.FeedSilence {
		go s.feedSilence(audio)
	}
	log.Debug().Str("module", "client.media").Str("room", string(room)).Str("client", string(id)).Msg("media joined")
	return s, nil
}

// Session is one negotiated media connection.
type Session struct {
	conn   *websocket.Conn
	pc     *webrtc.PeerConnection
	room   domain.RoomID
	client domain.ClientID
	local  []string

	outgoing   chan []byte
	done       chan struct{}
	once       sync.Once
	answered   chan struct{}
	answerOnce sync.Once
	// gone is closed when the signalling socket stops reading.
	gone chan struct{}

	// negotiation serialises SDP work on pc.
	negotiation sync.Mutex

	mu      sync.Mutex
	closed  bool
	pending []webrtc.ICECandidateInit
	events  chan core.MediaEvent
}

func newSession(conn *websocket.Conn, pc *webrtc.PeerConnection, room domain.RoomID, id domain.ClientID) *Session {
	return &Session{
		conn:     conn,
		pc:       pc,
		room:     room,
		client:   id,
		outgoing: make(chan []byte, 32),
		done:     make(chan struct{}),
		answered: make(chan struct{}),
		gone:     make(chan struct{}),
		events:   make(chan core.MediaEvent, eventsBacklog),
	}
}

func (s *Session) LocalTracks() []string { return s.local }

func (s *Session) Events() <-chan core.MediaEvent { return s.events }

func (s *Session) Leave(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = s.conn.Close()
		if cerr := s.pc.Close(); cerr != nil {
			err = unavailable("close", cerr)
		}
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return err
}

func (s *Session) emit(ev core.MediaEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Warn().Str("module", "client.media").Msg("media event dropped")
	}
}

func (s *Session) leaving() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) bind() {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		ci := c.ToJSON()
		s.send(wire.Candidate{Type: wire.TypeCandidate, Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex})
	})
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		id := track.ID()
		kind := track.Kind().String()
		s.emit(core.MediaEvent{Kind: core.TrackAdded, TrackID: id, Media: kind})
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					s.emit(core.MediaEvent{Kind: core.TrackRemoved, TrackID: id, Media: kind})
					return
				}
			}
		}()
	})
	s.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Debug().Str("module", "client.media").Str("state", st.String()).Msg("peer state")
		if st == webrtc.PeerConnectionStateFailed && !s.leaving() {
			s.emit(core.MediaEvent{Kind: core.MediaClosed})
		}
	})
}

func (s *Session) send(v any) {
	b, err := wire.Encode(v)
	if err != nil {
		return
	}
	select {
	case s.outgoing <- b:
	case <-s.done:
	}
}

func (s *Session) offer() error {
	s.negotiation.Lock()
	defer s.negotiation.Unlock()
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	s.send(wire.SDP{Type: wire.TypeOffer, SDP: offer.SDP})
	return nil
}

func (s *Session) onAnswer(sdp string) error {
	s.negotiation.Lock()
	defer s.negotiation.Unlock()
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return err
	}
	s.flushCandidates()
	s.answerOnce.Do(func() { close(s.answered) })
	return nil
}

// onOffer answers a renegotiation started by the server, which happens
// whenever the peer's tracks are added to this connection.
func (s *Session) onOffer(sdp string) error {
	s.negotiation.Lock()
	defer s.negotiation.Unlock()
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	s.flushCandidates()
	s.send(wire.SDP{Type: wire.TypeAnswer, SDP: answer.SDP})
	return nil
}

func (s *Session) onCandidate(ci webrtc.ICECandidateInit) error {
	if s.pc.RemoteDescription() == nil {
		s.mu.Lock()
		s.pending = append(s.pending, ci)
		s.mu.Unlock()
		return nil
	}
	return s.pc.AddICECandidate(ci)
}

func (s *Session) flushCandidates() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ci := range pending {
		if err := s.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "client.media").Msg("add buffered candidate")
		}
	}
}

func (s *Session) readPump() {
	defer close(s.gone)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.leaving() {
				log.Warn().Err(err).Str("module", "client.media").Msg("signalling read failed")
				s.emit(core.MediaEvent{Kind: core.MediaClosed})
			}
			return
		}
		if err := s.handle(data); err != nil {
			log.Warn().Err(err).Str("module", "client.media").Msg("signalling frame")
		}
	}
}

func (s *Session) handle(data []byte) error {
	typ, err := wire.TypeOf(data)
	if err != nil {
		return err
	}
	switch typ {
	case wire.TypeAnswer, wire.TypeOffer:
		var p wire.SDP
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if typ == wire.TypeAnswer {
			return s.onAnswer(p.SDP)
		}
		return s.onOffer(p.SDP)
	case wire.TypeCandidate:
		var p wire.Candidate
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		return s.onCandidate(webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMid: p.SDPMid, SDPMLineIndex: p.SDPMLineIndex})
	case wire.TypeError:
		var e wire.Error
		_ = json.Unmarshal(data, &e)
		return fmt.Errorf("server error: %s", e.Error)
	}
	return nil
}

func (s *Session) writePump() {
	for {
		select {
		case b := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) feedSilence(track *webrtc.TrackLocalStaticRTP) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayload,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		Payload: opusSilence,
	}
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := track.WriteRTP(pkt); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return
				}
				log.Debug().Err(err).Str("module", "client.media").Msg("write silence")
			}
			pkt.SequenceNumber++
			pkt.Timestamp += opusFrameTS
		}
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
