// Package wire defines the JSON frames exchanged on the messaging
// channel and the media signalling socket. Server and client share it.
package wire

import (
	"encoding/json"

	"github.com/dkeye/Roulette/internal/domain"
)

const (
	TypeMessage    = "message"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"

	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Envelope is decoded first to dispatch on Type.
type Envelope struct {
	Type string `json:"type"`
}

type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	From domain.ClientID `json:"from,omitempty"`
	Text string          `json:"text"`
}

type Peer struct {
	Type   string          `json:"type"`
	Client domain.ClientID `json:"client"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Candidate struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func TypeOf(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
