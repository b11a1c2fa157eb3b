package core

import (
	"context"

	"github.com/dkeye/Roulette/internal/domain"
)

// Client-side collaborators consumed by the session orchestrator.

// Assignment is what the matchmaking surface hands back: the room plus
// the tokens the media and messaging endpoints accept for it.
type Assignment struct {
	Room     domain.Room `json:"-"`
	RTCToken string      `json:"rtcToken"`
	RTMToken string      `json:"rtmToken"`
}

type RoomAPI interface {
	// Match finds a waiting room and joins it, or creates a new one.
	Match(ctx context.Context, client domain.ClientID) (Assignment, error)
	Search(ctx context.Context, client domain.ClientID) ([]domain.Room, error)
	Join(ctx context.Context, room domain.RoomID, client domain.ClientID) (Assignment, error)
	Leave(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.Room, error)
	SetStatus(ctx context.Context, room domain.RoomID, status domain.Status) (domain.Room, error)
}

type MediaEventKind int

const (
	TrackAdded MediaEventKind = iota
	TrackRemoved
	MediaClosed
)

type MediaEvent struct {
	Kind    MediaEventKind
	TrackID string
	// Media is "audio" or "video".
	Media string
}

// MediaTransport joins the audio/video call of a room.
type MediaTransport interface {
	Join(ctx context.Context, room domain.RoomID, client domain.ClientID, token string) (MediaSession, error)
}

type MediaSession interface {
	LocalTracks() []string
	// Events is closed once the session ends.
	Events() <-chan MediaEvent
	Leave(ctx context.Context) error
}

type ChannelEventKind int

const (
	ChannelMessage ChannelEventKind = iota
	PeerJoined
	PeerLeft
	ChannelClosed
)

type ChannelEvent struct {
	Kind ChannelEventKind
	From domain.ClientID
	Text string
}

// Messenger joins the text channel of a room.
type Messenger interface {
	Join(ctx context.Context, room domain.RoomID, client domain.ClientID, token string) (Channel, error)
}

type Channel interface {
	// Events is closed once the channel ends.
	Events() <-chan ChannelEvent
	Send(ctx context.Context, text string) error
	Leave(ctx context.Context) error
}

type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type ToxicityFilter interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}
