package core

import (
	"github.com/dkeye/Roulette/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// ChannelService is the live messaging channel of one room.
// It owns the connected set but never touches transport resources.
type ChannelService interface {
	Room() domain.RoomID
	MemberCount() int
	Members() []domain.ClientID

	// AddMember returns the members that were already connected.
	AddMember(ms MemberSession) []MemberSession
	RemoveMember(client domain.ClientID) (MemberSession, bool)
	Broadcast(from domain.ClientID, data Frame) PublishResult
	Session(client domain.ClientID) (MemberSession, bool)
}

type ChannelInfo struct {
	Room        domain.RoomID `json:"room"`
	MemberCount int           `json:"member_count"`
}

type ChannelManager interface {
	GetOrCreate(room domain.RoomID) ChannelService
	Get(room domain.RoomID) (ChannelService, bool)
	List() []ChannelInfo
	StopChannel(room domain.RoomID)
}
