package core

import (
	"sync"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	room     domain.RoomID
	mu       sync.RWMutex
	byClient map[domain.ClientID]MemberSession
}

func NewChannelService(room domain.RoomID) ChannelService {
	return &channelImpl{
		room:     room,
		byClient: make(map[domain.ClientID]MemberSession),
	}
}

func (c *channelImpl) Room() domain.RoomID { return c.room }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byClient)
}

func (c *channelImpl) Members() []domain.ClientID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ClientID, 0, len(c.byClient))
	for id := range c.byClient {
		out = append(out, id)
	}
	return out
}

func (c *channelImpl) AddMember(ms MemberSession) []MemberSession {
	id := ms.Client()
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := make([]MemberSession, 0, len(c.byClient))
	for other, s := range c.byClient {
		if other != id {
			existing = append(existing, s)
		}
	}
	c.byClient[id] = ms
	log.Info().Str("module", "core.channel").Str("room", string(c.room)).Str("client", string(id)).Msg("member added")
	return existing
}

func (c *channelImpl) RemoveMember(id domain.ClientID) (MemberSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms, ok := c.byClient[id]
	if !ok {
		return nil, false
	}
	delete(c.byClient, id)
	log.Info().Str("module", "core.channel").Str("room", string(c.room)).Str("client", string(id)).Msg("member removed")
	return ms, true
}

func (c *channelImpl) Session(id domain.ClientID) (MemberSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms, ok := c.byClient[id]
	return ms, ok
}

func (c *channelImpl) Broadcast(from domain.ClientID, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for id, m := range c.byClient {
		if id == from {
			continue
		}
		sc := m.Signal()
		if sc == nil {
			continue
		}
		if err := sc.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.channel").Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
