package app

import (
	"sync"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// ChannelManagerImpl keeps the live messaging channels, one per room
// that has at least one connected member.
type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[domain.RoomID]core.ChannelService
}

func NewChannelManager() core.ChannelManager {
	return &ChannelManagerImpl{channels: make(map[domain.RoomID]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(room domain.RoomID) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[room]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[room]; ok {
		return ch
	}
	ch = core.NewChannelService(room)
	f.channels[room] = ch
	return ch
}

func (f *ChannelManagerImpl) Get(room domain.RoomID) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[room]
	return ch, ok
}

func (f *ChannelManagerImpl) List() []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0, len(f.channels))
	for room, ch := range f.channels {
		out = append(out, core.ChannelInfo{Room: room, MemberCount: ch.MemberCount()})
	}
	return out
}

func (f *ChannelManagerImpl) StopChannel(room domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, room)
}
