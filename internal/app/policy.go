package app

import "github.com/dkeye/Roulette/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(ch core.ChannelService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks a member whose send buffer is full. A kicked member
// sees its channel close and tears its pairing down.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(ch core.ChannelService, member core.MemberSession) BackpressureAction {
	return KickMember
}
