package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

var ErrChannelFull = errors.New("channel full")

// AttachSignal joins client's messaging connection to the channel of
// room. When a second member arrives both sides get peer_joined, which is
// how the first member learns it has been paired.
func (o *Orchestrator) AttachSignal(client domain.ClientID, room domain.RoomID, sc core.SignalConnection) error {
	ch := o.Channels.GetOrCreate(room)
	if _, already := ch.Session(client); !already && ch.MemberCount() >= domain.RoomCapacity {
		return ErrChannelFull
	}

	sess, prev := o.Registry.Bind(client, room)
	if prev != nil {
		log.Info().Str("module", "orch").Str("client", string(client)).Str("from_room", string(prev.Room())).Msg("kicked from previous room")
		o.kickSession(prev)
	}
	if old := sess.Signal(); old != nil && old != sc {
		old.Close()
	}
	sess.UpdateSignal(sc)

	for _, other := range ch.AddMember(sess) {
		o.send(other.Signal(), wire.Peer{Type: wire.TypePeerJoined, Client: client})
		o.send(sc, wire.Peer{Type: wire.TypePeerJoined, Client: other.Client()})
	}
	log.Info().Str("module", "orch").Str("client", string(client)).Str("room", string(room)).Msg("channel joined")
	return nil
}

// DetachSignal runs when a messaging connection ends. Stale connections
// that were already replaced are ignored.
func (o *Orchestrator) DetachSignal(client domain.ClientID, sc core.SignalConnection) {
	room, sess, ok := o.Registry.RoomOf(client)
	if !ok || sess.Signal() != sc {
		return
	}
	sess.UpdateSignal(nil)
	o.leaveChannel(client, room)
	if sess.Media() == nil {
		o.Registry.Unbind(client, sess)
	}
	o.releaseMembership(room, client)
}

func (o *Orchestrator) leaveChannel(client domain.ClientID, room domain.RoomID) {
	ch, ok := o.Channels.Get(room)
	if !ok {
		return
	}
	if _, removed := ch.RemoveMember(client); !removed {
		return
	}
	ch.Broadcast(client, mustEncode(wire.Peer{Type: wire.TypePeerLeft, Client: client}))
	if ch.MemberCount() == 0 {
		o.Channels.StopChannel(room)
	}
}

func mustEncode(v any) core.Frame {
	b, err := wire.Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

// KickClient drops every live resource of client: media, channel
// membership and the messaging connection itself.
func (o *Orchestrator) KickClient(client domain.ClientID) {
	_, sess, ok := o.Registry.RoomOf(client)
	if !ok {
		return
	}
	o.kickSession(sess)
}

func (o *Orchestrator) kickSession(sess core.MemberSession) {
	client := sess.Client()
	o.cleanupMedia(sess)
	o.leaveChannel(client, sess.Room())
	if sc := sess.Signal(); sc != nil {
		sess.UpdateSignal(nil)
		sc.Close()
	}
	o.Registry.Unbind(client, sess)
}

// EvictRoom kicks everyone connected to room.
func (o *Orchestrator) EvictRoom(room domain.RoomID) {
	for _, snap := range o.Registry.MembersOfRoom(room) {
		o.kickSession(snap.Session)
	}
	o.Channels.StopChannel(room)
}

// DropMember disconnects client from room after it released its store
// membership. A binding to a different room is left alone.
func (o *Orchestrator) DropMember(room domain.RoomID, client domain.ClientID) {
	bound, sess, ok := o.Registry.RoomOf(client)
	if !ok || bound != room {
		return
	}
	o.kickSession(sess)
}
