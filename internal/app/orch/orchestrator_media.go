package orch

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// AttachMedia binds a freshly negotiated media connection to client in room.
func (o *Orchestrator) AttachMedia(client domain.ClientID, room domain.RoomID, mc core.MediaConnection) {
	sess, prev := o.Registry.Bind(client, room)
	if prev != nil {
		o.kickSession(prev)
	}
	if old := sess.Media(); old != nil && old != mc {
		o.cleanupMedia(sess)
	}
	sess.UpdateMedia(mc)
	o.BindMediaHandlers(mc, client)
}

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, client domain.ClientID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		o.OnTrack(trackCtx, client, track)
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(client, mc) })
}

// OnMediaDisconnect runs when a media connection closes. Connections that
// were already replaced are ignored.
func (o *Orchestrator) OnMediaDisconnect(client domain.ClientID, mc core.MediaConnection) {
	_, sess, ok := o.Registry.RoomOf(client)
	if !ok || sess.Media() != mc {
		return
	}
	o.cleanupMedia(sess)
	if sess.Signal() == nil {
		o.Registry.Unbind(client, sess)
	}
}

func (o *Orchestrator) cleanupMedia(sess core.MemberSession) {
	mc := sess.Media()
	if mc == nil {
		return
	}
	// Cleared before Close so the OnClosed callback finds nothing to do.
	sess.UpdateMedia(nil)

	client := sess.Client()
	if o.Relays != nil {
		o.Relays.StopRelays(client)
		for _, snap := range o.Registry.MembersOfRoom(sess.Room()) {
			o.Relays.MarkSubscriberDelete(snap.Client, client)
		}
	}
	mc.Close()
}

// OnTrack is called when client publishes a new remote track. The room
// mate, if it already has media, starts receiving it.
func (o *Orchestrator) OnTrack(ctx context.Context, client domain.ClientID, track *webrtc.TrackRemote) {
	if o.Relays == nil {
		return
	}
	if sess, ok := o.Registry.GetSession(client); !ok || sess.Media() == nil {
		return
	}
	o.Relays.StartRelay(ctx, client, track)

	for _, snap := range o.Registry.RoomMates(client) {
		o.subscribe(client, snap.Client, snap.Session.Media())
	}
}

// OnMediaReady is called once client's offer/answer is done. It
// subscribes client to everything its room mate already publishes.
func (o *Orchestrator) OnMediaReady(client domain.ClientID) {
	if o.Relays == nil {
		return
	}
	sess, ok := o.Registry.GetSession(client)
	if !ok || sess.Media() == nil {
		return
	}
	for _, snap := range o.Registry.RoomMates(client) {
		o.subscribe(snap.Client, client, sess.Media())
	}
}

func (o *Orchestrator) subscribe(src, dst domain.ClientID, mc core.MediaConnection) {
	if mc == nil || mc.IsClosed() {
		return
	}
	logger := log.With().Str("module", "orch.media").Str("src", string(src)).Str("dst", string(dst)).Logger()
	added, err := o.Relays.Subscribe(src, dst, mc)
	if err != nil {
		logger.Error().Err(err).Msg("subscribe")
	}
	if added == 0 {
		return
	}
	if err := mc.Renegotiate(); err != nil {
		logger.Error().Err(err).Msg("renegotiate")
		return
	}
	logger.Info().Int("tracks", added).Msg("subscribed")
}
