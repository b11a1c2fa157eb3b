// Package orch coordinates the live side of a pairing on the server: the
// messaging channel of each room and the media relay between its members.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/sfu"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

const releaseTimeout = 5 * time.Second

type Orchestrator struct {
	Registry *app.Registry
	Channels core.ChannelManager
	Policy   app.Policy
	Relays   *sfu.RelayManager
	// Lifecycle, when set, releases store membership of a client whose
	// messaging connection drops. Release is idempotent, so a client that
	// already released during its own teardown is unaffected.
	Lifecycle *app.Lifecycle
}

func (o *Orchestrator) send(sc core.SignalConnection, v any) {
	if sc == nil {
		return
	}
	b, err := wire.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode frame")
		return
	}
	if err := sc.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("send frame")
	}
}

// OnMessage relays a chat line from client to its room mate.
func (o *Orchestrator) OnMessage(client domain.ClientID, text string) {
	room, _, ok := o.Registry.RoomOf(client)
	if !ok {
		return
	}
	ch, ok := o.Channels.Get(room)
	if !ok {
		return
	}
	msg := domain.NewChatMessage(client, text)
	data, err := wire.Encode(wire.Message{Type: wire.TypeMessage, ID: msg.ID.String(), From: client, Text: text})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode message")
		return
	}

	res := ch.Broadcast(client, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(ch, slow) {
		case app.KickMember:
			o.KickClient(slow.Client())
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) releaseMembership(room domain.RoomID, client domain.ClientID) {
	if o.Lifecycle == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_, err := o.Lifecycle.Release(ctx, room, client)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(room)).Str("client", string(client)).Msg("release on disconnect")
	}
}
