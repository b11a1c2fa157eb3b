package signal

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

const maxMessageLen = 2000

func (ctl *SignalWSController) handleChat(client domain.ClientID, conn *wsSignalConn, data []byte) {
	typ, err := wire.TypeOf(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(conn, wire.Error{Type: wire.TypeError, Error: "bad_payload"})
		return
	}

	switch typ {
	case wire.TypeMessage:
		ctl.handleMessage(client, conn, data)
	case wire.TypePing:
		ctl.handlePing(conn)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown chat frame")
	}
}

func (ctl *SignalWSController) handleMessage(client domain.ClientID, conn *wsSignalConn, data []byte) {
	var p wire.Message
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		ctl.sendJSON(conn, wire.Error{Type: wire.TypeError, Error: "bad_payload"})
		return
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(client) {
		ctl.sendJSON(conn, wire.Error{Type: wire.TypeError, Error: "rate_limited"})
		return
	}
	ctl.Orch.OnMessage(client, text)
}
