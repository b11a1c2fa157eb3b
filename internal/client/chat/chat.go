// Package chat is the messaging-channel client of the terminal client.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/client"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
)

var ErrClosed = errors.New("channel closed")

// Messenger dials the messaging endpoint of the server.
type Messenger struct {
	ServerURL string
	Dialer    *websocket.Dialer
}

var _ core.Messenger = (*Messenger)(nil)

func (m *Messenger) Join(ctx context.Context, room domain.RoomID, id domain.ClientID, token string) (core.Channel, error) {
	u, err := client.WebSocketURL(m.ServerURL, "/api/ws/chat", token)
	if err != nil {
		return nil, err
	}
	dialer := m.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: messaging dial: %w", domain.ErrCollaboratorUnavailable, err)
	}
	ch := newChannel(conn, room, id)
	go ch.readPump()
	go ch.writePump()
	log.Debug().Str("module", "client.chat").Str("room", string(room)).Str("client", string(id)).Msg("channel joined")
	return ch, nil
}

// Channel is one joined messaging channel.
type Channel struct {
	conn   *websocket.Conn
	room   domain.RoomID
	client domain.ClientID

	events   chan core.ChannelEvent
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

func newChannel(conn *websocket.Conn, room domain.RoomID, id domain.ClientID) *Channel {
	return &Channel{
		conn:     conn,
		room:     room,
		client:   id,
		events:   make(chan core.ChannelEvent, 32),
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

func (c *Channel) Events() <-chan core.ChannelEvent { return c.events }

func (c *Channel) Send(ctx context.Context, text string) error {
	b, err := wire.Encode(wire.Message{Type: wire.TypeMessage, Text: text})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- b:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave closes the connection. The server treats the close as the member
// leaving the channel.
func (c *Channel) Leave(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			err = fmt.Errorf("%w: messaging close: %w", domain.ErrCollaboratorUnavailable, werr)
		}
		_ = c.conn.Close()
	})
	return err
}

func (c *Channel) emit(ev core.ChannelEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Channel) readPump() {
	defer func() {
		_ = c.conn.Close()
		close(c.events)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("module", "client.chat").Str("room", string(c.room)).Msg("read failed")
			}
			return
		}
		ev, ok := decode(data)
		if ok {
			c.emit(ev)
		}
	}
}

func decode(data []byte) (core.ChannelEvent, bool) {
	typ, err := wire.TypeOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client.chat").Msg("bad frame")
		return core.ChannelEvent{}, false
	}
	switch typ {
	case wire.TypeMessage:
		var m wire.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return core.ChannelEvent{}, false
		}
		return core.ChannelEvent{Kind: core.ChannelMessage, From: m.From, Text: m.Text}, true
	case wire.TypePeerJoined, wire.TypePeerLeft:
		var p wire.Peer
		if err := json.Unmarshal(data, &p); err != nil {
			return core.ChannelEvent{}, false
		}
		kind := core.PeerJoined
		if typ == wire.TypePeerLeft {
			kind = core.PeerLeft
		}
		return core.ChannelEvent{Kind: kind, From: p.Client}, true
	case wire.TypeError:
		var e wire.Error
		_ = json.Unmarshal(data, &e)
		log.Warn().Str("module", "client.chat").Str("error", e.Error).Msg("server error")
	case wire.TypePong:
	default:
		log.Debug().Str("module", "client.chat").Str("type", typ).Msg("unknown frame")
	}
	return core.ChannelEvent{}, false
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case b := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
