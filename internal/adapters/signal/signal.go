package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SignalWSController serves the messaging channel and the media
// signalling socket. Both authenticate with a transport token that
// binds the connection to one (room, client) pair.
type SignalWSController struct {
	Orch       *orch.Orchestrator
	Tokens     *app.TokenIssuer
	Limiter    *RoomRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
	ICEServers []string
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSSignalConn(ws *websocket.Conn) *wsSignalConn {
	return &wsSignalConn{conn: ws, send: make(chan core.Frame, 32)}
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) authorize(c *gin.Context, audience string) (domain.RoomID, domain.ClientID, bool) {
	room, client, err := ctl.Tokens.Verify(c.Query("token"), audience)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("audience", audience).Msg("rejected token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return "", "", false
	}
	return room, client, true
}

func (ctl *SignalWSController) upgrade(c *gin.Context) (*wsSignalConn, bool) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return nil, false
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	return newWSSignalConn(ws), true
}

// HandleChat joins the caller to the messaging channel of its room.
func (ctl *SignalWSController) HandleChat(ctx context.Context, c *gin.Context) {
	room, client, ok := ctl.authorize(c, app.AudienceRTM)
	if !ok {
		return
	}
	conn, ok := ctl.upgrade(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("client", string(client)).Str("room", string(room)).Msg("new chat connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if err := ctl.Orch.AttachSignal(client, room, conn); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("client", string(client)).Msg("attach chat")
		ctl.sendJSON(conn, wire.Error{Type: wire.TypeError, Error: err.Error()})
		cancel()
		conn.Close()
		return
	}

	go ctl.readPump(ctx, client, conn, ctl.handleChat, func() {
		cancel()
		ctl.Orch.DetachSignal(client, conn)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(client)
		}
	})
}

// HandleMedia carries SDP and ICE for the caller's media connection.
func (ctl *SignalWSController) HandleMedia(ctx context.Context, c *gin.Context) {
	room, client, ok := ctl.authorize(c, app.AudienceRTC)
	if !ok {
		return
	}
	conn, ok := ctl.upgrade(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("client", string(client)).Str("room", string(room)).Msg("new media connection")

	ctx, cancel := context.WithCancel(ctx)
	ms := &mediaSession{client: client, room: room, conn: conn}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, client, conn, func(client domain.ClientID, _ *wsSignalConn, data []byte) {
		ctl.handleMedia(ctx, ms, data)
	}, func() {
		cancel()
		ms.close()
	})
}
