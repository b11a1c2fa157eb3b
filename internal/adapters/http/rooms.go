package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/app/orch"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

const searchLimit = 20

// RoomHandlers is the matchmaking HTTP surface.
type RoomHandlers struct {
	Matchmaker *app.Matchmaker
	Lifecycle  *app.Lifecycle
	Tokens     *app.TokenIssuer
	// Orch, when set, drops the live channel and media of a client that
	// released its room over HTTP.
	Orch *orch.Orchestrator
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrClientIDEmpty),
		errors.Is(err, domain.ErrClientIDTooLong):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func fail(c *gin.Context, op string, err error) {
	code, msg := errorStatus(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("op", op).Int("status", code).Msg("request failed")
	c.AbortWithStatusJSON(code, wire.ErrorResponse{Error: msg})
}

// clientID resolves the caller: explicit query parameter, then the body
// of a create request, then the anonymous cookie id.
func clientID(c *gin.Context, body string) (domain.ClientID, error) {
	raw := strings.TrimSpace(c.Query("clientId"))
	if raw == "" {
		raw = strings.TrimSpace(body)
	}
	if raw == "" {
		raw = c.GetString("client_token")
	}
	id, err := domain.ParseClientID(raw)
	if err != nil {
		return "", err
	}
	sess := sessions.Default(c)
	if sess.Get("client") != string(id) {
		sess.Set("client", string(id))
		_ = sess.Save()
	}
	return id, nil
}

func (h *RoomHandlers) respondAssigned(c *gin.Context, code int, room domain.Room, client domain.ClientID) {
	as, err := h.Tokens.Assign(room, client)
	if err != nil {
		fail(c, "assign", err)
		return
	}
	c.JSON(code, wire.RoomResponse{Room: room.View(), RTCToken: as.RTCToken, RTMToken: as.RTMToken})
}

// Match is POST /rooms: join a waiting room or create one.
func (h *RoomHandlers) Match(c *gin.Context) {
	var req wire.MatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, wire.ErrorResponse{Error: "bad_payload"})
			return
		}
	}
	client, err := clientID(c, string(req.ClientID))
	if err != nil {
		fail(c, "match", err)
		return
	}
	room, err := h.Matchmaker.Match(c.Request.Context(), client)
	if err != nil {
		fail(c, "match", err)
		return
	}
	code := http.StatusOK
	if room.Status == domain.StatusWaiting {
		code = http.StatusCreated
	}
	h.respondAssigned(c, code, room, client)
}

// Search is GET /rooms?clientId=: waiting rooms the caller could join.
func (h *RoomHandlers) Search(c *gin.Context) {
	client, err := clientID(c, "")
	if err != nil {
		fail(c, "search", err)
		return
	}
	rooms, err := h.Matchmaker.Candidates(c.Request.Context(), client, searchLimit)
	if err != nil {
		fail(c, "search", err)
		return
	}
	views := make([]domain.RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, r.View())
	}
	c.JSON(http.StatusOK, wire.RoomsResponse{Rooms: views})
}

func (h *RoomHandlers) Get(c *gin.Context) {
	room, err := h.Lifecycle.Get(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, wire.RoomResponse{Room: room.View()})
}

// Join is POST /rooms/:id?clientId=.
func (h *RoomHandlers) Join(c *gin.Context) {
	client, err := clientID(c, "")
	if err != nil {
		fail(c, "join", err)
		return
	}
	room, err := h.Lifecycle.Join(c.Request.Context(), domain.RoomID(c.Param("id")), client)
	if err != nil {
		fail(c, "join", err)
		return
	}
	h.respondAssigned(c, http.StatusOK, room, client)
}

// Leave is DELETE /rooms/:id?clientId=.
func (h *RoomHandlers) Leave(c *gin.Context) {
	client, err := clientID(c, "")
	if err != nil {
		fail(c, "leave", err)
		return
	}
	id := domain.RoomID(c.Param("id"))
	room, err := h.Lifecycle.Release(c.Request.Context(), id, client)
	if err != nil {
		fail(c, "leave", err)
		return
	}
	if h.Orch != nil {
		h.Orch.DropMember(id, client)
	}
	c.JSON(http.StatusOK, wire.RoomResponse{Room: room.View()})
}

// SetStatus is PUT /rooms/:id {status}.
func (h *RoomHandlers) SetStatus(c *gin.Context) {
	var req wire.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, wire.ErrorResponse{Error: "bad_payload"})
		return
	}
	room, err := h.Lifecycle.SetStatus(c.Request.Context(), domain.RoomID(c.Param("id")), req.Status)
	if err != nil {
		fail(c, "set_status", err)
		return
	}
	c.JSON(http.StatusOK, wire.RoomResponse{Room: room.View()})
}
