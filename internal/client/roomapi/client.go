// Package roomapi talks to the matchmaking HTTP surface.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/wire"
)

type Client struct {
	base *url.URL
	http *http.Client
}

var _ core.RoomAPI = (*Client)(nil)

func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

// statusError maps the server's status codes back onto the domain errors.
func statusError(code int, body wire.ErrorResponse) error {
	var kind error
	switch code {
	case http.StatusConflict:
		kind = domain.ErrConflict
	case http.StatusNotFound:
		kind = domain.ErrNotFound
	case http.StatusBadRequest:
		kind = domain.ErrInvalidStatus
	default:
		kind = domain.ErrStoreUnavailable
	}
	return fmt.Errorf("%w: server answered %d %s", kind, code, body.Error)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e wire.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		err := statusError(resp.StatusCode, e)
		log.Debug().Err(err).Str("module", "client.roomapi").Str("method", method).Str("path", path).Msg("request failed")
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func clientQuery(client domain.ClientID) url.Values {
	return url.Values{"clientId": {string(client)}}
}

func roomPath(id domain.RoomID) string {
	return "/rooms/" + url.PathEscape(string(id))
}

func assignment(r wire.RoomResponse) core.Assignment {
	return core.Assignment{Room: r.Room.Room(), RTCToken: r.RTCToken, RTMToken: r.RTMToken}
}

func (c *Client) Match(ctx context.Context, client domain.ClientID) (core.Assignment, error) {
	var resp wire.RoomResponse
	if err := c.do(ctx, http.MethodPost, "/rooms", nil, wire.MatchRequest{ClientID: client}, &resp); err != nil {
		return core.Assignment{}, err
	}
	return assignment(resp), nil
}

func (c *Client) Search(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	var resp wire.RoomsResponse
	if err := c.do(ctx, http.MethodGet, "/rooms", clientQuery(client), nil, &resp); err != nil {
		return nil, err
	}
	rooms := make([]domain.Room, 0, len(resp.Rooms))
	for _, v := range resp.Rooms {
		rooms = append(rooms, v.Room())
	}
	return rooms, nil
}

func (c *Client) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var resp wire.RoomResponse
	if err := c.do(ctx, http.MethodGet, roomPath(id), nil, nil, &resp); err != nil {
		return domain.Room{}, err
	}
	return resp.Room.Room(), nil
}

func (c *Client) Join(ctx context.Context, id domain.RoomID, client domain.ClientID) (core.Assignment, error) {
	var resp wire.RoomResponse
	if err := c.do(ctx, http.MethodPost, roomPath(id), clientQuery(client), nil, &resp); err != nil {
		return core.Assignment{}, err
	}
	return assignment(resp), nil
}

func (c *Client) Leave(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	var resp wire.RoomResponse
	if err := c.do(ctx, http.MethodDelete, roomPath(id), clientQuery(client), nil, &resp); err != nil {
		return domain.Room{}, err
	}
	return resp.Room.Room(), nil
}

func (c *Client) SetStatus(ctx context.Context, id domain.RoomID, status domain.Status) (domain.Room, error) {
	var resp wire.RoomResponse
	if err := c.do(ctx, http.MethodPut, roomPath(id), nil, wire.StatusRequest{Status: status}, &resp); err != nil {
		return domain.Room{}, err
	}
	return resp.Room.Room(), nil
}

// IsRetryable reports whether err is worth another attempt by the user.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrConflict)
}
