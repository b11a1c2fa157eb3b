package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Roulette/internal/app"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/store/memory"
	"github.com/dkeye/Roulette/internal/wire"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	lc := app.NewLifecycle(store)
	h := &RoomHandlers{
		Matchmaker: app.NewMatchmaker(store, lc, app.DefaultMatchRetries),
		Lifecycle:  lc,
		Tokens:     app.NewTokenIssuer("secret", time.Minute),
	}
	cfg := &config.Config{Mode: "test", Secret: "secret"}
	return SetupRouter(context.Background(), cfg, h, nil)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeRoom(t *testing.T, w *httptest.ResponseRecorder) wire.RoomResponse {
	t.Helper()
	var resp wire.RoomResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp wire.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return resp.Error
}

func TestMatchCreatesThenJoins(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/rooms", `{"clientId":"u1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("first match status = %d, body %s", w.Code, w.Body)
	}
	first := decodeRoom(t, w)
	if first.Room.Status != domain.StatusWaiting || first.Room.Size != 1 {
		t.Errorf("first room = %+v", first.Room)
	}
	if first.RTCToken == "" || first.RTMToken == "" {
		t.Error("tokens missing from match response")
	}

	w = do(r, http.MethodPost, "/rooms?clientId=u2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("second match status = %d, body %s", w.Code, w.Body)
	}
	second := decodeRoom(t, w)
	if second.Room.ID != first.Room.ID || second.Room.Status != domain.StatusChatting || second.Room.Size != 2 {
		t.Errorf("second room = %+v, want chatting %s", second.Room, first.Room.ID)
	}

	w = do(r, http.MethodGet, "/rooms/"+string(first.Room.ID), "")
	if got := decodeRoom(t, w); w.Code != http.StatusOK || got.RTMToken != "" {
		t.Errorf("get = %d %+v, want 200 without tokens", w.Code, got)
	}
}

func TestSearchListsJoinableRooms(t *testing.T) {
	r := newRouter(t)
	do(r, http.MethodPost, "/rooms?clientId=u1", "")

	w := do(r, http.MethodGet, "/rooms?clientId=u2", "")
	var resp wire.RoomsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusOK || len(resp.Rooms) != 1 {
		t.Fatalf("search = %d %+v", w.Code, resp)
	}

	w = do(r, http.MethodGet, "/rooms?clientId=u1", "")
	resp = wire.RoomsResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Rooms) != 0 {
		t.Errorf("own room listed: %+v", resp.Rooms)
	}
}

func TestLeaveAndSetStatus(t *testing.T) {
	r := newRouter(t)
	room := decodeRoom(t, do(r, http.MethodPost, "/rooms?clientId=u1", "")).Room
	path := "/rooms/" + string(room.ID)

	if w := do(r, http.MethodPost, path+"?clientId=u2", ""); w.Code != http.StatusOK {
		t.Fatalf("join status = %d", w.Code)
	}
	if w := do(r, http.MethodPut, path, `{"status":"waiting"}`); w.Code != http.StatusConflict {
		t.Errorf("set waiting on full room = %d, want 409", w.Code)
	}
	if w := do(r, http.MethodPut, path, `{"status":"chatting"}`); w.Code != http.StatusOK {
		t.Errorf("set chatting on full room = %d, want 200", w.Code)
	}

	w := do(r, http.MethodDelete, path+"?clientId=u1", "")
	got := decodeRoom(t, w)
	if w.Code != http.StatusOK || got.Room.Status != domain.StatusWaiting || got.Room.Size != 1 {
		t.Errorf("leave = %d %+v", w.Code, got.Room)
	}
	w = do(r, http.MethodDelete, path+"?clientId=u1", "")
	if w.Code != http.StatusOK {
		t.Errorf("second leave = %d, want idempotent 200", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		errMsg string
	}{
		{"unknown room", http.MethodGet, "/rooms/nope", "", http.StatusNotFound, "not_found"},
		{"join unknown", http.MethodPost, "/rooms/nope?clientId=u1", "", http.StatusNotFound, "not_found"},
		{"bad status", http.MethodPut, "/rooms/nope", `{"status":"full"}`, http.StatusBadRequest, "invalid_input"},
		{"bad json", http.MethodPut, "/rooms/nope", `{`, http.StatusBadRequest, "bad_payload"},
		{"long client id", http.MethodPost, "/rooms?clientId=" + strings.Repeat("x", domain.MaxClientIDLen+1), "", http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.code, w.Body)
			}
			if got := decodeError(t, w); got != tt.errMsg {
				t.Errorf("error = %q, want %q", got, tt.errMsg)
			}
		})
	}
}

func TestAnonymousCookieIdentity(t *testing.T) {
	r := newRouter(t)

	w := do(r, http.MethodPost, "/rooms", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("match status = %d, body %s", w.Code, w.Body)
	}
	room := decodeRoom(t, w).Room
	if len(room.Members) != 1 || room.Members[0] == "" {
		t.Fatalf("room = %+v, want one cookie member", room)
	}
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == clientCookie {
			token = c.Value
		}
	}
	if token == "" || string(room.Members[0]) != token {
		t.Errorf("member %q does not match cookie %q", room.Members[0], token)
	}
}
