package wire

import "github.com/dkeye/Roulette/internal/domain"

// Matchmaking HTTP bodies.

type MatchRequest struct {
	ClientID domain.ClientID `json:"clientId"`
}

type StatusRequest struct {
	Status domain.Status `json:"status"`
}

type RoomResponse struct {
	Room     domain.RoomView `json:"room"`
	RTCToken string          `json:"rtcToken,omitempty"`
	RTMToken string          `json:"rtmToken,omitempty"`
}

type RoomsResponse struct {
	Rooms []domain.RoomView `json:"rooms"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
