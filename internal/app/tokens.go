package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

const (
	AudienceRTC = "rtc"
	AudienceRTM = "rtm"

	tokenIssuer = "roulette"
)

var ErrBadToken = errors.New("invalid transport token")

// TransportClaims bind a token to one (room, client) pair.
type TransportClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

func (ti *TokenIssuer) Issue(room domain.RoomID, client domain.ClientID, audience string) (string, error) {
	now := time.Now()
	claims := TransportClaims{
		Room: string(room),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   string(client),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.secret)
}

func (ti *TokenIssuer) Verify(tokenStr, audience string) (domain.RoomID, domain.ClientID, error) {
	if tokenStr == "" {
		return "", "", fmt.Errorf("%w: empty", ErrBadToken)
	}
	var claims TransportClaims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	if claims.Room == "" || claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing room or subject", ErrBadToken)
	}
	return domain.RoomID(claims.Room), domain.ClientID(claims.Subject), nil
}

// Assign issues the media and messaging tokens for client in room.
func (ti *TokenIssuer) Assign(room domain.Room, client domain.ClientID) (core.Assignment, error) {
	rtc, err := ti.Issue(room.ID, client, AudienceRTC)
	if err != nil {
		return core.Assignment{}, err
	}
	rtm, err := ti.Issue(room.ID, client, AudienceRTM)
	if err != nil {
		return core.Assignment{}, err
	}
	return core.Assignment{Room: room, RTCToken: rtc, RTMToken: rtm}, nil
}
