// Package domain contains entities without transport or storage logic.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxClientIDLen = 64

var (
	ErrClientIDEmpty   = errors.New("client id empty")
	ErrClientIDTooLong = errors.New("client id too long")
)

// ClientID identifies an anonymous browsing session. It is generated
// locally and never authenticated.
type ClientID string

// NewClientID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func ParseClientID(raw string) (ClientID, error) {
	if len(raw) == 0 {
		return "", ErrClientIDEmpty
	}
	if len(raw) > MaxClientIDLen {
		return "", ErrClientIDTooLong
	}
	return ClientID(raw), nil
}
