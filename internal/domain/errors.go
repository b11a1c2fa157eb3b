package domain

import "errors"

var (
	// ErrConflict means a conditional update lost a race or its
	// precondition no longer held. Nothing was mutated.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means the room does not exist; callers treat it as
	// already left.
	ErrNotFound = errors.New("room not found")
	// ErrStoreUnavailable is fatal to the current search.
	ErrStoreUnavailable = errors.New("room store unavailable")
	// ErrCollaboratorUnavailable covers media, messaging and toxicity calls.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrInvalidStatus           = errors.New("invalid status")
	// ErrInvalidRoomState is returned when a store hands back a room that
	// breaks the capacity or status/size mapping.
	ErrInvalidRoomState = errors.New("invalid room state")
)
