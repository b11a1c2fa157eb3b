package app

import (
	"context"
	"errors"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultMatchRetries = 3

type Matchmaker struct {
	store     core.RoomStore
	lifecycle *Lifecycle
	retries   int
}

func NewMatchmaker(store core.RoomStore, lifecycle *Lifecycle, retries int) *Matchmaker {
	if retries <= 0 {
		retries = DefaultMatchRetries
	}
	return &Matchmaker{store: store, lifecycle: lifecycle, retries: retries}
}

// Match places client into a waiting room as its second member, or
// creates a new waiting room with client as the first member. A lost
// join race mutates nothing and moves on to the next candidate; after
// the retry budget Match always falls through to creation.
func (m *Matchmaker) Match(ctx context.Context, client domain.ClientID) (domain.Room, error) {
	logger := log.With().Str("module", "app.matchmaker").Str("client", string(client)).Logger()

	if _, err := m.lifecycle.ReleaseAll(ctx, client); err != nil {
		return domain.Room{}, err
	}

	var tried []domain.RoomID
	for attempt := 0; attempt < m.retries; attempt++ {
		cand, err := m.store.FindOneWaitingExcluding(ctx, client, tried...)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return domain.Room{}, err
		}

		room, err := m.lifecycle.Join(ctx, cand.ID, client)
		switch {
		case err == nil:
			logger.Info().Str("room", string(room.ID)).Int("attempt", attempt+1).Msg("joined waiting room")
			return room, nil
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
			logger.Debug().Str("room", string(cand.ID)).Int("attempt", attempt+1).Msg("lost join race")
			tried = append(tried, cand.ID)
		default:
			return domain.Room{}, err
		}
	}

	room, err := m.store.Create(ctx, client)
	if err != nil {
		return domain.Room{}, err
	}
	logger.Info().Str("room", string(room.ID)).Msg("created waiting room")
	return checkRoom("create", room)
}

// Candidates lists waiting rooms client could join.
func (m *Matchmaker) Candidates(ctx context.Context, client domain.ClientID, limit int) ([]domain.Room, error) {
	return m.store.ListWaiting(ctx, client, limit)
}
