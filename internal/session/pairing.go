package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

// pairing holds the collaborator handles of one room. The orchestrator
// owns it exclusively until teardown hands it back to nobody.
type pairing struct {
	gen     uint64
	room    domain.Room
	channel core.Channel
	media   core.MediaSession
	done    chan struct{}
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrCollaboratorUnavailable}, args...)...)
}

// search runs Searching and the establishing phase. Any pairing still
// held is torn down first so the client is never bound to two rooms.
func (o *Orchestrator) search(ctx context.Context) error {
	if o.pairing != nil {
		_ = o.teardown()
	}
	o.setState(Searching)

	logger := log.With().Str("module", "session").Str("client", string(o.client)).Logger()

	as, err := o.deps.Rooms.Match(ctx, o.client)
	if err != nil {
		logger.Error().Err(err).Msg("match failed")
		o.setState(Idle)
		return err
	}
	room := as.Room
	o.setRoom(room.ID)
	logger.Info().Str("room", string(room.ID)).Str("status", string(room.Status)).Msg("matched")

	p, err := o.establish(ctx, as)
	if err != nil {
		logger.Error().Err(err).Str("room", string(room.ID)).Msg("establish failed")
		o.release(room.ID)
		o.clear()
		o.setState(Idle)
		return err
	}
	o.pairing = p

	if room.Status == domain.StatusChatting {
		o.setState(Active)
	} else {
		o.setState(Paired)
	}
	return nil
}

// establish joins messaging and media concurrently. Both must succeed;
// whichever did succeed is left again when the other fails.
func (o *Orchestrator) establish(ctx context.Context, as core.Assignment) (*pairing, error) {
	var (
		ch core.Channel
		ms core.MediaSession
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := o.deps.Messenger.Join(gctx, as.Room.ID, o.client, as.RTMToken)
		if err != nil {
			return errorf("messaging join: %w", err)
		}
		ch = c
		return nil
	})
	g.Go(func() error {
		m, err := o.deps.Media.Join(gctx, as.Room.ID, o.client, as.RTCToken)
		if err != nil {
			return errorf("media join: %w", err)
		}
		ms = m
		return nil
	})
	if err := g.Wait(); err != nil {
		lctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if ch != nil {
			if lerr := ch.Leave(lctx); lerr != nil {
				log.Warn().Err(lerr).Str("module", "session").Msg("leave messaging after failed join")
			}
		}
		if ms != nil {
			if lerr := ms.Leave(lctx); lerr != nil {
				log.Warn().Err(lerr).Str("module", "session").Msg("leave media after failed join")
			}
		}
		return nil, err
	}

	o.gen++
	p := &pairing{gen: o.gen, room: as.Room, channel: ch, media: ms, done: make(chan struct{})}
	go o.pumpChannel(p)
	go o.pumpMedia(p)
	return p, nil
}

// teardown leaves messaging, then media, then releases the room. Each
// step runs even if an earlier one failed.
func (o *Orchestrator) teardown() error {
	p := o.pairing
	if p == nil {
		return nil
	}
	o.setState(Leaving)
	o.pairing = nil
	o.gen++
	close(p.done)

	logger := log.With().Str("module", "session").Str("client", string(o.client)).Str("room", string(p.room.ID)).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	var errs []error
	if p.channel != nil {
		if err := p.channel.Leave(ctx); err != nil {
			logger.Warn().Err(err).Str("collaborator", "messaging").Msg("teardown step failed")
			errs = append(errs, errorf("messaging leave: %w", err))
		}
	}
	if p.media != nil {
		if err := p.media.Leave(ctx); err != nil {
			logger.Warn().Err(err).Str("collaborator", "media").Msg("teardown step failed")
			errs = append(errs, errorf("media leave: %w", err))
		}
	}
	if err := o.releaseCtx(ctx, p.room.ID); err != nil {
		errs = append(errs, err)
	}
	o.clear()
	logger.Info().Int("failed_steps", len(errs)).Msg("teardown done")
	return errors.Join(errs...)
}

func (o *Orchestrator) release(room domain.RoomID) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	_ = o.releaseCtx(ctx, room)
}

// releaseCtx gives the room back. A room that is already gone counts as
// released.
func (o *Orchestrator) releaseCtx(ctx context.Context, room domain.RoomID) error {
	_, err := o.deps.Rooms.Leave(ctx, room, o.client)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	log.Warn().Err(err).Str("module", "session").Str("client", string(o.client)).Str("room", string(room)).
		Str("collaborator", "rooms").Msg("teardown step failed")
	return err
}

func (o *Orchestrator) setRoom(id domain.RoomID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.room = id
}

func (o *Orchestrator) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.room = ""
	o.log = nil
}

func (o *Orchestrator) forward(p *pairing, ev inbound) bool {
	select {
	case o.inbox <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (o *Orchestrator) pumpChannel(p *pairing) {
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.channel.Events():
			if !ok {
				o.forward(p, inbound{gen: p.gen, kind: inChannel, channel: core.ChannelEvent{Kind: core.ChannelClosed}})
				return
			}
			in := inbound{gen: p.gen, kind: inChannel, channel: ev}
			if ev.Kind == core.ChannelMessage {
				in.text, in.filtered = o.screen(ev.Text)
			}
			if !o.forward(p, in) {
				return
			}
		}
	}
}

func (o *Orchestrator) pumpMedia(p *pairing) {
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.media.Events():
			if !ok {
				return
			}
			if !o.forward(p, inbound{gen: p.gen, kind: inMedia, media: ev}) {
				return
			}
			if ev.Kind == core.MediaClosed {
				return
			}
		}
	}
}

// screen returns the text to show for an inbound message. Text the
// classifier cannot score is withheld as well.
func (o *Orchestrator) screen(text string) (string, bool) {
	if o.deps.Filter == nil {
		return text, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), classifyTimeout)
	defer cancel()
	scores, err := o.deps.Filter.Classify(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Str("collaborator", "toxicity").Msg("classify failed")
		return domain.UncheckedPlaceholder, true
	}
	for _, s := range scores {
		if s.Label == toxicLabel && s.Score > o.deps.Threshold {
			return domain.ToxicPlaceholder, true
		}
	}
	return text, false
}
