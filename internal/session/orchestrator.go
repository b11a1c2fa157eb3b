package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

const (
	DefaultThreshold = 0.5
	toxicLabel       = "toxic"

	teardownTimeout = 5 * time.Second
	classifyTimeout = 10 * time.Second
)

type Deps struct {
	Rooms     core.RoomAPI
	Media     core.MediaTransport
	Messenger core.Messenger
	// Filter screens inbound text. Nil disables screening.
	Filter    core.ToxicityFilter
	Threshold float64
}

type cmdKind int

const (
	cmdSearch cmdKind = iota
	cmdStop
	cmdSend
)

type command struct {
	kind cmdKind
	text string
	done chan error
}

type inboundKind int

const (
	inChannel inboundKind = iota
	inMedia
)

// inbound carries a collaborator event into the loop. gen ties it to the
// pairing that produced it so late events of a torn down pairing are
// dropped.
type inbound struct {
	gen     uint64
	kind    inboundKind
	channel core.ChannelEvent
	media   core.MediaEvent
	// text is the screened form of channel.Text.
	text     string
	filtered bool
}

// Orchestrator is the per-client state machine. All transitions happen
// on the goroutine running Run, one at a time.
type Orchestrator struct {
	client domain.ClientID
	deps   Deps

	cmds    chan command
	inbox   chan inbound
	updates chan Update
	done    chan struct{}

	// loop owned
	gen     uint64
	pairing *pairing

	mu    sync.RWMutex
	state State
	room  domain.RoomID
	log   []domain.ChatMessage
}

func New(client domain.ClientID, deps Deps) *Orchestrator {
	if deps.Threshold <= 0 {
		deps.Threshold = DefaultThreshold
	}
	return &Orchestrator{
		client:  client,
		deps:    deps,
		cmds:    make(chan command),
		inbox:   make(chan inbound, 64),
		updates: make(chan Update, 256),
		done:    make(chan struct{}),
	}
}

func (o *Orchestrator) Client() domain.ClientID { return o.client }

// Updates streams state changes, messages and inline errors.
func (o *Orchestrator) Updates() <-chan Update { return o.updates }

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) Room() (domain.RoomID, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.room, o.room != ""
}

// Messages returns a copy of the message log of the current pairing.
func (o *Orchestrator) Messages() []domain.ChatMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]domain.ChatMessage, len(o.log))
	copy(out, o.log)
	return out
}

// Start begins searching. From Paired or Active it behaves like Next.
func (o *Orchestrator) Start(ctx context.Context) error { return o.do(ctx, cmdSearch, "") }

// Next tears the current pairing down and searches again. A Next issued
// while a search is running waits for that search, then tears it down.
func (o *Orchestrator) Next(ctx context.Context) error { return o.do(ctx, cmdSearch, "") }

// Stop tears down and returns to Idle without searching.
func (o *Orchestrator) Stop(ctx context.Context) error { return o.do(ctx, cmdStop, "") }

// Send delivers text to the peer. Outbound text is not screened.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	return o.do(ctx, cmdSend, text)
}

func (o *Orchestrator) do(ctx context.Context, kind cmdKind, text string) error {
	cmd := command{kind: kind, text: text, done: make(chan error, 1)}
	select {
	case o.cmds <- cmd:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands and collaborator events until ctx ends, then
// tears down whatever pairing is left.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	defer func() {
		if o.pairing != nil {
			_ = o.teardown()
		}
		o.setState(Idle)
		close(o.updates)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-o.cmds:
			cmd.done <- o.handle(ctx, cmd)
		case ev := <-o.inbox:
			if ev.gen != o.gen || o.pairing == nil {
				continue
			}
			switch ev.kind {
			case inChannel:
				o.onChannel(ctx, ev)
			case inMedia:
				o.onMedia(ctx, ev.media)
			}
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdSearch:
		return o.search(ctx)
	case cmdStop:
		if o.pairing == nil {
			o.setState(Idle)
			return nil
		}
		err := o.teardown()
		o.setState(Idle)
		return err
	case cmdSend:
		return o.send(ctx, cmd.text)
	}
	return nil
}

func (o *Orchestrator) send(ctx context.Context, text string) error {
	if o.State() != Active || o.pairing == nil || o.pairing.channel == nil {
		return ErrNotActive
	}
	if err := o.pairing.channel.Send(ctx, text); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("client", string(o.client)).Msg("send")
		return err
	}
	msg := domain.NewChatMessage(o.client, text)
	o.appendLog(msg)
	o.emit(Update{Kind: MessageSent, State: Active, Room: o.pairing.room.ID, Message: msg})
	return nil
}

func (o *Orchestrator) onChannel(ctx context.Context, ev inbound) {
	switch ev.channel.Kind {
	case core.PeerJoined:
		o.activate()
	case core.ChannelMessage:
		// A message can only come from the peer, so it also proves pairing.
		o.activate()
		msg := domain.NewChatMessage(ev.channel.From, ev.text)
		msg.Filtered = ev.filtered
		o.appendLog(msg)
		o.emit(Update{Kind: MessageReceived, State: o.State(), Room: o.pairing.room.ID, Message: msg})
	case core.PeerLeft:
		o.peerGone(ctx)
	case core.ChannelClosed:
		log.Warn().Str("module", "session").Str("client", string(o.client)).Msg("messaging channel closed")
		err := errorf("messaging channel closed")
		_ = o.teardown()
		o.setState(Idle)
		o.emit(Update{Kind: Failed, State: Idle, Err: err})
	}
}

func (o *Orchestrator) onMedia(ctx context.Context, ev core.MediaEvent) {
	switch ev.Kind {
	case core.TrackAdded:
		o.activate()
	case core.TrackRemoved:
	case core.MediaClosed:
		log.Warn().Str("module", "session").Str("client", string(o.client)).Msg("media transport closed")
		o.pairing.media = nil
		o.emit(Update{Kind: Failed, State: o.State(), Room: o.pairing.room.ID, Err: errorf("media transport closed")})
	}
}

func (o *Orchestrator) activate() {
	if o.State() == Paired {
		o.setState(Active)
	}
}

// peerGone tears down the pairing and goes looking for the next one.
func (o *Orchestrator) peerGone(ctx context.Context) {
	room := o.pairing.room.ID
	log.Info().Str("module", "session").Str("client", string(o.client)).Str("room", string(room)).Msg("peer left")
	o.emit(Update{Kind: PeerGone, State: o.State(), Room: room})
	if err := o.search(ctx); err != nil {
		o.emit(Update{Kind: Failed, State: o.State(), Err: err})
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	room := o.room
	o.mu.Unlock()
	if prev == s {
		return
	}
	log.Debug().Str("module", "session").Str("client", string(o.client)).Str("from", prev.String()).Str("state", s.String()).Msg("transition")
	o.emit(Update{Kind: StateChanged, State: s, Room: room})
}

func (o *Orchestrator) appendLog(m domain.ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log = append(o.log, m)
}

func (o *Orchestrator) emit(u Update) {
	select {
	case o.updates <- u:
	default:
		log.Warn().Str("module", "session").Int("kind", int(u.Kind)).Msg("update dropped")
	}
}
