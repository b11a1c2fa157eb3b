package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Roulette/internal/client/chat"
	"github.com/dkeye/Roulette/internal/client/media"
	"github.com/dkeye/Roulette/internal/client/roomapi"
	"github.com/dkeye/Roulette/internal/client/toxicity"
	"github.com/dkeye/Roulette/internal/config"
	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/session"
)

const help = `/next     find another partner
/stop     leave and stay idle
/start    start searching again
/suggest  propose replies to the last message
/1../5    send a proposed reply
/quit     leave and exit`

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start chatting with a random partner",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runChat(ctx, cfg, os.Stdin, cmd.OutOrStdout())
	},
}

func newDeps(cfg *config.ClientConfig) (session.Deps, error) {
	api, err := roomapi.New(cfg.ServerURL, cfg.Timeout)
	if err != nil {
		return session.Deps{}, err
	}
	deps := session.Deps{
		Rooms:     api,
		Messenger: &chat.Messenger{ServerURL: cfg.ServerURL},
		Media:     &media.Transport{ServerURL: cfg.ServerURL, ICEServers: cfg.ICEServers, FeedSilence: true},
		Threshold: cfg.Toxicity.Threshold,
	}
	if cfg.Toxicity.URL != "" {
		deps.Filter = toxicity.NewClassifier(cfg.Toxicity.URL, cfg.Toxicity.Token, nil)
	}
	return deps, nil
}

// chatUI is the line-oriented front end of one orchestrator.
type chatUI struct {
	orch    *session.Orchestrator
	suggest *toxicity.Suggester
	out     io.Writer

	// owned by the input loop
	proposals []string
}

func runChat(ctx context.Context, cfg *config.ClientConfig, in io.Reader, out io.Writer) error {
	deps, err := newDeps(cfg)
	if err != nil {
		return err
	}
	id := clientID(cfg.ClientID)
	out = &lockedWriter{w: out}
	ui := &chatUI{orch: session.New(id, deps), out: out}
	if cfg.Suggest.URL != "" {
		ui.suggest = toxicity.NewSuggester(cfg.Suggest.URL, cfg.Suggest.Token, nil)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.orch.Run(runCtx)
	}()
	go func() {
		for u := range ui.orch.Updates() {
			render(out, u, id)
		}
	}()

	fmt.Fprintln(out, MutedStyle.Render("you are "+string(id)+". type /help for commands"))
	ui.async(ctx, ui.orch.Start)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	defer func() {
		stop()
		<-done
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := ui.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// async runs a transition without blocking input. The orchestrator still
// applies transitions one at a time.
func (ui *chatUI) async(ctx context.Context, fn func(context.Context) error) {
	go func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintln(ui.out, ErrorStyle.Render("error: "+err.Error()))
			if roomapi.IsRetryable(err) {
				fmt.Fprintln(ui.out, MutedStyle.Render("type /start to try again"))
			}
		}
	}()
}

func (ui *chatUI) handle(ctx context.Context, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/help":
		fmt.Fprintln(ui.out, MutedStyle.Render(help))
	case line == "/next":
		ui.proposals = nil
		ui.async(ctx, ui.orch.Next)
	case line == "/start":
		ui.async(ctx, ui.orch.Start)
	case line == "/stop":
		ui.proposals = nil
		ui.async(ctx, ui.orch.Stop)
	case line == "/suggest":
		ui.showSuggestions(ctx)
	case strings.HasPrefix(line, "/"):
		n, err := strconv.Atoi(line[1:])
		if err != nil || n < 1 || n > len(ui.proposals) {
			fmt.Fprintln(ui.out, NoticeStyle.Render("unknown command, type /help"))
			return false
		}
		ui.send(ctx, ui.proposals[n-1])
		ui.proposals = nil
	default:
		ui.send(ctx, line)
	}
	return false
}

func (ui *chatUI) send(ctx context.Context, text string) {
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ui.orch.Send(sctx, text); err != nil {
		fmt.Fprintln(ui.out, ErrorStyle.Render("not sent: "+err.Error()))
		return
	}
	fmt.Fprintln(ui.out, renderMessage(domain.NewChatMessage(ui.orch.Client(), text), ui.orch.Client()))
}

func (ui *chatUI) showSuggestions(ctx context.Context) {
	if ui.suggest == nil {
		fmt.Fprintln(ui.out, NoticeStyle.Render("suggestions are not configured"))
		return
	}
	last := ""
	msgs := ui.orch.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].From != ui.orch.Client() && !msgs[i].Filtered {
			last = msgs[i].Text
			break
		}
	}
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	proposals, err := ui.suggest.Suggest(sctx, last)
	if err != nil {
		log.Debug().Err(err).Str("module", "cli").Msg("suggest")
		fmt.Fprintln(ui.out, ErrorStyle.Render("error: "+err.Error()))
		return
	}
	if len(proposals) > 5 {
		proposals = proposals[:5]
	}
	ui.proposals = proposals
	for i, p := range proposals {
		fmt.Fprintf(ui.out, "%s %s\n", MutedStyle.Render(fmt.Sprintf("/%d", i+1)), p)
	}
}

// lockedWriter keeps lines from the update renderer and the input loop
// from interleaving.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
