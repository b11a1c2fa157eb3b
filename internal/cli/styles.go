package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkeye/Roulette/internal/domain"
	"github.com/dkeye/Roulette/internal/session"
)

var (
	Primary = lipgloss.Color("#22d3ee")
	Peer    = lipgloss.Color("#7C3AED")
	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	SelfStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	PeerStyle = lipgloss.NewStyle().
			Foreground(Peer).
			Bold(true)

	FilteredStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(Warning)

	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827")).
			Background(Success).
			Padding(0, 1).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)
)

var stateText = map[session.State]string{
	session.Idle:      "idle",
	session.Searching: "looking for someone",
	session.Paired:    "waiting for a partner",
	session.Active:    "connected",
	session.Leaving:   "leaving",
}

func renderState(s session.State) string {
	return StatusStyle.Render(stateText[s])
}

func renderMessage(m domain.ChatMessage, self domain.ClientID) string {
	who := PeerStyle.Render("Them")
	if m.From == self {
		who = SelfStyle.Render("You")
	}
	text := m.Text
	if m.Filtered {
		text = FilteredStyle.Render(text)
	}
	return fmt.Sprintf("%s %s %s", MutedStyle.Render(m.At.Format("15:04")), who, text)
}

// render writes one update as a line. Transitions through Leaving are
// too short to be worth showing.
func render(w io.Writer, u session.Update, self domain.ClientID) {
	switch u.Kind {
	case session.StateChanged:
		if u.State != session.Leaving {
			fmt.Fprintln(w, renderState(u.State))
		}
	case session.MessageReceived:
		fmt.Fprintln(w, renderMessage(u.Message, self))
	case session.PeerGone:
		fmt.Fprintln(w, NoticeStyle.Render("Your partner left. Finding someone new..."))
	case session.Failed:
		fmt.Fprintln(w, ErrorStyle.Render("error: "+u.Err.Error()))
	}
}
