package toxicity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/dkeye/Roulette/internal/domain"
)

// OpeningPrompt is used when nothing has been received yet.
const OpeningPrompt = "Give a beautiful pickup line to start a conversation."

var numberedQuote = regexp.MustCompile(`\d\.\s"([^"]*)"`)

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Suggester asks a hosted text generator for reply ideas.
type Suggester struct {
	endpoint
}

func NewSuggester(url, token string, hc *http.Client) *Suggester {
	return &Suggester{endpoint{URL: url, Token: token, HTTP: hc}}
}

// Suggest proposes replies to received, the last message from the peer.
func (s *Suggester) Suggest(ctx context.Context, received string) ([]string, error) {
	if received == "" {
		received = OpeningPrompt
	}
	prompt := fmt.Sprintf("User received the message: %q. Suggest five responses.", received)
	body, err := s.post(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out []generation
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode generation: %w", domain.ErrCollaboratorUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no generated text", domain.ErrCollaboratorUnavailable)
	}
	return ParseSuggestions(out[0].GeneratedText), nil
}

// ParseSuggestions extracts the quoted items of a numbered list.
func ParseSuggestions(text string) []string {
	var out []string
	for _, m := range numberedQuote.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}
