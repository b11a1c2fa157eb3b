// Package toxicity calls hosted text models: a toxicity classifier that
// screens inbound chat, and a text generator that proposes replies.
package toxicity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

const maxBody = 1 << 20

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// endpoint is a bearer-authenticated inference url.
type endpoint struct {
	URL   string
	Token string
	HTTP  *http.Client
}

func (e endpoint) post(ctx context.Context, inputs string) ([]byte, error) {
	b, err := json.Marshal(inferenceRequest{Inputs: inputs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}
	hc := e.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCollaboratorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server error: %d", domain.ErrCollaboratorUnavailable, resp.StatusCode)
	}
	return body, nil
}

// Classifier scores text with a hosted sequence classifier.
type Classifier struct {
	endpoint
}

var _ core.ToxicityFilter = (*Classifier)(nil)

func NewClassifier(url, token string, hc *http.Client) *Classifier {
	return &Classifier{endpoint{URL: url, Token: token, HTTP: hc}}
}

// Classify returns the label scores for text. The hosted API answers
// with one list per input; a flat list is accepted too.
func (c *Classifier) Classify(ctx context.Context, text string) ([]core.LabelScore, error) {
	body, err := c.post(ctx, text)
	if err != nil {
		return nil, err
	}
	var nested [][]core.LabelScore
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("%w: empty classification", domain.ErrCollaboratorUnavailable)
		}
		return nested[0], nil
	}
	var flat []core.LabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("%w: decode classification: %w", domain.ErrCollaboratorUnavailable, err)
	}
	return flat, nil
}
