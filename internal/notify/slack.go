package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	slackTimeout  = 10 * time.Second
	slackUsername = "netvigil"
	// Slack rejects header blocks longer than this.
	slackHeaderMax = 150
)

var (
	ErrSlackDisabled    = errors.New("slack disabled")
	ErrSlackRateLimited = errors.New("slack rate limited")
)

// Slack posts transition notices to an incoming webhook as a header block
// followed by the body in mrkdwn. Text carries the same content for clients
// that do not render blocks.
type Slack struct {
	Webhook  string
	Username string
	Client   *http.Client
}

// NewSlack returns nil when webhook is empty so callers can skip it.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook:  webhook,
		Username: slackUsername,
		Client:   &http.Client{Timeout: slackTimeout},
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
}

type slackMessage struct {
	Username string       `json:"username,omitempty"`
	Text     string       `json:"text"`
	Blocks   []slackBlock `json:"blocks"`
}

func newSlackMessage(username, title, text string) slackMessage {
	header := title
	if len(header) > slackHeaderMax {
		header = header[:slackHeaderMax]
	}
	msg := slackMessage{
		Username: username,
		Text:     "*" + title + "*\n" + text,
		Blocks:   []slackBlock{{Type: "header", Text: slackText{Type: "plain_text", Text: header}}},
	}
	if strings.TrimSpace(text) != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{Type: "section", Text: slackText{Type: "mrkdwn", Text: text}})
	}
	return msg
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return ErrSlackDisabled
	}
	body, err := json.Marshal(newSlackMessage(s.Username, title, text))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (retry after %ss)", ErrSlackRateLimited, resp.Header.Get("Retry-After"))
	case resp.StatusCode/100 != 2:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
