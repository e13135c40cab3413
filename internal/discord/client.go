// Package discord implements the chat notification sink: a thin client
// for posting messages to a single channel.
//
// The client is owned by the single notify task; it is not safe for
// concurrent use and keeps its rate-limit state unshared.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// ErrOutOfRequests is returned when the remote quota reported by the
// previous response is exhausted. The send is not attempted and not
// retried.
var ErrOutOfRequests = errors.New("no requests remaining")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the chat sink credentials and batching settings.
type Config struct {
	Token               string `toml:"token"`
	UserAgent           string `toml:"user_agent"`
	APIURL              string `toml:"api_url"`
	ChannelID           string `toml:"channel_id"`
	SendingIntervalSecs int    `toml:"sending_interval_secs"`
}

// CreateMessageRequest is the body of a channel message.
type CreateMessageRequest struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed is one rich block inside a message.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Client posts messages to the configured channel.
type Client struct {
	cfg       Config
	client    HTTPClient
	remaining uint64
	log       *slog.Logger
}

// New creates a Client with the given HTTP transport.
func New(cfg Config, client HTTPClient, log *slog.Logger) *Client {
	// one request is assumed available until the API says otherwise
	return &Client{cfg: cfg, client: client, remaining: 1, log: log}
}

// CreateMessage sends one message to the channel. It fails immediately
// with ErrOutOfRequests when the quota reported by the previous call is
// exhausted.
func (c *Client) CreateMessage(ctx context.Context, msg *CreateMessageRequest) error {
	if c.remaining == 0 {
		return ErrOutOfRequests
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	msgURL, err := url.JoinPath(c.cfg.APIURL, "channels", c.cfg.ChannelID, "messages")
	if err != nil {
		return fmt.Errorf("build message url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msgURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create message request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("message request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("message request: unexpected status %d", resp.StatusCode)
	}

	return c.updateRatelimit(resp)
}

func (c *Client) updateRatelimit(resp *http.Response) error {
	raw := resp.Header.Get("X-RateLimit-Remaining")
	if raw == "" {
		return fmt.Errorf("missing header X-RateLimit-Remaining")
	}
	remaining, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse header X-RateLimit-Remaining: %w", err)
	}
	c.remaining = remaining
	c.log.Debug("notifier quota", "remaining", remaining)
	return nil
}
