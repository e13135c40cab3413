// Package sms sends text alerts through a Twilio-style messaging API.
// It serves the out-of-core alerting path only; listing matches go
// through the chat sink.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the messaging API credentials and phone numbers.
type Config struct {
	APIURL          string `toml:"api_url"`
	APIKey          string `toml:"api_key"`
	APIKeySecret    string `toml:"api_key_secret"`
	AccountSID      string `toml:"account_sid"`
	PhoneNumberFrom string `toml:"phone_number_from"`
	PhoneNumberTo   string `toml:"phone_number_to"`
}

// Receipt is the delivery receipt returned for a sent message.
type Receipt struct {
	URI string `json:"uri"`
}

// Client sends text messages between the two configured numbers.
type Client struct {
	cfg    Config
	client HTTPClient
}

// New creates a Client with the given HTTP transport.
func New(cfg Config, client HTTPClient) *Client {
	return &Client{cfg: cfg, client: client}
}

// SendText delivers one text message and returns its receipt.
func (c *Client) SendText(ctx context.Context, body string) (*Receipt, error) {
	apiURL, err := url.JoinPath(c.cfg.APIURL, c.cfg.AccountSID, "Messages.json")
	if err != nil {
		return nil, fmt.Errorf("build message url: %w", err)
	}

	form := url.Values{}
	form.Set("Body", body)
	form.Set("From", c.cfg.PhoneNumberFrom)
	form.Set("To", c.cfg.PhoneNumberTo)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create message request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APIKeySecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("message request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("message request: unexpected status %d", resp.StatusCode)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}
