// Package reddit implements the authenticated listing source client.
//
// The client is owned by the single ingestion task; it is not safe for
// concurrent use and keeps its auth and rate-limit state unshared.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/tkclough/salescrawler/internal/model"
)

// ErrReauthenticate is returned when a request is attempted without a
// valid access token.
var ErrReauthenticate = errors.New("access token missing or expired")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the listing source credentials and polling settings.
type Config struct {
	AuthHost     string `toml:"auth_host"`
	APIHost      string `toml:"api_host"`
	TokenFile    string `toml:"token_file"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	UserAgent    string `toml:"user_agent"`
	Subreddit    string `toml:"subreddit"`
	PageSize     int    `toml:"page_size"`
	WaitTimeSecs int    `toml:"wait_time_secs"`
}

// Auth is the access token plus the rate-limit feedback from the most
// recent API response. It is persisted to the token file so a restart
// reuses the token until it expires.
type Auth struct {
	AccessToken        string    `json:"access_token"`
	ExpiresAt          time.Time `json:"expires_at"`
	RatelimitUsed      uint64    `json:"ratelimit_used"`
	RatelimitRemaining uint64    `json:"ratelimit_remaining"`
	RatelimitResetSecs uint64    `json:"ratelimit_reset_secs"`
}

// Client talks to the listing API.
type Client struct {
	cfg    Config
	client HTTPClient
	auth   *Auth
	log    *slog.Logger
}

// New creates a Client with the given HTTP transport.
func New(cfg Config, client HTTPClient, log *slog.Logger) *Client {
	return &Client{cfg: cfg, client: client, log: log}
}

// AuthExpired reports whether the client needs to (re)authenticate
// before its next API call.
func (c *Client) AuthExpired() bool {
	return c.auth == nil || c.auth.ExpiresAt.Before(time.Now())
}

// WaitTime returns how long to wait before the next poll: the
// configured interval, unless the remote quota is exhausted, in which
// case the remote-reported reset duration.
func (c *Client) WaitTime() time.Duration {
	wait := time.Duration(c.cfg.WaitTimeSecs) * time.Second
	if c.auth != nil && c.auth.RatelimitRemaining == 0 {
		return time.Duration(c.auth.RatelimitResetSecs) * time.Second
	}
	return wait
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Authenticate obtains a fresh access token with the password grant and
// persists it to the token file.
func (c *Client) Authenticate(ctx context.Context) error {
	query := url.Values{}
	query.Set("grant_type", "password")
	query.Set("username", c.cfg.Username)
	query.Set("password", c.cfg.Password)

	authURL, err := url.JoinPath(c.cfg.AuthHost, "access_token")
	if err != nil {
		return fmt.Errorf("build auth url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create auth request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	requestedAt := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth request: unexpected status %d", resp.StatusCode)
	}

	var token accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}

	c.auth = &Auth{
		AccessToken:        token.AccessToken,
		ExpiresAt:          requestedAt.Add(time.Duration(token.ExpiresIn) * time.Second),
		RatelimitRemaining: 1,
		RatelimitResetSecs: 3600,
	}
	c.log.Info("authenticated with listing source", "expires_at", c.auth.ExpiresAt)

	return c.writeAuthFile()
}

// ReadAuthFile loads a previously persisted token. A missing file or an
// expired token leaves the client unauthenticated without error.
func (c *Client) ReadAuthFile() error {
	data, err := os.ReadFile(c.cfg.TokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var auth Auth
	if err := json.Unmarshal(data, &auth); err != nil {
		return fmt.Errorf("decode token file: %w", err)
	}
	if auth.ExpiresAt.After(time.Now()) {
		c.auth = &auth
		c.log.Info("reusing persisted token", "expires_at", auth.ExpiresAt)
	}
	return nil
}

func (c *Client) writeAuthFile() error {
	data, err := json.Marshal(c.auth)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(c.cfg.TokenFile, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

type listingEnvelope struct {
	Data struct {
		After    *string `json:"after"`
		Before   *string `json:"before"`
		Children []struct {
			Data model.Listing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchNew returns the newest page of listings for the configured
// subreddit and records the rate-limit feedback the API reports.
func (c *Client) FetchNew(ctx context.Context) ([]model.Listing, error) {
	if c.AuthExpired() {
		return nil, ErrReauthenticate
	}

	apiURL, err := url.JoinPath(c.cfg.APIHost, "r", c.cfg.Subreddit, "new")
	if err != nil {
		return nil, fmt.Errorf("build listing url: %w", err)
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.cfg.PageSize))
	query.Set("count", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create listing request: %w", err)
	}
	req.Header.Set("Authorization", "bearer "+c.auth.AccessToken)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing request: unexpected status %d", resp.StatusCode)
	}

	if err := c.updateRatelimit(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read listing response: %w", err)
	}

	var envelope listingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode listing response: %w", err)
	}

	listings := make([]model.Listing, 0, len(envelope.Data.Children))
	for _, child := range envelope.Data.Children {
		listings = append(listings, child.Data)
	}
	return listings, nil
}

// updateRatelimit captures the quota feedback headers reported after
// every call and persists them alongside the token. The values are
// fractional on the wire and floored here.
func (c *Client) updateRatelimit(resp *http.Response) error {
	used, err := ratelimitHeader(resp, "X-Ratelimit-Used")
	if err != nil {
		return err
	}
	remaining, err := ratelimitHeader(resp, "X-Ratelimit-Remaining")
	if err != nil {
		return err
	}
	reset, err := ratelimitHeader(resp, "X-Ratelimit-Reset")
	if err != nil {
		return err
	}

	c.auth.RatelimitUsed = used
	c.auth.RatelimitRemaining = remaining
	c.auth.RatelimitResetSecs = reset
	c.log.Debug("ratelimit feedback", "used", used, "remaining", remaining, "reset_secs", reset)

	return c.writeAuthFile()
}

func ratelimitHeader(resp *http.Response, name string) (uint64, error) {
	raw := resp.Header.Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing header %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse header %s: %w", name, err)
	}
	return uint64(math.Floor(v)), nil
}
