package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/garnizeh/whitelist/internal/config"
)

// APIError is returned when Discord answers with a non 2xx status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api error: %d %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a Discord 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the Discord REST API with a bot token. It is scoped to the
// configured guild and whitelist role.
type Client struct {
	cfg    config.DiscordConfig
	base   *url.URL
	client *http.Client
	closed int32
}

// NewClient creates a bot client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg config.DiscordConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	u, err := url.ParseRequestURI(cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("invalid api base: %w", err)
	}

	logger.Info("discord: NewClient created", slog.String("api_base", cfg.APIBase), slog.Duration("timeout", cfg.Timeout))
	return &Client{cfg: cfg, base: u, client: httpClient}, nil
}

func NewDefaultClient(cfg config.DiscordConfig) (*Client, error) {
	defaultClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	return NewClient(cfg, defaultClient)
}

// Close releases idle connections. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if c.client != nil && c.client.Transport != nil {
		if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
			tr.CloseIdleConnections()
		}
	}
	return nil
}

// package-level logger for pkg/discord; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by pkg/discord. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// IsGuildMember reports whether userID belongs to the configured guild.
// A 404 from Discord means not a member; other failures are returned.
func (c *Client) IsGuildMember(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, errors.New("user id is required")
	}
	err := c.do(ctx, http.MethodGet, nil, nil, "guilds", c.cfg.GuildID, "members", userID)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// AddRole grants the whitelist role to userID.
func (c *Client) AddRole(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPut, nil, nil, c.rolePath(userID)...)
}

// RemoveRole revokes the whitelist role from userID.
func (c *Client) RemoveRole(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, c.rolePath(userID)...)
}

func (c *Client) rolePath(userID string) []string {
	return []string{"guilds", c.cfg.GuildID, "members", userID, "roles", c.cfg.WhitelistRoleID}
}

// SendDM opens a direct message channel with userID and posts the embed.
func (c *Client) SendDM(ctx context.Context, userID string, embed Embed) error {
	var channel struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, map[string]string{"recipient_id": userID}, &channel, "users", "@me", "channels"); err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	if channel.ID == "" {
		return errors.New("open dm channel: empty channel id")
	}
	if err := c.do(ctx, http.MethodPost, message{Embeds: []Embed{embed}}, nil, "channels", channel.ID, "messages"); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}

// PostWebhook delivers the embed to the configured staff webhook. It is a
// no-op when no webhook is configured.
func (c *Client) PostWebhook(ctx context.Context, embed Embed) error {
	if c.cfg.WebhookURL == "" {
		return nil
	}
	return c.send(ctx, http.MethodPost, c.cfg.WebhookURL, false, message{Embeds: []Embed{embed}}, nil)
}

type message struct {
	Embeds []Embed `json:"embeds"`
}

func (c *Client) do(ctx context.Context, method string, body, out any, segments ...string) error {
	return c.send(ctx, method, c.base.JoinPath(segments...).String(), true, body, out)
}

func (c *Client) send(ctx context.Context, method, target string, bot bool, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bot {
		req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Warn("discord: request failed", slog.String("method", method), slog.Int("status", resp.StatusCode), slog.Duration("duration", time.Since(start)))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode discord response: %w", err)
	}
	return nil
}
