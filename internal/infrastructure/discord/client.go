// Package discord connects the service to a Discord channel: it delivers
// replies there and answers chat messages addressed to the bot.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
)

// Gateway is the part of a discordgo session the watchdog manages.
type Gateway interface {
	Open() error
	Close() error
	Ready() bool
}

// sessionGateway adapts *discordgo.Session to Gateway.
type sessionGateway struct {
	*discordgo.Session
}

func (g sessionGateway) Ready() bool {
	g.Session.RLock()
	defer g.Session.RUnlock()
	return g.Session.DataReady
}

// Client owns the bot session.
type Client struct {
	session   *discordgo.Session
	gateway   Gateway
	channelID string
	interval  time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewClient creates a bot session from configuration. It does not connect.
func NewClient(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + strings.TrimSpace(cfg.DiscordToken))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	return newClient(session, sessionGateway{session}, cfg.DiscordChannelID, cfg.ReconnectInterval, log), nil
}

func newClient(session *discordgo.Session, gw Gateway, channelID string, interval time.Duration, log zerolog.Logger) *Client {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Client{
		session:   session,
		gateway:   gw,
		channelID: channelID,
		interval:  interval,
		log:       log.With().Str("component", "discord-client").Logger(),
	}
}

// NewClientWithGateway is used by tests to drive the watchdog.
func NewClientWithGateway(gw Gateway, interval time.Duration, log zerolog.Logger) *Client {
	return newClient(nil, gw, "", interval, log)
}

// Session returns the underlying discordgo session.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// ChannelID returns the configured delivery channel.
func (c *Client) ChannelID() string {
	return c.channelID
}

// Ready reports whether the gateway session is usable.
func (c *Client) Ready() bool {
	return c.gateway.Ready()
}

// Start opens the gateway connection and launches the reconnect watchdog.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return nil
	}
	if err := c.gateway.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	go c.watch(ctx, c.stop, c.stopped)
	c.log.Info().Str("channel_id", c.channelID).Dur("watchdog_interval", c.interval).Msg("discord connected")
	return nil
}

// Stop ends the watchdog and closes the gateway.
func (c *Client) Stop() error {
	c.mu.Lock()
	stop, stopped := c.stop, c.stopped
	c.stop, c.stopped = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return c.gateway.Close()
}

func (c *Client) watch(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.CheckConnection()
		}
	}
}

// CheckConnection reopens the gateway when the session is not ready.
func (c *Client) CheckConnection() {
	if c.gateway.Ready() {
		return
	}
	c.log.Warn().Msg("discord session not ready, reconnecting")
	if err := c.gateway.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close before reconnect failed")
	}
	if err := c.gateway.Open(); err != nil {
		c.log.Error().Err(err).Msg("discord reconnect failed")
		return
	}
	c.log.Info().Msg("discord reconnected")
}
