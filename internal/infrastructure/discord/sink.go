package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"travel-companion/internal/domain/delivery"
)

// MessageSender is the discordgo call used to post messages.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sink posts delivery messages to a Discord channel.
type Sink struct {
	sender         MessageSender
	defaultChannel string
	log            zerolog.Logger
}

// NewSink creates a sink that posts to defaultChannel unless a message
// names another channel.
func NewSink(sender MessageSender, defaultChannel string, log zerolog.Logger) *Sink {
	return &Sink{
		sender:         sender,
		defaultChannel: defaultChannel,
		log:            log.With().Str("component", "discord-sink").Logger(),
	}
}

// NewSinkFromClient posts through the client's session.
func NewSinkFromClient(c *Client, log zerolog.Logger) *Sink {
	return NewSink(c.Session(), c.ChannelID(), log)
}

// Send posts one message with its attachments.
func (s *Sink) Send(ctx context.Context, msg delivery.Message) error {
	channelID := msg.ChannelID
	if channelID == "" {
		channelID = s.defaultChannel
	}
	if channelID == "" {
		return errors.New("no discord channel configured")
	}

	files := make([]*discordgo.File, 0, len(msg.Files))
	for _, path := range msg.Files {
		f, err := os.Open(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("skipping attachment")
			continue
		}
		defer f.Close()

		contentType := "application/octet-stream"
		if mt, err := mimetype.DetectFile(path); err == nil {
			contentType = mt.String()
		}
		files = append(files, &discordgo.File{
			Name:        filepath.Base(path),
			ContentType: contentType,
			Reader:      f,
		})
	}

	if msg.Content == "" && len(files) == 0 {
		return nil
	}

	_, err := s.sender.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files:   files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	s.log.Debug().Str("channel_id", channelID).Int("runes", len([]rune(msg.Content))).Int("files", len(files)).Msg("discord message sent")
	return nil
}
