package discord

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/infrastructure/storage"
)

const (
	// ResetCommand clears the shared conversation.
	ResetCommand = "!reset"
	// ResetAck confirms a reset.
	ResetAck = "대화 기록을 초기화했습니다."
	// ErrorReplyFormat is posted when handling a chat message fails.
	ErrorReplyFormat = "죄송합니다, 오류가 발생했습니다: %v"

	typingInterval  = 8 * time.Second
	downloadTimeout = 60 * time.Second
)

// ChatAPI is the subset of the session used while answering chat messages.
type ChatAPI interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Uploads stores downloaded attachments.
type Uploads interface {
	Save(ctx context.Context, prefix, originalName string, body io.Reader) (*storage.Stored, error)
}

// ChatHandler answers messages addressed to the bot.
type ChatHandler struct {
	service   orchestrator.Service
	histories *conversation.Registry
	tracker   *interaction.LocationTracker
	uploads   Uploads
	deliverer delivery.Deliverer
	channelID string
	http      *resty.Client
	log       zerolog.Logger
}

// NewChatHandler creates the chat boundary.
func NewChatHandler(
	service orchestrator.Service,
	histories *conversation.Registry,
	tracker *interaction.LocationTracker,
	uploads Uploads,
	deliverer delivery.Deliverer,
	channelID string,
	log zerolog.Logger,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		histories: histories,
		tracker:   tracker,
		uploads:   uploads,
		deliverer: deliverer,
		channelID: channelID,
		http:      resty.New().SetTimeout(downloadTimeout).SetRetryCount(0),
		log:       log.With().Str("component", "discord-chat").Logger(),
	}
}

// Register attaches the handler to the client's session.
func (h *ChatHandler) Register(c *Client) {
	c.Session().AddHandler(h.OnMessageCreate)
}

// OnMessageCreate is the discordgo event callback.
func (h *ChatHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if s.State == nil || s.State.User == nil {
		return
	}
	h.Handle(context.Background(), s, s.State.User.ID, m.Message)
}

// Handle processes one chat message.
func (h *ChatHandler) Handle(ctx context.Context, api ChatAPI, botID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return
	}
	if !h.addressed(botID, m) {
		return
	}

	content := StripMention(m.Content, botID)
	if content == ResetCommand {
		h.histories.Reset()
		h.post(ctx, m.ChannelID, ResetAck)
		return
	}
	if content == "" && len(m.Attachments) == 0 {
		return
	}
	if ref := m.ReferencedMessage; ref != nil && strings.TrimSpace(ref.Content) != "" {
		content = "Reply to: " + ref.Content + "\n" + content
	}

	log := h.log.With().Str("channel_id", m.ChannelID).Str("message_id", m.ID).Logger()
	stopTyping := h.keepTyping(ctx, api, m.ChannelID)
	defer stopTyping()

	req := &interaction.Request{
		ID:          uuid.NewString(),
		Source:      interaction.SourceChat,
		Location:    h.tracker.Current(),
		Text:        content,
		ChannelID:   m.ChannelID,
		ReplyInline: true,
	}
	if att := firstMedia(m.Attachments); att != nil {
		stored, err := h.download(ctx, att)
		if err != nil {
			log.Warn().Err(err).Str("attachment", att.Filename).Msg("attachment download failed")
		} else if stored.Kind == storage.KindImage {
			req.ImagePath = stored.Path
		} else {
			req.AudioPath = stored.Path
		}
	}

	out, err := h.service.Handle(ctx, req, h.histories.Shared())
	if err != nil {
		log.Error().Err(err).Msg("chat message handling failed")
		h.post(ctx, m.ChannelID, fmt.Sprintf(ErrorReplyFormat, err))
		return
	}

	// The dispatcher bounds the send and paces the chunks.
	if err := h.deliverer.Deliver(ctx, delivery.Delivery{
		Text:      out.Reply,
		AudioPath: out.VoicePath,
		ChannelID: m.ChannelID,
	}); err != nil {
		log.Error().Err(err).Msg("chat reply failed")
		return
	}
	log.Info().Str("mode", string(out.Mode)).Bool("generated", out.Generated).Msg("chat message answered")
}

// addressed reports whether the bot should answer: direct messages,
// mentions, replies to the bot and messages in the configured channel.
func (h *ChatHandler) addressed(botID string, m *discordgo.Message) bool {
	if m.GuildID == "" {
		return true
	}
	if h.channelID != "" && m.ChannelID == h.channelID {
		return true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == botID
}

// StripMention removes the bot mention in both its plain and nickname forms.
func StripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.TrimSpace(content)
}

func firstMedia(attachments []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, a := range attachments {
		if a == nil {
			continue
		}
		switch storage.KindOf(a.ContentType, a.Filename) {
		case storage.KindImage, storage.KindAudio:
			return a
		}
	}
	return nil
}

func (h *ChatHandler) download(ctx context.Context, att *discordgo.MessageAttachment) (*storage.Stored, error) {
	resp, err := h.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(att.URL)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode())
	}
	return h.uploads.Save(ctx, "discord", att.Filename, body)
}

func (h *ChatHandler) keepTyping(ctx context.Context, api ChatAPI, channelID string) func() {
	typing := func() {
		if err := api.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
			h.log.Debug().Err(err).Msg("typing indicator failed")
		}
	}
	typing()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				typing()
			}
		}
	}()
	return func() { close(done) }
}

func (h *ChatHandler) post(ctx context.Context, channelID, content string) {
	if err := h.deliverer.Deliver(ctx, delivery.Delivery{Text: content, ChannelID: channelID}); err != nil {
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("chat post failed")
	}
}
