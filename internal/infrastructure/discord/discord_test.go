package discord_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/infrastructure/discord"
	"travel-companion/internal/infrastructure/storage"
)

const botID = "bot-1"

type sent struct {
	channelID string
	content   string
	files     map[string]string
	at        time.Time
}

type MockSender struct {
	mu   sync.Mutex
	sent []sent
	Err  error
	// Release, when set, holds every send until it is closed.
	Release chan struct{}
}

func (m *MockSender) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.Release != nil {
		<-m.Release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	files := make(map[string]string)
	for _, f := range data.Files {
		b, _ := io.ReadAll(f.Reader)
		files[f.Name] = string(b)
	}
	m.sent = append(m.sent, sent{channelID: channelID, content: data.Content, files: files, at: time.Now()})
	return &discordgo.Message{}, nil
}

func (m *MockSender) Sent() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sent(nil), m.sent...)
}

type MockChatAPI struct {
	mu      sync.Mutex
	typings int
}

func (m *MockChatAPI) ChannelTyping(channelID string, options ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typings++
	return nil
}

type MockService struct {
	HandleFunc func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error)
	requests   []*interaction.Request
}

func (m *MockService) Handle(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
	m.requests = append(m.requests, req)
	return m.HandleFunc(ctx, req, history)
}

type MockGateway struct {
	mu     sync.Mutex
	ready  bool
	opens  int
	closes int
}

func (g *MockGateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opens++
	g.ready = true
	return nil
}

func (g *MockGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
	g.ready = false
	return nil
}

func (g *MockGateway) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *MockGateway) drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = false
}

func TestSink_SendsContentAndFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o644))

	sender := &MockSender{}
	sink := discord.NewSink(sender, "default", zerolog.Nop())

	require.NoError(t, sink.Send(context.Background(), delivery.Message{Content: "hi", Files: []string{path, "/missing.png"}}))
	require.NoError(t, sink.Send(context.Background(), delivery.Message{ChannelID: "other", Content: "yo"}))
	require.NoError(t, sink.Send(context.Background(), delivery.Message{}))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "default", sender.sent[0].channelID)
	assert.Equal(t, map[string]string{"reply.mp3": "ID3"}, sender.sent[0].files)
	assert.Equal(t, "other", sender.sent[1].channelID)
}

func TestSink_Errors(t *testing.T) {
	err := discord.NewSink(&MockSender{Err: errors.New("missing access")}, "c", zerolog.Nop()).
		Send(context.Background(), delivery.Message{Content: "x"})
	assert.ErrorContains(t, err, "missing access")

	err = discord.NewSink(&MockSender{}, "", zerolog.Nop()).Send(context.Background(), delivery.Message{Content: "x"})
	assert.Error(t, err)
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "hello", discord.StripMention("<@bot-1> hello", botID))
	assert.Equal(t, "hi there", discord.StripMention("hi <@!bot-1> there", botID))
}

type fixture struct {
	handler  *discord.ChatHandler
	service  *MockService
	api      *MockChatAPI
	sender   *MockSender
	registry *conversation.Registry
	tracker  *interaction.LocationTracker
}

func newFixture(t *testing.T, reply string, err error) *fixture {
	t.Helper()
	return newFixtureWithDelivery(t, reply, err, &MockSender{}, delivery.Config{Timeout: time.Second})
}

func newFixtureWithDelivery(t *testing.T, reply string, err error, sender *MockSender, cfg delivery.Config) *fixture {
	t.Helper()
	uploads, serr := storage.NewLocalStorage(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, serr)

	f := &fixture{
		api:      &MockChatAPI{},
		sender:   sender,
		registry: conversation.NewRegistry(10, zerolog.Nop()),
		tracker:  interaction.NewLocationTracker(time.Hour),
	}
	f.service = &MockService{HandleFunc: func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
		if err != nil {
			return nil, err
		}
		history.Append(req.Text, reply)
		return &orchestrator.Outcome{Mode: interaction.ModeTextGPS, Reply: reply, Generated: true}, nil
	}}
	dispatcher := delivery.NewDispatcher(discord.NewSink(f.sender, "router", zerolog.Nop()), cfg, zerolog.Nop())
	dispatcher.Start(context.Background())
	t.Cleanup(dispatcher.Stop)
	f.handler = discord.NewChatHandler(f.service, f.registry, f.tracker, uploads, dispatcher, "router", zerolog.Nop())
	return f
}

func guildMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "elsewhere",
		Content:   content,
		Author:    &discordgo.User{ID: "user-1"},
	}
}

func TestHandle_AddressedMessages(t *testing.T) {
	tests := []struct {
		name    string
		msg     func() *discordgo.Message
		handled bool
	}{
		{name: "unaddressed guild message", msg: func() *discordgo.Message { return guildMessage("hello") }},
		{name: "direct message", handled: true, msg: func() *discordgo.Message {
			m := guildMessage("hello")
			m.GuildID = ""
			return m
		}},
		{name: "mention", handled: true, msg: func() *discordgo.Message {
			m := guildMessage("<@bot-1> hello")
			m.Mentions = []*discordgo.User{{ID: botID}}
			return m
		}},
		{name: "configured channel", handled: true, msg: func() *discordgo.Message {
			m := guildMessage("hello")
			m.ChannelID = "router"
			return m
		}},
		{name: "reply to bot", handled: true, msg: func() *discordgo.Message {
			m := guildMessage("hello")
			m.ReferencedMessage = &discordgo.Message{Author: &discordgo.User{ID: botID}}
			return m
		}},
		{name: "own message", msg: func() *discordgo.Message {
			m := guildMessage("hello")
			m.GuildID = ""
			m.Author = &discordgo.User{ID: botID}
			return m
		}},
		{name: "other bot", msg: func() *discordgo.Message {
			m := guildMessage("hello")
			m.GuildID = ""
			m.Author = &discordgo.User{ID: "x", Bot: true}
			return m
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "answer", nil)
			f.handler.Handle(context.Background(), f.api, botID, tt.msg())
			if tt.handled {
				require.Len(t, f.service.requests, 1)
				assert.Equal(t, "hello", f.service.requests[0].Text)
				require.Len(t, f.sender.sent, 1)
				assert.Equal(t, "answer", f.sender.sent[0].content)
			} else {
				assert.Empty(t, f.service.requests)
				assert.Empty(t, f.sender.sent)
			}
		})
	}
}

func TestHandle_BuildsChatRequest(t *testing.T) {
	f := newFixture(t, "answer", nil)
	f.tracker.Update(&interaction.Location{Coordinates: interaction.Coordinates{Latitude: 37.5, Longitude: 127.03}})

	m := guildMessage("<@bot-1> 여기 어때?")
	m.Mentions = []*discordgo.User{{ID: botID}}
	m.ReferencedMessage = &discordgo.Message{Content: "경복궁 추천", Author: &discordgo.User{ID: botID}}
	f.handler.Handle(context.Background(), f.api, botID, m)

	require.Len(t, f.service.requests, 1)
	req := f.service.requests[0]
	assert.Equal(t, interaction.SourceChat, req.Source)
	assert.True(t, req.ReplyInline)
	assert.Equal(t, "elsewhere", req.ChannelID)
	assert.Equal(t, "Reply to: 경복궁 추천\n여기 어때?", req.Text)
	require.NotNil(t, req.Location)
	assert.Equal(t, 37.5, req.Location.Latitude)
	assert.NotEmpty(t, req.ID)

	assert.Equal(t, 2, f.registry.Shared().Len(), "chat uses the shared history")
	assert.Equal(t, "elsewhere", f.sender.sent[0].channelID)
}

func TestHandle_DownloadsFirstMediaAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0})
	}))
	defer srv.Close()

	f := newFixture(t, "a photo", nil)
	m := guildMessage("")
	m.GuildID = ""
	m.Attachments = []*discordgo.MessageAttachment{
		{Filename: "notes.txt", URL: srv.URL + "/notes"},
		{Filename: "photo.jpg", ContentType: "image/jpeg", URL: srv.URL + "/photo"},
	}
	f.handler.Handle(context.Background(), f.api, botID, m)

	require.Len(t, f.service.requests, 1)
	req := f.service.requests[0]
	assert.FileExists(t, req.ImagePath)
	assert.True(t, strings.HasPrefix(filepath.Base(req.ImagePath), "discord_"))
	assert.Empty(t, req.AudioPath)
}

func TestHandle_ResetAndErrors(t *testing.T) {
	f := newFixture(t, "", errors.New("generator unavailable"))
	f.registry.Shared().Append("q", "a")

	reset := guildMessage("!reset")
	reset.GuildID = ""
	f.handler.Handle(context.Background(), f.api, botID, reset)
	assert.Zero(t, f.registry.Shared().Len())
	assert.Empty(t, f.service.requests)

	fail := guildMessage("hello")
	fail.GuildID = ""
	f.handler.Handle(context.Background(), f.api, botID, fail)

	var posts []string
	for _, s := range f.sender.Sent() {
		posts = append(posts, s.content)
	}
	assert.Equal(t, []string{discord.ResetAck, "죄송합니다, 오류가 발생했습니다: generator unavailable"}, posts)

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.GreaterOrEqual(t, f.api.typings, 1)
}

func TestHandle_LongReplyIsPacedByDispatcher(t *testing.T) {
	const chunkDelay = 30 * time.Millisecond
	reply := strings.Repeat("가", 4500)
	f := newFixtureWithDelivery(t, reply, nil, &MockSender{}, delivery.Config{Timeout: time.Second, ChunkDelay: chunkDelay})

	m := guildMessage("hello")
	m.GuildID = ""
	f.handler.Handle(context.Background(), f.api, botID, m)

	sends := f.sender.Sent()
	require.Len(t, sends, 3)
	for i, s := range sends {
		assert.True(t, strings.HasPrefix(s.content, fmt.Sprintf("part %d/3:", i+1)))
		if i > 0 {
			assert.GreaterOrEqual(t, s.at.Sub(sends[i-1].at), chunkDelay)
		}
	}
}

func TestHandle_StuckSendTimesOut(t *testing.T) {
	sender := &MockSender{Release: make(chan struct{})}
	f := newFixtureWithDelivery(t, "answer", nil, sender, delivery.Config{Timeout: 50 * time.Millisecond})
	defer close(sender.Release)

	m := guildMessage("hello")
	m.GuildID = ""

	done := make(chan struct{})
	go func() {
		f.handler.Handle(context.Background(), f.api, botID, m)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chat handler blocked on a stuck send")
	}
	require.Len(t, f.service.requests, 1)
	assert.Equal(t, 2, f.registry.Shared().Len())
}

func TestClient_WatchdogReconnects(t *testing.T) {
	gw := &MockGateway{}
	client := discord.NewClientWithGateway(gw, 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, client.Start(context.Background()))

	assert.True(t, client.Ready())
	client.CheckConnection()
	gw.mu.Lock()
	assert.Equal(t, 1, gw.opens, "ready sessions are left alone")
	gw.mu.Unlock()

	gw.drop()
	assert.Eventually(t, gw.Ready, time.Second, 5*time.Millisecond)

	require.NoError(t, client.Stop())
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.GreaterOrEqual(t, gw.opens, 2)
	assert.False(t, gw.ready)
}
