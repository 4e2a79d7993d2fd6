package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/domain/generation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/media"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/domain/prompt"
)

type MockGenerator struct {
	mu           sync.Mutex
	calls        []generation.Request
	GenerateFunc func(ctx context.Context, req generation.Request) (*generation.Result, error)
}

func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &generation.Result{Text: "reply"}, nil
}

func (m *MockGenerator) Calls() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.calls...)
}

type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, path string, tier media.Tier) (string, bool)
}

func (m *MockTranscriber) Transcribe(ctx context.Context, path string, tier media.Tier) (string, bool) {
	return m.TranscribeFunc(ctx, path, tier)
}

type MockAudio struct {
	PrepareAudioFunc func(ctx context.Context, path string) (string, error)
}

func (m *MockAudio) PrepareAudio(ctx context.Context, path string) (string, error) {
	return m.PrepareAudioFunc(ctx, path)
}

type MockSynthesizer struct {
	Path string
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, gender media.Gender, speed float64) (string, bool) {
	return m.Path, m.Path != ""
}

type MockDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery.Delivery
}

func (m *MockDeliverer) Deliver(ctx context.Context, d delivery.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, d)
	return nil
}

type toolArgs struct {
	Query string `json:"query"`
}

func newTools() *generation.Registry {
	noop := func(ctx context.Context, args toolArgs) (any, error) { return nil, nil }
	return generation.NewRegistry(
		generation.NewFuncTool(interaction.ToolNearbyPlaces, "places", noop),
		generation.NewFuncTool(interaction.ToolWebSearch, "search", noop),
	)
}

func newService(t *testing.T, deps orchestrator.Dependencies) orchestrator.Service {
	t.Helper()
	builder, err := prompt.NewBuilder(prompt.NewClock(nil), prompt.NewDetector(), "")
	require.NoError(t, err)
	deps.Prompts = builder
	if deps.Tools == nil {
		deps.Tools = newTools()
	}
	svc, err := orchestrator.New(deps, orchestrator.Config{ImageMaxBytes: 1 << 20}, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func seoul() *interaction.Location {
	return &interaction.Location{Coordinates: interaction.Coordinates{Latitude: 37.50, Longitude: 127.03}}
}

func TestHandle_GPSOnlyRoundTrip(t *testing.T) {
	gen := &MockGenerator{}
	svc := newService(t, orchestrator.Dependencies{Generator: gen})
	history := conversation.NewHistory(10)

	out, err := svc.Handle(context.Background(), &interaction.Request{ID: "r1", Location: seoul()}, history)
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	contents := calls[0].Contents
	require.Len(t, contents, 2)
	assert.Equal(t, generation.RoleSystem, contents[0].Role)
	assert.Contains(t, contents[0].Text(), "Restaurant Recommendation Expert System")
	assert.Contains(t, contents[1].Text(), "위도 37.5, 경도 127.03")
	assert.Equal(t, []string{interaction.ToolNearbyPlaces}, calls[0].ToolNames())

	assert.Equal(t, interaction.ModeGPSOnly, out.Mode)
	assert.Equal(t, "reply", out.Reply)
	assert.True(t, out.Generated)
	assert.Equal(t, 2, history.Len())
}

func TestHandle_AudioTranscriptionFailure(t *testing.T) {
	gen := &MockGenerator{}
	svc := newService(t, orchestrator.Dependencies{
		Generator: gen,
		Transcriber: &MockTranscriber{TranscribeFunc: func(context.Context, string, media.Tier) (string, bool) {
			return "", false
		}},
	})
	history := conversation.NewHistory(10)

	out, err := svc.Handle(context.Background(), &interaction.Request{Location: seoul(), AudioPath: "corrupt.wav"}, history)
	require.NoError(t, err)

	assert.Empty(t, gen.Calls())
	assert.Equal(t, interaction.ModeAudioGPS, out.Mode)
	assert.Equal(t, orchestrator.TranscriptionApology, out.Reply)
	snapshot := history.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, orchestrator.TranscriptionApology, conversation.LastAssistant(snapshot))
}

func TestHandle_TranscriptBecomesUserText(t *testing.T) {
	gen := &MockGenerator{}
	svc := newService(t, orchestrator.Dependencies{
		Generator: gen,
		Transcriber: &MockTranscriber{TranscribeFunc: func(context.Context, string, media.Tier) (string, bool) {
			return "근처 카페 알려줘", true
		}},
	})

	out, err := svc.Handle(context.Background(), &interaction.Request{Location: seoul(), AudioPath: "clip.mp3"}, conversation.NewHistory(10))
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "근처 카페 알려줘", calls[0].Contents[len(calls[0].Contents)-1].Text())
	assert.ElementsMatch(t, []string{interaction.ToolNearbyPlaces, interaction.ToolWebSearch}, calls[0].ToolNames())
	assert.Equal(t, "근처 카페 알려줘", out.Message)
}

func TestHandle_FallbackAcknowledgesEmptyInput(t *testing.T) {
	gen := &MockGenerator{}
	deliverer := &MockDeliverer{}
	svc := newService(t, orchestrator.Dependencies{Generator: gen, Deliverer: deliverer})
	history := conversation.NewHistory(10)

	out, err := svc.Handle(context.Background(), &interaction.Request{}, history)
	require.NoError(t, err)

	assert.Equal(t, interaction.ModeFallback, out.Mode)
	assert.Equal(t, orchestrator.ProcessedAck, out.Reply)
	assert.Empty(t, gen.Calls())
	assert.Equal(t, 0, history.Len())
	require.Len(t, deliverer.deliveries, 1)
	assert.Equal(t, orchestrator.ProcessedAck, deliverer.deliveries[0].Text)
}

func TestHandle_FallbackIgnoresUntranscribableClip(t *testing.T) {
	failing := &MockTranscriber{TranscribeFunc: func(context.Context, string, media.Tier) (string, bool) {
		return "", false
	}}

	t.Run("image still generates", func(t *testing.T) {
		gen := &MockGenerator{}
		svc := newService(t, orchestrator.Dependencies{Generator: gen, Transcriber: failing})
		history := conversation.NewHistory(10)

		out, err := svc.Handle(context.Background(), &interaction.Request{ImagePath: "street.jpg", AudioPath: "broken.m4a"}, history)
		require.NoError(t, err)

		assert.Equal(t, interaction.ModeFallback, out.Mode)
		assert.Equal(t, "reply", out.Reply)
		assert.True(t, out.Generated)

		calls := gen.Calls()
		require.Len(t, calls, 1)
		final := calls[0].Contents[len(calls[0].Contents)-1]
		require.Len(t, final.Parts, 1)
		assert.Equal(t, "street.jpg", final.Parts[0].ImagePath)

		snapshot := history.Snapshot()
		require.Len(t, snapshot, 2)
		assert.Equal(t, orchestrator.ImagePlaceholder, snapshot[0].Content)
	})

	t.Run("clip alone is acknowledged", func(t *testing.T) {
		gen := &MockGenerator{}
		svc := newService(t, orchestrator.Dependencies{Generator: gen, Transcriber: failing})
		history := conversation.NewHistory(10)

		out, err := svc.Handle(context.Background(), &interaction.Request{AudioPath: "broken.m4a"}, history)
		require.NoError(t, err)

		assert.Equal(t, interaction.ModeFallback, out.Mode)
		assert.Equal(t, orchestrator.ProcessedAck, out.Reply)
		assert.Empty(t, gen.Calls())
		assert.Equal(t, 0, history.Len())
	})
}

func TestHandle_GenerationErrorIsCommitted(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, generation.Request) (*generation.Result, error)
		want string
	}{
		{
			name: "transport error",
			fn: func(context.Context, generation.Request) (*generation.Result, error) {
				return nil, errors.New("boom")
			},
			want: "오류: boom",
		},
		{
			name: "empty text",
			fn: func(context.Context, generation.Request) (*generation.Result, error) {
				return &generation.Result{Text: "  "}, nil
			},
			want: "오류: " + generation.ErrEmptyResponse.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, orchestrator.Dependencies{Generator: &MockGenerator{GenerateFunc: tt.fn}})
			history := conversation.NewHistory(10)

			out, err := svc.Handle(context.Background(), &interaction.Request{Location: seoul(), Text: "hi"}, history)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Reply)
			assert.False(t, out.Generated)

			snapshot := history.Snapshot()
			require.Len(t, snapshot, 2)
			assert.Equal(t, conversation.Turn{Role: conversation.RoleUser, Content: "hi"}, snapshot[0])
			assert.Equal(t, tt.want, snapshot[1].Content)
		})
	}
}

func TestHandle_ImageGroupedWithFinalMessage(t *testing.T) {
	gen := &MockGenerator{}
	svc := newService(t, orchestrator.Dependencies{Generator: gen})
	history := conversation.NewHistory(10)
	history.Append("earlier question", "earlier answer")

	_, err := svc.Handle(context.Background(), &interaction.Request{
		Location:  seoul(),
		ImagePath: "menu.jpg",
		Text:      "이 메뉴 번역해줘",
	}, history)
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	contents := calls[0].Contents
	require.Len(t, contents, 4)
	assert.Equal(t, "earlier question", contents[1].Text())
	assert.Equal(t, generation.RoleAssistant, contents[2].Role)
	assert.False(t, contents[1].HasImage())
	assert.False(t, contents[2].HasImage())

	final := contents[3]
	assert.Equal(t, generation.RoleUser, final.Role)
	require.Len(t, final.Parts, 2)
	assert.Equal(t, "이 메뉴 번역해줘", final.Parts[0].Text)
	assert.Equal(t, "menu.jpg", final.Parts[1].ImagePath)
	assert.Equal(t, []string{interaction.ToolWebSearch}, calls[0].ToolNames())
}

func TestHandle_UnusableAudioIsDropped(t *testing.T) {
	gen := &MockGenerator{}
	svc := newService(t, orchestrator.Dependencies{
		Generator: gen,
		Audio: &MockAudio{PrepareAudioFunc: func(context.Context, string) (string, error) {
			return "", media.ErrUnusableAudio
		}},
	})

	out, err := svc.Handle(context.Background(), &interaction.Request{Location: seoul(), AudioPath: "clip.amr"}, conversation.NewHistory(10))
	require.NoError(t, err)
	assert.Equal(t, interaction.ModeGPSOnly, out.Mode)
	assert.Empty(t, out.AudioPath)
	assert.Len(t, gen.Calls(), 1)
}

func TestHandle_VoicedModeSendsVoiceSeparately(t *testing.T) {
	deliverer := &MockDeliverer{}
	svc := newService(t, orchestrator.Dependencies{
		Generator:   &MockGenerator{},
		Synthesizer: &MockSynthesizer{Path: "responses/response_1.mp3"},
		Deliverer:   deliverer,
	})

	out, err := svc.Handle(context.Background(), &interaction.Request{Location: seoul(), ImagePath: "art.jpg"}, conversation.NewHistory(10))
	require.NoError(t, err)
	assert.Equal(t, interaction.ModeImageGPS, out.Mode)
	assert.Equal(t, "responses/response_1.mp3", out.VoicePath)

	require.Len(t, deliverer.deliveries, 2)
	assert.Equal(t, "reply", deliverer.deliveries[0].Text)
	assert.Equal(t, "art.jpg", deliverer.deliveries[0].ImagePath)
	assert.False(t, deliverer.deliveries[0].MediaOnly)
	assert.True(t, deliverer.deliveries[1].MediaOnly)
	assert.Equal(t, "responses/response_1.mp3", deliverer.deliveries[1].AudioPath)
}

func TestHandle_ReplyInlineSkipsDelivery(t *testing.T) {
	deliverer := &MockDeliverer{}
	svc := newService(t, orchestrator.Dependencies{Generator: &MockGenerator{}, Deliverer: deliverer})

	_, err := svc.Handle(context.Background(), &interaction.Request{Text: "hello", ReplyInline: true}, conversation.NewHistory(10))
	require.NoError(t, err)
	assert.Empty(t, deliverer.deliveries)
}

func TestHandle_ConcurrentRequestsKeepPairs(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, req generation.Request) (*generation.Result, error) {
		last := req.Contents[len(req.Contents)-1].Text()
		return &generation.Result{Text: "answer to " + last}, nil
	}}
	svc := newService(t, orchestrator.Dependencies{Generator: gen})
	shared := conversation.NewHistory(10)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Handle(context.Background(), &interaction.Request{Text: fmt.Sprintf("q%d", i)}, shared)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot := shared.Snapshot()
	require.Len(t, snapshot, 4)
	for i := 0; i < len(snapshot); i += 2 {
		assert.Equal(t, conversation.RoleUser, snapshot[i].Role)
		assert.Equal(t, "answer to "+snapshot[i].Content, snapshot[i+1].Content)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := orchestrator.New(orchestrator.Dependencies{}, orchestrator.Config{}, zerolog.Nop())
	assert.Error(t, err)
}
