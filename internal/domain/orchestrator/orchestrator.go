// Package orchestrator turns one interaction request into a reply: it
// preprocesses media, classifies the request, renders the prompt, calls the
// generator, commits the turn pair and fans the reply out to the sink.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/delivery"
	"travel-companion/internal/domain/generation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/media"
	"travel-companion/internal/domain/prompt"
	"travel-companion/internal/infrastructure/metrics"
	"travel-companion/internal/infrastructure/observability"
)

// User facing strings.
const (
	// TranscriptionApology replaces the reply when a voice clip yields no text.
	TranscriptionApology = "음성 메시지를 처리할 수 없습니다. 텍스트로 변환 중 오류가 발생했습니다."
	// ProcessedAck is returned for requests with nothing to generate from.
	ProcessedAck = "제공된 정보를 처리했습니다."
	// VoicePlaceholder is the user turn stored for an untranscribable clip.
	VoicePlaceholder = "[음성 메시지]"
	// ImagePlaceholder is the user turn stored for an image without text.
	ImagePlaceholder = "[사진]"
)

// Outcome statuses recorded in metrics.
const (
	OutcomeGenerated     = "generated"
	OutcomeGenerationErr = "generation_error"
	OutcomeApology       = "transcription_failed"
	OutcomeAcknowledged  = "acknowledged"
)

// PlacesDigester fetches a short text summary of places near a fix.
type PlacesDigester interface {
	Digest(ctx context.Context, coords interaction.Coordinates, keyword string) (string, error)
}

// Config contains orchestrator configuration.
type Config struct {
	ImageMaxBytes   int64
	TranscribeTier  media.Tier
	VoiceGender     media.Gender
	VoiceSpeed      float64
	ProactivePlaces bool
}

// Dependencies are the collaborators of the orchestrator. Speech, places and
// delivery are optional.
type Dependencies struct {
	Generator   generation.Generator
	Tools       *generation.Registry
	Prompts     *prompt.Builder
	Images      media.ImagePreparer
	Audio       media.AudioPreparer
	Transcriber media.Transcriber
	Synthesizer media.Synthesizer
	Places      PlacesDigester
	Deliverer   delivery.Deliverer
}

// Outcome is the result of handling one request.
type Outcome struct {
	Mode          interaction.Mode
	Message       string
	Reply         string
	UsedToolCalls bool
	Generated     bool
	ImagePath     string
	AudioPath     string
	VoicePath     string
}

// Service handles interaction requests.
type Service interface {
	Handle(ctx context.Context, req *interaction.Request, history *conversation.History) (*Outcome, error)
}

type orchestrator struct {
	deps Dependencies
	cfg  Config
	log  zerolog.Logger
}

// New creates an orchestrator.
func New(deps Dependencies, cfg Config, log zerolog.Logger) (Service, error) {
	if deps.Generator == nil {
		return nil, errors.New("orchestrator requires a generator")
	}
	if deps.Prompts == nil {
		return nil, errors.New("orchestrator requires a prompt builder")
	}
	if deps.Tools == nil {
		deps.Tools = generation.NewRegistry()
	}
	if cfg.TranscribeTier == "" {
		cfg.TranscribeTier = media.TierBase
	}
	if cfg.VoiceGender == "" {
		cfg.VoiceGender = media.GenderFemale
	}
	if cfg.VoiceSpeed <= 0 {
		cfg.VoiceSpeed = 1.0
	}
	return &orchestrator{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Handle runs the request through preprocessing, classification, generation
// and delivery. The returned error is only set for failures outside the
// degraded paths; generation errors become the reply.
func (o *orchestrator) Handle(ctx context.Context, req *interaction.Request, history *conversation.History) (*Outcome, error) {
	if req == nil {
		return nil, errors.New("nil interaction request")
	}
	if history == nil {
		return nil, errors.New("nil conversation history")
	}

	ctx, span := observability.Tracer().Start(ctx, "orchestrator.Handle",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("request.source", string(req.Source)),
		))
	defer span.End()

	log := o.log.With().Str("request_id", req.ID).Str("source", string(req.Source)).Logger()

	imagePath, audioPath := o.preprocess(ctx, req, log)
	prepared := *req
	prepared.ImagePath = imagePath
	prepared.AudioPath = audioPath

	mode := interaction.Classify(prepared.Presence())
	profile := interaction.ProfileFor(mode)
	span.SetAttributes(attribute.String("interaction.mode", string(mode)))
	log = log.With().Str("mode", string(mode)).Logger()

	out := &Outcome{Mode: mode, ImagePath: imagePath, AudioPath: audioPath}

	message, ok := o.userMessage(ctx, &prepared, profile, log)
	if !ok {
		history.Append(VoicePlaceholder, TranscriptionApology)
		out.Message = VoicePlaceholder
		out.Reply = TranscriptionApology
		metrics.RecordInteraction(string(mode), string(req.Source), OutcomeApology)
		o.deliver(ctx, &prepared, profile, out, log)
		return out, nil
	}
	out.Message = message

	if strings.TrimSpace(message) == "" && imagePath == "" {
		out.Reply = ProcessedAck
		metrics.RecordInteraction(string(mode), string(req.Source), OutcomeAcknowledged)
		o.deliver(ctx, &prepared, profile, out, log)
		return out, nil
	}

	contents, err := o.contents(ctx, &prepared, profile, message, history, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tools := o.deps.Tools.Resolve(profile.Tools)
	start := time.Now()
	result, genErr := o.deps.Generator.Generate(ctx, generation.Request{Contents: contents, Tools: tools})
	metrics.RecordGeneration(string(mode), time.Since(start).Seconds())
	if genErr == nil && (result == nil || strings.TrimSpace(result.Text) == "") {
		genErr = generation.ErrEmptyResponse
	}

	stored := storedMessage(message)
	if genErr != nil {
		span.RecordError(genErr)
		log.Error().Err(genErr).Msg("generation failed")
		reply := conversation.ErrorReply(genErr)
		history.Append(stored, reply)
		out.Reply = reply
		metrics.RecordInteraction(string(mode), string(req.Source), OutcomeGenerationErr)
	} else {
		snapshot := history.AppendAndSnapshot(stored, result.Text)
		out.Reply = conversation.LastAssistant(snapshot)
		out.UsedToolCalls = result.ToolCalls > 0
		out.Generated = true
		metrics.RecordInteraction(string(mode), string(req.Source), OutcomeGenerated)
	}

	if profile.Voiced && out.Generated {
		out.VoicePath = o.synthesize(ctx, out.Reply, log)
	}

	o.deliver(ctx, &prepared, profile, out, log)

	log.Info().
		Bool("generated", out.Generated).
		Bool("used_tools", out.UsedToolCalls).
		Int("reply_chars", len([]rune(out.Reply))).
		Msg("interaction handled")
	return out, nil
}

// preprocess shrinks the image and converts the audio concurrently. Both are
// best effort: image failures keep the original file, audio failures drop
// the clip.
func (o *orchestrator) preprocess(ctx context.Context, req *interaction.Request, log zerolog.Logger) (string, string) {
	imagePath, audioPath := req.ImagePath, req.AudioPath

	g, gctx := errgroup.WithContext(ctx)
	if imagePath != "" && o.deps.Images != nil {
		g.Go(func() error {
			resized, err := o.deps.Images.PrepareImage(gctx, req.ImagePath, o.cfg.ImageMaxBytes)
			if err != nil {
				metrics.RecordMediaPreprocess("image", "error")
				log.Warn().Err(err).Str("path", req.ImagePath).Msg("image preparation failed, using original")
				return nil
			}
			metrics.RecordMediaPreprocess("image", "ok")
			imagePath = resized
			return nil
		})
	}
	if audioPath != "" && o.deps.Audio != nil {
		g.Go(func() error {
			converted, err := o.deps.Audio.PrepareAudio(gctx, req.AudioPath)
			if err != nil {
				metrics.RecordMediaPreprocess("audio", "unusable")
				log.Warn().Err(err).Str("path", req.AudioPath).Msg("audio unusable, ignoring clip")
				audioPath = ""
				return nil
			}
			metrics.RecordMediaPreprocess("audio", "ok")
			audioPath = converted
			return nil
		})
	}
	// Both goroutines log their own failures and never return an error.
	g.Wait()
	return imagePath, audioPath
}

// userMessage resolves the text of the new user turn. ok is false when the
// text had to come from a clip that could not be transcribed.
func (o *orchestrator) userMessage(ctx context.Context, req *interaction.Request, profile interaction.Profile, log zerolog.Logger) (string, bool) {
	text := strings.TrimSpace(req.Text)

	switch profile.Mode {
	case interaction.ModeGPSOnly, interaction.ModeImageGPS:
		return o.deps.Prompts.LocationMessage(*req.Location), true
	case interaction.ModeImageAudioGPS, interaction.ModeAudioGPS:
		return o.transcribe(ctx, req.AudioPath, log)
	case interaction.ModeFallback:
		if text == "" && req.AudioPath != "" {
			// An unusable clip is ignored here; the image or the
			// acknowledgement still answers the request.
			transcript, _ := o.transcribe(ctx, req.AudioPath, log)
			return transcript, true
		}
		return text, true
	default:
		return text, true
	}
}

func (o *orchestrator) transcribe(ctx context.Context, path string, log zerolog.Logger) (string, bool) {
	if o.deps.Transcriber == nil {
		log.Warn().Msg("no transcriber configured")
		return "", false
	}
	text, ok := o.deps.Transcriber.Transcribe(ctx, path, o.cfg.TranscribeTier)
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		metrics.RecordMediaPreprocess("transcription", "empty")
		log.Warn().Str("path", path).Msg("transcription produced no text")
		return "", false
	}
	metrics.RecordMediaPreprocess("transcription", "ok")
	return text, true
}

// contents builds [system, history..., final user element]. The image, when
// present, is grouped into the final element.
func (o *orchestrator) contents(ctx context.Context, req *interaction.Request, profile interaction.Profile, message string, history *conversation.History, log zerolog.Logger) ([]generation.Content, error) {
	in := prompt.Input{Profile: profile, Location: req.Location, UserText: message}
	if profile.ProactivePlaces && o.cfg.ProactivePlaces && o.deps.Places != nil && req.Location != nil {
		digest, err := o.deps.Places.Digest(ctx, req.Location.Coordinates, "restaurant")
		if err != nil {
			log.Warn().Err(err).Msg("proactive places lookup failed")
		} else {
			in.Places = digest
		}
	}

	system, err := o.deps.Prompts.System(in)
	if err != nil {
		return nil, err
	}

	snapshot := history.Snapshot()
	contents := make([]generation.Content, 0, len(snapshot)+2)
	contents = append(contents, generation.TextContent(generation.RoleSystem, system))
	for _, turn := range snapshot {
		role := generation.RoleUser
		if turn.Role == conversation.RoleAssistant {
			role = generation.RoleAssistant
		}
		contents = append(contents, generation.TextContent(role, turn.Content))
	}

	final := generation.Content{Role: generation.RoleUser}
	if message != "" {
		final.Parts = append(final.Parts, generation.Part{Text: message})
	}
	if req.ImagePath != "" {
		final.Parts = append(final.Parts, generation.Part{ImagePath: req.ImagePath})
	}
	contents = append(contents, final)
	return contents, nil
}

func (o *orchestrator) synthesize(ctx context.Context, reply string, log zerolog.Logger) string {
	if o.deps.Synthesizer == nil {
		return ""
	}
	path, ok := o.deps.Synthesizer.Synthesize(ctx, reply, o.cfg.VoiceGender, o.cfg.VoiceSpeed)
	if !ok {
		metrics.RecordMediaPreprocess("synthesis", "error")
		log.Warn().Msg("speech synthesis failed, sending text only")
		return ""
	}
	metrics.RecordMediaPreprocess("synthesis", "ok")
	return path
}

// deliver sends the reply to the sink. Voiced modes send the synthesized
// clip as a second, media-only delivery. Failures are logged only.
func (o *orchestrator) deliver(ctx context.Context, req *interaction.Request, profile interaction.Profile, out *Outcome, log zerolog.Logger) {
	if o.deps.Deliverer == nil || req.ReplyInline {
		return
	}

	main := delivery.Delivery{
		Text:      out.Reply,
		AudioPath: out.AudioPath,
		Location:  req.Location,
		ChannelID: req.ChannelID,
	}
	if profile.AttachImage {
		main.ImagePath = out.ImagePath
	}
	if profile.Voiced {
		main.AudioPath = ""
	}

	if err := o.deps.Deliverer.Deliver(ctx, main); err != nil {
		log.Warn().Err(err).Msg("reply delivery failed")
	}

	if profile.Voiced && out.VoicePath != "" {
		voice := delivery.Delivery{AudioPath: out.VoicePath, MediaOnly: true, ChannelID: req.ChannelID}
		if err := o.deps.Deliverer.Deliver(ctx, voice); err != nil {
			log.Warn().Err(err).Msg("voice delivery failed")
		}
	}
}

func storedMessage(message string) string {
	if strings.TrimSpace(message) == "" {
		return ImagePlaceholder
	}
	return message
}
