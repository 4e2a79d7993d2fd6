// Package speech transcribes voice clips and voices replies through an
// OpenAI-compatible audio API.
package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/media"
	"travel-companion/internal/infrastructure/metrics"
	"travel-companion/internal/infrastructure/resilience"
)

// AudioClient is the subset of the go-openai client used here.
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// LanguageDetector returns an ISO 639-1 code for a text, or "".
type LanguageDetector interface {
	Detect(text string) string
}

// Config captures the speech settings.
type Config struct {
	Models         map[media.Tier]string
	Language       string
	TTSModel       string
	ResponseFolder string
	Retry          resilience.RetryConfig
	Breaker        resilience.CircuitBreakerConfig
}

// ConfigFromService derives speech settings from service configuration.
func ConfigFromService(cfg *config.Config) Config {
	return Config{
		Models: map[media.Tier]string{
			media.TierBase:   cfg.STTModelBase,
			media.TierMedium: cfg.STTModelMedium,
			media.TierLarge:  cfg.STTModelLarge,
		},
		Language:       cfg.STTLanguage,
		TTSModel:       cfg.TTSModel,
		ResponseFolder: cfg.ResponseFolder,
		Retry:          resilience.RetryFromConfig(cfg),
		Breaker:        resilience.BreakerFromConfig(cfg),
	}
}

// NewClientFromConfig builds the go-openai client for audio endpoints.
func NewClientFromConfig(cfg *config.Config) AudioClient {
	clientCfg := openai.DefaultConfig(cfg.SpeechKey())
	if base := strings.TrimSpace(cfg.SpeechAPIBase); base != "" {
		clientCfg.BaseURL = base
	}
	return openai.NewClientWithConfig(clientCfg)
}

var markdownMarkers = regexp.MustCompile("[*_`~#]")

// voices maps a language code and gender to a synthesized voice.
var voices = map[string]map[media.Gender]openai.SpeechVoice{
	"ko": {media.GenderFemale: openai.VoiceNova, media.GenderMale: openai.VoiceOnyx},
	"en": {media.GenderFemale: openai.VoiceShimmer, media.GenderMale: openai.VoiceEcho},
	"ja": {media.GenderFemale: openai.VoiceNova, media.GenderMale: openai.VoiceFable},
	"zh": {media.GenderFemale: openai.VoiceShimmer, media.GenderMale: openai.VoiceOnyx},
}

// VoiceFor picks a voice for a language and gender. Unknown languages use
// the Korean voices; unknown genders use the female voice.
func VoiceFor(language string, gender media.Gender) openai.SpeechVoice {
	byGender, ok := voices[language]
	if !ok {
		byGender = voices["ko"]
	}
	if v, ok := byGender[gender]; ok {
		return v
	}
	return byGender[media.GenderFemale]
}

// StripMarkdown removes the markers a speech engine would read aloud.
func StripMarkdown(text string) string {
	return strings.TrimSpace(markdownMarkers.ReplaceAllString(text, ""))
}

// Service implements media.Transcriber and media.Synthesizer.
type Service struct {
	client   AudioClient
	cfg      Config
	detector LanguageDetector
	breaker  *resilience.CircuitBreaker
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates the speech service.
func NewService(client AudioClient, cfg Config, detector LanguageDetector, log zerolog.Logger) *Service {
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.TTSModel1)
	}
	if cfg.ResponseFolder == "" {
		cfg.ResponseFolder = "responses"
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	return &Service{
		client:   client,
		cfg:      cfg,
		detector: detector,
		breaker:  resilience.NewCircuitBreaker("openai-audio", cfg.Breaker),
		now:      time.Now,
		log:      log.With().Str("component", "speech").Logger(),
	}
}

// WithNow overrides the clock used for output file names.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) model(tier media.Tier) string {
	if m := s.cfg.Models[tier]; m != "" {
		return m
	}
	if m := s.cfg.Models[media.TierBase]; m != "" {
		return m
	}
	return openai.Whisper1
}

// Transcribe returns the text spoken in the clip. ok is false when the call
// failed or nothing was recognized.
func (s *Service) Transcribe(ctx context.Context, path string, tier media.Tier) (string, bool) {
	start := time.Now()
	var text string
	err := s.breaker.Execute(func() error {
		res, err := resilience.WithRetry(ctx, s.cfg.Retry, "transcribe", func() (openai.AudioResponse, error) {
			return s.client.CreateTranscription(ctx, openai.AudioRequest{
				Model:    s.model(tier),
				FilePath: path,
				Language: s.cfg.Language,
				Format:   openai.AudioResponseFormatJSON,
			})
		})
		text = res.Text
		return err
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency("openai-transcription", status, time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Str("tier", string(tier)).Msg("transcription failed")
		return "", false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.log.Warn().Str("path", path).Msg("transcription returned no text")
		return "", false
	}
	return text, true
}

// Synthesize voices text into an mp3 in the response folder. ok is false
// when there is nothing to say or the call failed.
func (s *Service) Synthesize(ctx context.Context, text string, gender media.Gender, speed float64) (string, bool) {
	spoken := StripMarkdown(text)
	if spoken == "" {
		return "", false
	}

	language := ""
	if s.detector != nil {
		language = s.detector.Detect(spoken)
	}
	if speed <= 0 {
		speed = 1.0
	}

	path, err := s.synthesize(ctx, spoken, VoiceFor(language, gender), speed)
	if err != nil {
		s.log.Error().Err(err).Msg("speech synthesis failed")
		return "", false
	}
	return path, true
}

func (s *Service) synthesize(ctx context.Context, text string, voice openai.SpeechVoice, speed float64) (string, error) {
	if err := os.MkdirAll(s.cfg.ResponseFolder, 0o755); err != nil {
		return "", fmt.Errorf("create response folder: %w", err)
	}
	path := filepath.Join(s.cfg.ResponseFolder, fmt.Sprintf("response_%d.mp3", s.now().UnixNano()))

	start := time.Now()
	err := s.breaker.Execute(func() error {
		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(s.cfg.TTSModel),
			Input:          text,
			Voice:          voice,
			ResponseFormat: openai.SpeechResponseFormatMp3,
			Speed:          speed,
		})
		if err != nil {
			return fmt.Errorf("create speech: %w", err)
		}
		defer resp.Close()

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create speech file: %w", err)
		}
		if _, err := io.Copy(f, resp); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return fmt.Errorf("write speech file: %w", err)
		}
		return f.Close()
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency("openai-speech", status, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return path, nil
}
