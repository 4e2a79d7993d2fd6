package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// History scopes for HTTP requests.
const (
	HistoryScopeRequest = "request"
	HistoryScopeShared  = "shared"
)

// Config holds all configuration for the travel-companion service.
type Config struct {
	// Service settings
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"travel-companion"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPHost        string        `env:"HOST" envDefault:"0.0.0.0"`
	HTTPPort        int           `env:"PORT" envDefault:"5000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`

	// Static API key for the upload boundary
	APIKey string `env:"API_KEY"`

	// OpenTelemetry
	EnableTracing bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`

	// Files
	UploadFolder   string `env:"UPLOAD_FOLDER" envDefault:"uploads"`
	ResponseFolder string `env:"RESPONSE_FOLDER" envDefault:"responses"`

	// Conversation
	HistorySize  int           `env:"HISTORY_SIZE" envDefault:"10"`
	HistoryScope string        `env:"HISTORY_SCOPE" envDefault:"request"`
	LocationTTL  time.Duration `env:"LOCATION_TTL" envDefault:"30m"`

	// Generation
	LLMProvider     string        `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	GeminiModel     string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash-lite"`
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	OpenAIChatModel string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	MaxToolDepth    int           `env:"LLM_MAX_TOOL_DEPTH" envDefault:"6"`
	ToolCallTimeout time.Duration `env:"TOOL_CALL_TIMEOUT" envDefault:"60s"`
	ProactivePlaces bool          `env:"PROACTIVE_PLACES" envDefault:"false"`
	UserPreference  string        `env:"USER_PREFERENCE" envDefault:"한식과 현지 음식을 좋아하고, 도보로 이동 가능한 곳을 선호합니다."`

	// Places
	GMapsAPIKey        string        `env:"GMAPS_API_KEY"`
	PlacesRadiusMeters int           `env:"PLACES_RADIUS_METERS" envDefault:"1000"`
	PlacesLimit        int           `env:"PLACES_LIMIT" envDefault:"20"`
	PlacesLanguage     string        `env:"PLACES_LANGUAGE" envDefault:"ko"`
	PlacesRouteEnrich  bool          `env:"PLACES_ROUTE_ENRICH" envDefault:"false"`
	PlacesTimeout      time.Duration `env:"PLACES_TIMEOUT" envDefault:"15s"`

	// Web search
	SearchEngines      []string      `env:"SEARCH_ENGINES" envDefault:"serper,searxng,duckduckgo" envSeparator:","`
	SerperAPIKey       string        `env:"SERPER_API_KEY"`
	SearxngURL         string        `env:"SEARXNG_URL"`
	SearchMaxResults   int           `env:"SEARCH_MAX_RESULTS" envDefault:"40"`
	SearchExtractLimit int           `env:"SEARCH_EXTRACT_LIMIT" envDefault:"8"`
	SearchWorkers      int           `env:"SEARCH_WORKERS" envDefault:"10"`
	HTTPTimeout        time.Duration `env:"SEARCH_HTTP_TIMEOUT" envDefault:"15s"`
	ScrapeTimeout      time.Duration `env:"SEARCH_SCRAPE_TIMEOUT" envDefault:"30s"`

	// Retry settings
	RetryMaxAttempts   int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryInitialDelay  time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"500ms"`
	RetryMaxDelay      time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	RetryBackoffFactor float64       `env:"RETRY_BACKOFF_FACTOR" envDefault:"2"`

	// Circuit breaker settings
	CBEnabled          bool          `env:"CB_ENABLED" envDefault:"true"`
	CBFailureThreshold int           `env:"CB_FAILURE_THRESHOLD" envDefault:"10"`
	CBSuccessThreshold int           `env:"CB_SUCCESS_THRESHOLD" envDefault:"3"`
	CBTimeout          time.Duration `env:"CB_TIMEOUT" envDefault:"45s"`
	CBMaxHalfOpen      int           `env:"CB_MAX_HALF_OPEN" envDefault:"5"`

	// Discord
	DiscordToken       string        `env:"DISCORD_TOKEN"`
	DiscordServerID    string        `env:"SERVER_ID"`
	DiscordChannelID   string        `env:"CHANNEL_ID"`
	DiscordChatEnabled bool          `env:"DISCORD_CHAT_ENABLED" envDefault:"true"`
	DeliveryTimeout    time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`
	DeliveryChunkDelay time.Duration `env:"DELIVERY_CHUNK_DELAY" envDefault:"1s"`
	DeliveryQueueSize  int           `env:"DELIVERY_QUEUE_SIZE" envDefault:"64"`
	ReconnectInterval  time.Duration `env:"DISCORD_RECONNECT_INTERVAL" envDefault:"5m"`

	// Media
	ImageMaxBytes      int64    `env:"IMAGE_MAX_BYTES" envDefault:"7864320"`
	AudioTranscodeExts []string `env:"AUDIO_TRANSCODE_EXTS" envDefault:".m4a,.aac,.amr,.3gp,.caf" envSeparator:","`
	FFmpegPath         string   `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	// Speech
	STTTier        string  `env:"STT_TIER" envDefault:"base"`
	STTModelBase   string  `env:"STT_MODEL_BASE" envDefault:"whisper-1"`
	STTModelMedium string  `env:"STT_MODEL_MEDIUM" envDefault:"whisper-1"`
	STTModelLarge  string  `env:"STT_MODEL_LARGE" envDefault:"whisper-1"`
	STTLanguage    string  `env:"STT_LANGUAGE" envDefault:"ko"`
	TTSModel       string  `env:"TTS_MODEL" envDefault:"tts-1"`
	TTSGender      string  `env:"TTS_GENDER" envDefault:"female"`
	TTSSpeed       float64 `env:"TTS_SPEED" envDefault:"1.0"`
	SpeechAPIKey   string  `env:"SPEECH_API_KEY"`
	SpeechAPIBase  string  `env:"SPEECH_API_BASE_URL"`

	// Storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3AccessKeyID  string `env:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
	S3Prefix       string `env:"S3_PREFIX" envDefault:"travel-companion"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.HistorySize)
	}

	switch c.HistoryScope {
	case HistoryScopeRequest, HistoryScopeShared:
	default:
		return fmt.Errorf("HISTORY_SCOPE must be %q or %q, got %q", HistoryScopeRequest, HistoryScopeShared, c.HistoryScope)
	}

	switch strings.ToLower(c.LLMProvider) {
	case "gemini":
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER is gemini")
		}
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER is openai")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.STTTier {
	case "base", "medium", "large":
	default:
		return fmt.Errorf("STT_TIER must be base, medium or large, got %q", c.STTTier)
	}

	if c.StorageBackend == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND is s3")
	}
	if c.ImageMaxBytes <= 0 {
		return fmt.Errorf("IMAGE_MAX_BYTES must be positive")
	}
	return nil
}

// Addr returns the HTTP server address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// DiscordEnabled reports whether a chat sink is configured.
func (c *Config) DiscordEnabled() bool {
	return strings.TrimSpace(c.DiscordToken) != "" && strings.TrimSpace(c.DiscordChannelID) != ""
}

// SpeechKey returns the key used for transcription and synthesis.
func (c *Config) SpeechKey() string {
	if strings.TrimSpace(c.SpeechAPIKey) != "" {
		return c.SpeechAPIKey
	}
	return c.OpenAIAPIKey
}
