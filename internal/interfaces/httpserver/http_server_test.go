package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/infrastructure/storage"
	"travel-companion/internal/interfaces/httpserver"
	"travel-companion/internal/interfaces/httpserver/handlers"
	"travel-companion/internal/interfaces/httpserver/middlewares"
)

const testKey = "secret-key"

type MockService struct {
	HandleFunc func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error)
	requests   []*interaction.Request
}

func (m *MockService) Handle(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
	m.requests = append(m.requests, req)
	return m.HandleFunc(ctx, req, history)
}

type MockUploads struct {
	*storage.LocalStorage
	archived []string
}

func (m *MockUploads) Archive(ctx context.Context, path string) {
	m.archived = append(m.archived, path)
}

type testServer struct {
	handler  http.Handler
	service  *MockService
	uploads  *MockUploads
	registry *conversation.Registry
	tracker  *interaction.LocationTracker
}

func newTestServer(t *testing.T, scope string, handle func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	local, err := storage.NewLocalStorage(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, err)

	cfg := &config.Config{
		ServiceName:    "travel-companion",
		Environment:    "test",
		APIKey:         testKey,
		HistoryScope:   scope,
		MaxUploadBytes: 8 << 20,
	}
	ts := &testServer{
		service:  &MockService{HandleFunc: handle},
		uploads:  &MockUploads{LocalStorage: local},
		registry: conversation.NewRegistry(10, zerolog.Nop()),
		tracker:  interaction.NewLocationTracker(time.Hour),
	}
	provider := handlers.NewProvider(cfg, ts.service, ts.registry, ts.tracker, ts.uploads, zerolog.Nop())
	ts.handler = httpserver.New(cfg, zerolog.Nop(), provider, nil).Handler()
	return ts
}

func echoReply(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
	mode := interaction.Classify(req.Presence())
	history.Append(req.Text, "reply to "+req.Text)
	return &orchestrator.Outcome{
		Mode:      mode,
		Message:   req.Text,
		Reply:     "reply to " + req.Text,
		Generated: true,
		ImagePath: req.ImagePath,
		AudioPath: req.AudioPath,
	}, nil
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, key string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if key != "" {
		req.Header.Set(middlewares.APIKeyHeader, key)
	}
	return req
}

func serve(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

const gpsBlock = "latitude=37.5665\nlongitude=126.978\nstreet=세종대로\ncity=서울"

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F', 0}

func TestUpload_RejectsBadAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "missing key"},
		{name: "wrong key", key: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, config.HistoryScopeRequest, echoReply)
			w := serve(ts, multipartRequest(t, tt.key, map[string]string{"text": gpsBlock}))

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, map[string]any{"error": "Invalid API Key"}, decode(t, w))
			assert.Empty(t, ts.service.requests)
		})
	}
}

func TestUpload_ImageTextGPS(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeRequest, echoReply)
	w := serve(ts, multipartRequest(t, testKey,
		map[string]string{"text": gpsBlock, "message": "이 건물은 뭐야?"},
		formFile{field: "image", name: "photo.jpg", data: jpegHeader},
	))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, string(interaction.ModeImageTextGPS), body["mode"])
	assert.Equal(t, "이 건물은 뭐야?", body["message"])
	assert.Equal(t, "reply to 이 건물은 뭐야?", body["llm_response"])
	assert.Equal(t, "37.5665", body["latitude"])
	assert.Equal(t, "126.978", body["longitude"])
	assert.Equal(t, "세종대로", body["street"])
	assert.Equal(t, "서울", body["city"])
	assert.Nil(t, body["audio_filename"])
	assert.Nil(t, body["response_audio"])

	filename, ok := body["filename"].(string)
	require.True(t, ok)
	assert.FileExists(t, filename)
	assert.True(t, strings.HasPrefix(filepath.Base(filename), "image_"))

	require.Len(t, ts.service.requests, 1)
	req := ts.service.requests[0]
	assert.Equal(t, interaction.SourceHTTP, req.Source)
	assert.False(t, req.ReplyInline)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, w.Header().Get(middlewares.RequestIDHeader), req.ID)

	current := ts.tracker.Current()
	require.NotNil(t, current)
	assert.Equal(t, 37.5665, current.Latitude)
}

func TestUpload_VoiceReplyIsArchived(t *testing.T) {
	voice := filepath.Join(t.TempDir(), "response_1.mp3")
	require.NoError(t, os.WriteFile(voice, []byte("ID3"), 0o644))

	ts := newTestServer(t, config.HistoryScopeRequest, func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
		return &orchestrator.Outcome{Mode: interaction.ModeAudioGPS, Reply: "안녕하세요", AudioPath: req.AudioPath, VoicePath: voice, Generated: true}, nil
	})
	w := serve(ts, multipartRequest(t, testKey,
		map[string]string{"text": gpsBlock},
		formFile{field: "voice", name: "clip.m4a", data: []byte("audio bytes")},
	))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, voice, body["response_audio"])
	assert.Equal(t, []string{voice}, ts.uploads.archived)

	require.Len(t, ts.service.requests, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(ts.service.requests[0].AudioPath), "audio_"))
	assert.Equal(t, ".m4a", filepath.Ext(ts.service.requests[0].AudioPath))
}

func TestUpload_NoGPSStillHandled(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeRequest, echoReply)
	w := serve(ts, multipartRequest(t, testKey, map[string]string{"message": "hello"}))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(interaction.ModeFallback), body["mode"])
	assert.Equal(t, "", body["latitude"])
	assert.Nil(t, ts.tracker.Current())
}

func TestUpload_InvalidGPS(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeRequest, echoReply)
	w := serve(ts, multipartRequest(t, testKey, map[string]string{"text": "latitude=abc\nlongitude=127"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "invalid gps coordinates")
	assert.Empty(t, ts.service.requests)
}

func TestUpload_ServiceErrorIs500(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeRequest, func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
		return nil, errors.New("disk full")
	})
	w := serve(ts, multipartRequest(t, testKey, map[string]string{"text": gpsBlock}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "disk full", decode(t, w)["error"])
}

func TestUpload_HistoryScope(t *testing.T) {
	tests := []struct {
		scope      string
		sharedLen  int
		secondSeen int
	}{
		{scope: config.HistoryScopeRequest, sharedLen: 0, secondSeen: 0},
		{scope: config.HistoryScopeShared, sharedLen: 4, secondSeen: 2},
	}

	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			var seen []int
			ts := newTestServer(t, tt.scope, func(ctx context.Context, req *interaction.Request, history *conversation.History) (*orchestrator.Outcome, error) {
				seen = append(seen, history.Len())
				return echoReply(ctx, req, history)
			})

			for _, msg := range []string{"first", "second"} {
				w := serve(ts, multipartRequest(t, testKey, map[string]string{"text": gpsBlock, "message": msg}))
				require.Equal(t, http.StatusOK, w.Code)
			}

			assert.Equal(t, []int{0, tt.secondSeen}, seen)
			assert.Equal(t, tt.sharedLen, ts.registry.Shared().Len())
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeShared, echoReply)
	ts.registry.Shared().Append("q", "a")

	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	w := serve(ts, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set(middlewares.APIKeyHeader, testKey)
	w = serve(ts, req)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(10), body["max_pairs"])
	assert.Len(t, body["turns"], 2)

	req = httptest.NewRequest(http.MethodDelete, "/v1/history", nil)
	req.Header.Set(middlewares.APIKeyHeader, testKey)
	w = serve(ts, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, ts.registry.Shared().Len())
}

func TestProbes(t *testing.T) {
	ts := newTestServer(t, config.HistoryScopeRequest, echoReply)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := serve(ts, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestReadyzReportsInitializing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{ServiceName: "travel-companion", APIKey: testKey, HistoryScope: config.HistoryScopeRequest}
	provider := handlers.NewProvider(cfg, &MockService{HandleFunc: echoReply}, conversation.NewRegistry(1, zerolog.Nop()), interaction.NewLocationTracker(time.Minute), nil, zerolog.Nop())
	srv := httpserver.New(cfg, zerolog.Nop(), provider, func() bool { return false })

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
