package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/conversation"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/domain/orchestrator"
	"travel-companion/internal/infrastructure/storage"
	"travel-companion/internal/interfaces/httpserver/middlewares"
	"travel-companion/internal/interfaces/httpserver/responses"
	"travel-companion/internal/utils/platformerrors"
)

// Multipart field names of the upload form.
const (
	FieldGPS     = "text"
	FieldImage   = "image"
	FieldVoice   = "voice"
	FieldMessage = "message"

	multipartMemory = 32 << 20
)

// Uploads stores incoming files and archives generated ones.
type Uploads interface {
	Save(ctx context.Context, prefix, originalName string, body io.Reader) (*storage.Stored, error)
	Archive(ctx context.Context, path string)
}

// UploadHandler accepts the companion's multipart uploads.
type UploadHandler struct {
	service   orchestrator.Service
	histories *conversation.Registry
	scope     conversation.Scope
	tracker   *interaction.LocationTracker
	uploads   Uploads
	maxBytes  int64
	log       zerolog.Logger
}

// NewUploadHandler creates the upload handler.
func NewUploadHandler(
	cfg *config.Config,
	service orchestrator.Service,
	histories *conversation.Registry,
	tracker *interaction.LocationTracker,
	uploads Uploads,
	log zerolog.Logger,
) *UploadHandler {
	scope := conversation.ScopeRequest
	if cfg.HistoryScope == config.HistoryScopeShared {
		scope = conversation.ScopeShared
	}
	return &UploadHandler{
		service:   service,
		histories: histories,
		scope:     scope,
		tracker:   tracker,
		uploads:   uploads,
		maxBytes:  cfg.MaxUploadBytes,
		log:       log.With().Str("component", "upload-handler").Logger(),
	}
}

// Upload handles POST /upload.
func (h *UploadHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		errorType := platformerrors.ErrorTypeValidation
		if tooLarge(err) {
			errorType = platformerrors.ErrorTypeTooLarge
		}
		platformerrors.WriteError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler, errorType, "invalid upload form", err, ""), h.log)
		return
	}

	loc, err := interaction.ParseGPSBlock(c.PostForm(FieldGPS))
	if err != nil {
		platformerrors.WriteError(c, platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, err.Error(), err, ""), h.log)
		return
	}

	imagePath, err := h.save(c, FieldImage, "image")
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	audioPath, err := h.save(c, FieldVoice, "audio")
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	message := c.PostForm(FieldMessage)

	if loc != nil {
		h.tracker.Update(loc)
	}

	requestID := middlewares.GetRequestID(c)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req := &interaction.Request{
		ID:        requestID,
		Source:    interaction.SourceHTTP,
		Location:  loc,
		ImagePath: imagePath,
		AudioPath: audioPath,
		Text:      message,
	}

	out, err := h.service.Handle(ctx, req, h.histories.ForScope(h.scope))
	if err != nil {
		platformerrors.WriteError(c, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "upload handling failed"), h.log)
		return
	}
	if out.VoicePath != "" {
		h.uploads.Archive(ctx, out.VoicePath)
	}

	resp := responses.UploadResponse{
		Status:        responses.StatusSuccess,
		Filename:      responses.Nullable(out.ImagePath),
		AudioFilename: responses.Nullable(out.AudioPath),
		ResponseAudio: responses.Nullable(out.VoicePath),
		Message:       message,
		LLMResponse:   out.Reply,
		Mode:          string(out.Mode),
	}
	if loc != nil {
		resp.Latitude = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		resp.Longitude = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		resp.Street = loc.Street
		resp.City = loc.City
	}
	c.JSON(http.StatusOK, resp)
}

// save stores the named form file and returns its path, or "" when the
// field is absent or carries no file name.
func (h *UploadHandler) save(c *gin.Context, field, prefix string) (string, error) {
	ctx := c.Request.Context()
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, fmt.Sprintf("invalid %s field", field), err, "")
	}
	if header.Filename == "" {
		return "", nil
	}

	stored, err := h.store(ctx, prefix, header)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerHandler, platformerrors.ErrorTypeInternal, "failed to store upload", err, "")
	}
	h.log.Debug().Str("field", field).Str("path", stored.Path).Str("original", header.Filename).Str("mime", stored.MIME).Msg("upload stored")
	return stored.Path, nil
}

func (h *UploadHandler) store(ctx context.Context, prefix string, header *multipart.FileHeader) (*storage.Stored, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return h.uploads.Save(ctx, prefix, header.Filename, f)
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
