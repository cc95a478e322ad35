package image

import (
	"context"
	"errors"
	"net/http"

	"imagehost/internal/domain"
	"imagehost/internal/events"
	"imagehost/internal/middleware"
	"imagehost/internal/pkg/response"
	"imagehost/internal/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const wsMaxMessageSize = 512

// Handler serves image, open-trigger, stream and cleanup endpoints.
type Handler struct {
	service  *Service
	opener   Opener
	sweeper  Sweeper
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(service *Service, opener Opener, sweeper Sweeper, hub *events.Hub, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		opener:  opener,
		sweeper: sweeper,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// share links are opened from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Upload godoc
// @Summary Upload an image
// @Description Stores an image with an expiry policy: never, on-open, 1-hour, 1-day, 3-days, 7-days or a Go duration. Guests may upload without a token.
// @Tags Images
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image to upload"
// @Param expiry formData string false "Expiry policy"
// @Param album_id formData string false "Target album (owner only)"
// @Success 201 {object} response.Envelope{data=ImageResponse}
// @Failure 400,403,413,503 {object} response.Envelope
// @Router /images [post]
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.cfg.MaxFileSize+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, ErrFileTooLarge)
			return
		}
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "no file provided")
		return
	}

	img, err := h.service.Upload(c.Request.Context(), UploadInput{
		OwnerID: middleware.UserID(c),
		AlbumID: c.PostForm("album_id"),
		Expiry:  c.PostForm("expiry"),
		File:    fileHeader,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, toResponse(img))
}

// GetByID godoc
// @Summary Get image metadata
// @Tags Images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} response.Envelope{data=ImageResponse}
// @Failure 404,410,503 {object} response.Envelope
// @Router /images/{id} [get]
func (h *Handler) GetByID(c *gin.Context) {
	img, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(img))
}

// Delete godoc
// @Summary Delete an image
// @Description Removes the record, notifies viewers, then deletes the file. Files that could not be deleted are listed in storageFailures.
// @Tags Images
// @Produce json
// @Security BearerAuth
// @Param id path string true "Image ID"
// @Success 200 {object} response.Envelope{data=DeleteResponse}
// @Failure 401,403,404,503 {object} response.Envelope
// @Router /images/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	failed, err := h.service.Delete(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, DeleteResponse{Deleted: true, StorageFailures: failed})
}

// Move godoc
// @Summary Move images into an album
// @Description Moving into a private album removes any expiry.
// @Tags Images
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body MoveRequest true "Images and target album"
// @Success 200 {object} response.Envelope{data=MoveResponse}
// @Failure 400,401,403,404,503 {object} response.Envelope
// @Router /images/move [post]
func (h *Handler) Move(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", errs)
		return
	}

	res, err := h.service.Move(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// CreateAlbum godoc
// @Summary Create an album
// @Tags Albums
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateAlbumRequest true "Album"
// @Success 201 {object} response.Envelope{data=domain.Album}
// @Failure 400,401,503 {object} response.Envelope
// @Router /albums [post]
func (h *Handler) CreateAlbum(c *gin.Context) {
	var req CreateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", errs)
		return
	}

	album, err := h.service.CreateAlbum(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, album)
}

// Open godoc
// @Summary Start the on-open countdown
// @Description The first open by anyone but the owner commits expires_at. Later opens return the committed value with alreadyOpened=true. The {expires_at, alreadyOpened} payload is the envelope's data field.
// @Tags Expiry
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} response.Envelope{data=expiry.OpenResult}
// @Failure 404,503 {object} response.Envelope
// @Router /resource/{id}/open [post]
func (h *Handler) Open(c *gin.Context) {
	res, err := h.opener.Trigger(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Stream godoc
// @Summary Live events for one image
// @Description text/event-stream of connected, updated, expired, deleted and ping events, framed as "event:<kind>" and "data:<json>" lines. The stream ends after deleted.
// @Tags Expiry
// @Produce text/event-stream
// @Param id path string true "Image ID"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} response.Envelope
// @Router /stream/resource/{id} [get]
func (h *Handler) Stream(c *gin.Context) {
	id := c.Param("id")
	sub, err := h.subscribe(c, id)
	if err != nil {
		writeError(c, err)
		return
	}

	events.PrepareSSE(c.Writer)
	_ = sub.Serve(c.Request.Context(), events.NewSSETransport(c.Writer))
}

// StreamWS godoc
// @Summary Live events for one image over a websocket
// @Description Same events as the SSE stream, as JSON messages {"event": kind, "data": {...}}.
// @Tags Expiry
// @Param id path string true "Image ID"
// @Router /ws/resource/{id} [get]
func (h *Handler) StreamWS(c *gin.Context) {
	id := c.Param("id")
	sub, err := h.subscribe(c, id)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.logger.Debug().Err(err).Str("resource_id", id).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Inbound messages are ignored; a read error means the client left.
	go func() {
		defer cancel()
		conn.SetReadLimit(wsMaxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = sub.Serve(ctx, events.NewWSTransport(conn))
}

// subscribe registers before looking the image up, so a delete that lands
// in between still reaches the subscriber.
func (h *Handler) subscribe(c *gin.Context, id string) (*events.Subscription, error) {
	sub := h.hub.Subscribe(id)
	if err := h.service.Exists(c.Request.Context(), id); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Cleanup godoc
// @Summary Run one sweeper pass now
// @Tags Expiry
// @Produce json
// @Security BearerAuth
// @Description The {deleted, storageFailures, ms} summary is the envelope's data field. A failed pass returns 503 with the partial summary in error.details.
// @Success 200 {object} response.Envelope{data=expiry.Result}
// @Failure 401,403,503 {object} response.Envelope
// @Router /cleanup-expired [post]
func (h *Handler) Cleanup(c *gin.Context) {
	res, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Int("deleted", res.Deleted).Msg("on-demand sweep aborted")
		response.ErrorWithDetails(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "sweep aborted, retry later", res)
		return
	}
	response.Success(c, http.StatusOK, res)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyFile):
		response.Error(c, http.StatusBadRequest, "EMPTY_FILE", err.Error())
	case errors.Is(err, ErrInvalidMimeType):
		response.Error(c, http.StatusBadRequest, "INVALID_MIME_TYPE", err.Error())
	case errors.Is(err, ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, ErrExpired):
		response.Error(c, http.StatusGone, "EXPIRED", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, domain.ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "you do not own this resource")
	case errors.Is(err, domain.ErrStoreUnavailable):
		_ = c.Error(err)
		response.Error(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "storage temporarily unavailable, retry later")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}
