package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/hub"
	"github.com/weiawesome/wes-io-live/internal/service"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/middleware"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// Services groups the services behind the HTTP API.
type Services struct {
	Streams   service.StreamService
	Lifecycle service.LifecycleService
	Presence  service.PresenceService
	Rooms     service.ChatRoomService
	Messages  service.MessageService
	Users     service.UserService
	Dashboard service.DashboardService
}

// TranscriptLocator resolves archived chat transcripts.
type TranscriptLocator interface {
	TranscriptURL(ctx context.Context, streamID string) (string, error)
	OpenTranscript(ctx context.Context, streamID string) (io.ReadCloser, error)
}

// Handler handles HTTP requests for stream-service.
type Handler struct {
	svc            Services
	transcripts    TranscriptLocator
	hub            *hub.Hub
	wsCfg          config.WebSocketConfig
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler. transcripts and feed may be nil,
// which disables the transcript and live feed routes.
func NewHandler(svc Services, transcripts TranscriptLocator, feed *hub.Hub, wsCfg config.WebSocketConfig, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		svc:            svc,
		transcripts:    transcripts,
		hub:            feed,
		wsCfg:          wsCfg,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	auth := h.authMiddleware.RequireAuth()
	optional := h.authMiddleware.OptionalAuth()

	api := r.Group("/api/v1")
	{
		streams := api.Group("/streams")
		{
			// Public routes
			streams.GET("/live", h.ListLive)
			streams.GET("/:id", h.GetStream)
			streams.GET("/:id/viewers", h.GetViewerCount)
			streams.GET("/:id/chat", h.GetChatRoom)
			streams.GET("/:id/transcript", h.GetTranscript)
			streams.GET("/:id/transcript/download", h.DownloadTranscript)
			streams.GET("/:id/live", h.LiveFeed)
			streams.POST("/:id/join", optional, h.JoinStream)

			// Protected routes
			streams.POST("", auth, h.CreateStream)
			streams.PATCH("/:id", auth, h.UpdateStream)
			streams.POST("/:id/start", auth, h.StartStream)
			streams.POST("/:id/end", auth, h.EndStream)
			streams.POST("/:id/chat", auth, h.CreateChatRoom)
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("/:sessionId/heartbeat", h.Heartbeat)
			sessions.DELETE("/:sessionId", h.LeaveStream)
		}

		chat := api.Group("/chat")
		{
			chat.GET("/rooms/:roomId/messages", h.ListMessages)
			chat.PATCH("/rooms/:roomId", auth, h.UpdateChatRoom)
			chat.POST("/rooms/:roomId/messages", auth, h.SendMessage)
			chat.DELETE("/messages/:messageId", auth, h.DeleteMessage)
		}

		users := api.Group("/users")
		{
			users.GET("/:id", h.GetProfile)
			users.GET("/:id/streams", h.ListUserStreams)
			users.GET("/:id/follow", auth, h.FollowStatus)
			users.POST("/:id/follow", auth, h.Follow)
			users.DELETE("/:id/follow", auth, h.Unfollow)
		}

		api.PUT("/me/profile", auth, h.UpsertProfile)

		dashboard := api.Group("/dashboard", auth)
		{
			dashboard.GET("/stats", h.DashboardStats)
			dashboard.GET("/streams", h.MyStreams)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps a domain error to its HTTP status. Errors outside the
// domain taxonomy are logged and reported as internal errors.
func respondError(c *gin.Context, err error, fallback string) {
	code := domain.CodeOf(err)
	msg := err.Error()

	var status int
	switch {
	case errors.Is(err, domain.ErrSlowMode):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusUnprocessableEntity
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Str(log.FieldPath, c.FullPath()).Msg(fallback)
		response.InternalError(c, fallback)
		return
	}
	response.Error(c, status, code, msg)
}

// bindJSON binds the request body, answering 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Str(log.FieldPath, c.FullPath()).Msg("failed to bind request")
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}
