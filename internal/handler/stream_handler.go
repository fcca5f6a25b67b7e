package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/middleware"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// CreateStream creates an offline stream owned by the caller.
func (h *Handler) CreateStream(c *gin.Context) {
	var req domain.CreateStreamRequest
	if !bindJSON(c, &req) {
		return
	}

	stream, err := h.svc.Streams.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "failed to create stream")
		return
	}
	response.Created(c, stream)
}

// GetStream returns a stream with its streamer.
func (h *Handler) GetStream(c *gin.Context) {
	stream, err := h.svc.Streams.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get stream")
		return
	}
	response.Success(c, stream)
}

// UpdateStream changes a stream's display metadata.
func (h *Handler) UpdateStream(c *gin.Context) {
	var req domain.UpdateStreamRequest
	if !bindJSON(c, &req) {
		return
	}

	stream, err := h.svc.Streams.Update(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "failed to update stream")
		return
	}
	response.Success(c, stream)
}

// ListLive lists live streams, most watched first.
func (h *Handler) ListLive(c *gin.Context) {
	var req domain.ListLiveRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	streams, err := h.svc.Streams.ListLive(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, err, "failed to list live streams")
		return
	}
	response.Success(c, streams)
}

// StartStream takes a stream live.
func (h *Handler) StartStream(c *gin.Context) {
	var req domain.StartStreamRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	stream, err := h.svc.Lifecycle.Start(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.TransportHandle)
	if err != nil {
		respondError(c, err, "failed to start stream")
		return
	}
	response.Success(c, stream)
}

// EndStream ends a live stream.
func (h *Handler) EndStream(c *gin.Context) {
	stream, err := h.svc.Lifecycle.End(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "failed to end stream")
		return
	}
	response.Success(c, stream)
}

// GetViewerCount recomputes and returns the live viewer count.
func (h *Handler) GetViewerCount(c *gin.Context) {
	streamID := c.Param("id")
	count, err := h.svc.Presence.GetViewerCount(c.Request.Context(), streamID)
	if err != nil {
		respondError(c, err, "failed to get viewer count")
		return
	}
	response.Success(c, gin.H{"stream_id": streamID, "viewer_count": count})
}

// JoinStream registers a viewer session. Anonymous viewers are allowed.
func (h *Handler) JoinStream(c *gin.Context) {
	var req domain.JoinStreamRequest
	if !bindJSON(c, &req) {
		return
	}

	handle, err := h.svc.Presence.Join(c.Request.Context(), c.Param("id"), req.SessionID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "failed to join stream")
		return
	}
	response.Success(c, handle)
}

// Heartbeat keeps a viewer session active. ok=false means the client has to
// join again.
func (h *Handler) Heartbeat(c *gin.Context) {
	ok, err := h.svc.Presence.Heartbeat(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err, "failed to record heartbeat")
		return
	}
	response.Success(c, gin.H{"ok": ok})
}

// LeaveStream ends a viewer session.
func (h *Handler) LeaveStream(c *gin.Context) {
	left, err := h.svc.Presence.Leave(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, err, "failed to leave stream")
		return
	}
	response.Success(c, gin.H{"left": left})
}

// GetTranscript returns a URL to the archived chat transcript of a stream.
func (h *Handler) GetTranscript(c *gin.Context) {
	if h.transcripts == nil {
		respondError(c, domain.ErrNoTranscript, "transcripts are disabled")
		return
	}

	streamID := c.Param("id")
	url, err := h.transcripts.TranscriptURL(c.Request.Context(), streamID)
	if err != nil {
		respondError(c, err, "failed to get transcript")
		return
	}
	response.Success(c, gin.H{"stream_id": streamID, "url": url})
}

// DownloadTranscript streams the archived chat transcript JSON of a stream.
func (h *Handler) DownloadTranscript(c *gin.Context) {
	if h.transcripts == nil {
		respondError(c, domain.ErrNoTranscript, "transcripts are disabled")
		return
	}

	streamID := c.Param("id")
	rc, err := h.transcripts.OpenTranscript(c.Request.Context(), streamID)
	if err != nil {
		respondError(c, err, "failed to open transcript")
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+streamID+`-transcript.json"`)
	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}
