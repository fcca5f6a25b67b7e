package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/hub"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LiveFeed upgrades to a websocket that relays the stream's presence, chat
// and lifecycle events.
func (h *Handler) LiveFeed(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.hub == nil {
		response.Error(c, http.StatusServiceUnavailable, "FEED_DISABLED", "live feed is disabled")
		return
	}

	streamID := c.Param("id")
	stream, err := h.svc.Streams.GetByID(ctx, streamID)
	if err != nil {
		respondError(c, err, "failed to get stream")
		return
	}
	if stream.Status == domain.StreamStatusEnded {
		respondError(c, domain.ErrStreamEnded, "stream has ended")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldStreamID, streamID).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), streamID, h.hub, conn, h.wsCfg)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
