package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/middleware"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// GetChatRoom returns the chat room of a stream.
func (h *Handler) GetChatRoom(c *gin.Context) {
	room, err := h.svc.Rooms.GetByStreamID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get chat room")
		return
	}
	if room == nil {
		respondError(c, domain.ErrRoomNotFound, "chat room not found")
		return
	}
	response.Success(c, room)
}

// CreateChatRoom creates the chat room of a stream with an initial policy.
func (h *Handler) CreateChatRoom(c *gin.Context) {
	var policy domain.RoomPolicy
	if c.Request.ContentLength > 0 && !bindJSON(c, &policy) {
		return
	}

	room, err := h.svc.Rooms.CreateRoom(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), policy)
	if err != nil {
		respondError(c, err, "failed to create chat room")
		return
	}
	response.Created(c, room)
}

// UpdateChatRoom applies a partial policy update.
func (h *Handler) UpdateChatRoom(c *gin.Context) {
	var patch domain.PolicyPatch
	if !bindJSON(c, &patch) {
		return
	}

	room, err := h.svc.Rooms.UpdatePolicy(c.Request.Context(), c.Param("roomId"), middleware.GetUserID(c), patch)
	if err != nil {
		respondError(c, err, "failed to update chat room")
		return
	}
	response.Success(c, room)
}

// ListMessages returns the newest messages of a room, oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	var req domain.ListMessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	messages, err := h.svc.Messages.List(c.Request.Context(), c.Param("roomId"), req.Limit)
	if err != nil {
		respondError(c, err, "failed to list messages")
		return
	}
	response.Success(c, messages)
}

// SendMessage posts a message to a room.
func (h *Handler) SendMessage(c *gin.Context) {
	var req domain.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.svc.Messages.Send(c.Request.Context(), c.Param("roomId"), middleware.GetUserID(c), req.Content, req.Type)
	if err != nil {
		respondError(c, err, "failed to send message")
		return
	}
	response.Created(c, msg)
}

// DeleteMessage tombstones a message.
func (h *Handler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("messageId")
	deleted, err := h.svc.Messages.Delete(c.Request.Context(), messageID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "failed to delete message")
		return
	}
	response.Success(c, gin.H{"message_id": messageID, "deleted": deleted})
}
