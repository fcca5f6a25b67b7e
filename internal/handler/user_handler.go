package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/pkg/middleware"
	"github.com/weiawesome/wes-io-live/pkg/response"
)

// GetProfile returns a user's public profile.
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.svc.Users.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get profile")
		return
	}
	response.Success(c, profile)
}

// ListUserStreams lists every stream of a user.
func (h *Handler) ListUserStreams(c *gin.Context) {
	streams, err := h.svc.Streams.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to list user streams")
		return
	}
	if streams == nil {
		streams = []domain.Stream{}
	}
	response.Success(c, streams)
}

// UpsertProfile syncs the caller's profile.
func (h *Handler) UpsertProfile(c *gin.Context) {
	var req domain.UpsertProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.svc.Users.UpsertProfile(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "failed to save profile")
		return
	}
	response.Success(c, user)
}

// Follow makes the caller follow a user.
func (h *Handler) Follow(c *gin.Context) {
	status, err := h.svc.Users.Follow(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to follow user")
		return
	}
	response.Success(c, status)
}

// Unfollow removes the caller's follow of a user.
func (h *Handler) Unfollow(c *gin.Context) {
	status, err := h.svc.Users.Unfollow(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to unfollow user")
		return
	}
	response.Success(c, status)
}

// FollowStatus reports whether the caller follows a user.
func (h *Handler) FollowStatus(c *gin.Context) {
	status, err := h.svc.Users.IsFollowing(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get follow status")
		return
	}
	response.Success(c, status)
}

// DashboardStats returns the caller's channel numbers.
func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.svc.Dashboard.GetStats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "failed to get dashboard stats")
		return
	}
	response.Success(c, stats)
}

// MyStreams pages through the caller's streams.
func (h *Handler) MyStreams(c *gin.Context) {
	var req struct {
		Limit  int    `form:"limit"`
		Cursor string `form:"cursor"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	page, err := h.svc.Dashboard.GetMyStreams(c.Request.Context(), middleware.GetUserID(c), req.Limit, req.Cursor)
	if err != nil {
		respondError(c, err, "failed to list streams")
		return
	}
	response.Success(c, page)
}
