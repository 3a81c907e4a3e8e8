package handlers

import (
	"net/http"
	"strconv"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves read-only oversight of every conversation and role
// management. All routes sit behind AdminOnly.
type AdminHandler struct {
	authSvc   *auth.Service
	directory *chat.Directory
	messages  *chat.MessageStore
}

func NewAdminHandler(authSvc *auth.Service, directory *chat.Directory, messages *chat.MessageStore) *AdminHandler {
	return &AdminHandler{authSvc: authSvc, directory: directory, messages: messages}
}

type SetRoleRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

func (h *AdminHandler) ListConversations(c *gin.Context) {
	list, err := h.directory.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AdminHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.directory.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.messages.Page(ctx, conv.ID, c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil || userID <= 0 {
		respondError(c, apperrors.ErrInvalidUserID)
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}

	user, err := h.authSvc.SetRole(userID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
