package handlers

import (
	"net/http"

	"github.com/devroad/mentorchat/internal/models"
	"github.com/devroad/mentorchat/internal/push"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

// PushHandler manages Web Push subscriptions. A nil notifier means push is
// disabled and every route answers 503.
type PushHandler struct {
	notifier *push.Notifier
}

func NewPushHandler(notifier *push.Notifier) *PushHandler {
	return &PushHandler{notifier: notifier}
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (h *PushHandler) VAPIDPublicKey(c *gin.Context) {
	if h.notifier == nil {
		respondError(c, apperrors.ErrPushDisabled)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.notifier.VAPIDPublicKey()})
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	if h.notifier == nil {
		respondError(c, apperrors.ErrPushDisabled)
		return
	}

	var sub models.PushSubscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}
	if err := h.notifier.Subscribe(currentUserID(c), sub); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(c *gin.Context) {
	if h.notifier == nil {
		respondError(c, apperrors.ErrPushDisabled)
		return
	}

	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}
	if err := h.notifier.Unsubscribe(currentUserID(c), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
