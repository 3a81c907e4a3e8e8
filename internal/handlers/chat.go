package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/devroad/mentorchat/internal/chat"
	"github.com/devroad/mentorchat/internal/events"
	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	directory *chat.Directory
	messages  *chat.MessageStore
	sink      events.Sink
	log       *logger.Logger
}

func NewChatHandler(directory *chat.Directory, messages *chat.MessageStore, sink events.Sink, log *logger.Logger) *ChatHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatHandler{
		directory: directory,
		messages:  messages,
		sink:      sink,
		log:       log.Component("chat"),
	}
}

type OpenConversationRequest struct {
	MentorID int `json:"mentor_id" binding:"required"`
}

// ListConversations returns the caller's conversations, most recent first
func (h *ChatHandler) ListConversations(c *gin.Context) {
	list, err := h.directory.ListForParticipant(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// OpenConversation returns the caller's conversation with a mentor,
// creating it on first contact
func (h *ChatHandler) OpenConversation(c *gin.Context) {
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	conv, err := h.directory.GetOrCreate(ctx, currentUserID(c), req.MentorID)
	if err != nil {
		respondError(c, err)
		return
	}

	detail, err := h.directory.Detail(ctx, conv)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ListMentors returns the users the caller can start a conversation with
func (h *ChatHandler) ListMentors(c *gin.Context) {
	mentors, err := h.directory.ListMentors(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mentors)
}

// ListMessages returns one page of history, oldest first
func (h *ChatHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conversationID := c.Param("id")

	if _, err := h.directory.Authorize(ctx, conversationID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}

	page, err := h.messages.Page(ctx, conversationID, c.Query("cursor"), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage appends a message and notifies subscribers
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var draft models.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}
	if draft.Kind == "" {
		draft.Kind = models.KindText
	}

	ctx := c.Request.Context()
	userID := currentUserID(c)
	conv, err := h.directory.Authorize(ctx, c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.messages.Append(ctx, conv.ID, userID, draft)
	if err != nil {
		respondError(c, err)
		return
	}

	// delivery must not stop when the sender disconnects
	if h.sink != nil {
		if err := h.sink.MessageCreated(context.WithoutCancel(ctx), conv, msg); err != nil {
			h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish message")
		}
	}

	c.JSON(http.StatusCreated, msg)
}

// queryLimit parses ?limit=. Missing or malformed values select the default
// page size.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return chat.DefaultPageSize
	}
	return chat.ClampLimit(limit)
}
