package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/apperrors"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/chat"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/http/middleware"
)

type ChatHandler struct {
	Service *chat.Service
	Log     *logrus.Logger
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrEmptyBody),
		errors.Is(err, apperrors.ErrSelfMessage):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotSender),
		errors.Is(err, apperrors.ErrNotRecipient):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound),
		errors.Is(err, apperrors.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed")
		c.JSON(status, gin.H{"message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id64 == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid " + name})
		return 0, false
	}
	return uint(id64), true
}

type sendMessageReq struct {
	RecipientID uint   `json:"recipient_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	msg, err := h.Service.Send(c.Request.Context(), userID, req.RecipientID, req.Body)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": msg})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := middleware.MustUserID(c)

	convs, err := h.Service.Conversations(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": convs})
}

func (h *ChatHandler) ListConversationMessages(c *gin.Context) {
	userID := middleware.MustUserID(c)

	counterpartID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	msgs, err := h.Service.Conversation(c.Request.Context(), userID, counterpartID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func (h *ChatHandler) ListReceived(c *gin.Context) {
	userID := middleware.MustUserID(c)

	msgs, err := h.Service.Received(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func (h *ChatHandler) ListSent(c *gin.Context) {
	userID := middleware.MustUserID(c)

	msgs, err := h.Service.Sent(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID := middleware.MustUserID(c)

	count, err := h.Service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

type markReadReq struct {
	MessageIDs []uint `json:"message_ids" binding:"required"`
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID := middleware.MustUserID(c)

	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	if err := h.Service.MarkRead(c.Request.Context(), userID, req.MessageIDs); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) MarkConversationRead(c *gin.Context) {
	userID := middleware.MustUserID(c)

	counterpartID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	if err := h.Service.MarkConversationRead(c.Request.Context(), userID, counterpartID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID := middleware.MustUserID(c)

	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.Service.Delete(c.Request.Context(), userID, messageID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
