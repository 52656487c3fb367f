package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/chat"
	"chatcore-backend/internal/service/delivery"
	"chatcore-backend/pkg/response"
)

// Handler handles message HTTP requests
type Handler struct {
	chatService     *chat.Service
	deliveryService *delivery.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service, deliveryService *delivery.Service) *Handler {
	return &Handler{
		chatService:     chatService,
		deliveryService: deliveryService,
	}
}

// SendMessageRequest represents a text message. File messages go through POST /v1/files.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
}

func messageID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return uuid.Nil, false
	}
	return id, true
}

// SendMessage appends a message to a conversation
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	message, err := h.chatService.Append(c.Request.Context(), &chat.AppendInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        req.Content,
		ContentType:    domain.ContentType(req.ContentType),
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// MarkRead marks one message as read by the caller
// POST /v1/messages/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	msgID, ok := messageID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	receipt, err := h.deliveryService.MarkRead(c.Request.Context(), msgID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, receipt)
}

// ListReceipts returns every recipient's state for a message the caller sent
// GET /v1/messages/:id/receipts
func (h *Handler) ListReceipts(c *gin.Context) {
	msgID, ok := messageID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	receipts, err := h.deliveryService.ListReceipts(c.Request.Context(), msgID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"receipts": receipts,
	})
}
