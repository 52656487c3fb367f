package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/chat"
	"chatcore-backend/internal/service/conversation"
	"chatcore-backend/internal/service/delivery"
	"chatcore-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService *conversation.Service
	chatService         *chat.Service
	deliveryService     *delivery.Service
}

// NewHandler creates a new conversation handler
func NewHandler(conversationService *conversation.Service, chatService *chat.Service, deliveryService *delivery.Service) *Handler {
	return &Handler{
		conversationService: conversationService,
		chatService:         chatService,
		deliveryService:     deliveryService,
	}
}

// DirectRequest represents a direct conversation lookup
type DirectRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Privacy     string   `json:"privacy"`
	MemberLimit int      `json:"member_limit"`
	MemberIDs   []string `json:"member_ids"`
}

// AddMemberRequest represents add member request
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func conversationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return uuid.Nil, false
	}
	return id, true
}

// FindOrCreateDirect returns the caller's one-to-one conversation with another user
// POST /v1/conversations/direct
func (h *Handler) FindOrCreateDirect(c *gin.Context) {
	var req DirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	otherID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	conv, err := h.conversationService.FindOrCreateDirect(c.Request.Context(), userID, otherID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// CreateGroup creates a group administered by the caller
// POST /v1/conversations/groups
func (h *Handler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	creatorID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	// Unparseable IDs can never name a user; they are reported like unknown users
	memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
	var invalid []string
	for _, idStr := range req.MemberIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			invalid = append(invalid, idStr)
			continue
		}
		memberIDs = append(memberIDs, id)
	}

	out, err := h.conversationService.CreateGroup(c.Request.Context(), &conversation.CreateGroupInput{
		CreatorID:   creatorID,
		Name:        req.Name,
		Description: req.Description,
		Privacy:     domain.GroupPrivacy(req.Privacy),
		MemberLimit: req.MemberLimit,
		MemberIDs:   memberIDs,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"conversation": out.Conversation,
		"skipped":      out.Skipped,
		"invalid_ids":  invalid,
	})
}

// ListConversations lists the caller's conversations, newest first
// GET /v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	views, err := h.conversationService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"conversations": views,
	})
}

// GetConversation returns one conversation with participants and active messages
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	view, err := h.conversationService.Get(c.Request.Context(), convID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// ListMessages returns active messages with the caller's receipt state
// GET /v1/conversations/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	messages, err := h.chatService.ListActiveForUser(c.Request.Context(), convID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"messages": messages,
	})
}

// AddMember adds a user to a group
// POST /v1/conversations/:id/members
func (h *Handler) AddMember(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	requesterID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	memberID, err := uuid.Parse(req.UserID)
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	if err := h.conversationService.AddMember(c.Request.Context(), convID, requesterID, memberID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message": "Member added",
	})
}

// RemoveMember removes a user from a group
// DELETE /v1/conversations/:id/members/:user_id
func (h *Handler) RemoveMember(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}

	memberID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	requesterID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.conversationService.RemoveMember(c.Request.Context(), convID, requesterID, memberID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Member removed",
	})
}

// MarkRead marks every unread message of the conversation as read for the caller
// POST /v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	convID, ok := conversationID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	marked, err := h.deliveryService.MarkConversationRead(c.Request.Context(), convID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"marked": marked,
	})
}
