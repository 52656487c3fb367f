package storage

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/chat"
	"chatcore-backend/internal/service/conversation"
	"chatcore-backend/internal/service/storage"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/response"
)

// Handler handles file upload and download HTTP requests
type Handler struct {
	storageService      *storage.Service
	conversationService *conversation.Service
	chatService         *chat.Service
}

// NewHandler creates a new storage handler
func NewHandler(storageService *storage.Service, conversationService *conversation.Service, chatService *chat.Service) *Handler {
	return &Handler{
		storageService:      storageService,
		conversationService: conversationService,
		chatService:         chatService,
	}
}

func fileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid file ID")
		return uuid.Nil, false
	}
	return id, true
}

// Upload stores a file and posts it to a conversation as a file message
// POST /v1/files (multipart: conversation_id, file)
func (h *Handler) Upload(c *gin.Context) {
	senderID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.FromError(c, apperrors.PayloadTooLargeError(tooLarge.Limit))
			return
		}
		response.ValidationError(c, "file is required")
		return
	}

	conversationID, err := uuid.Parse(c.PostForm("conversation_id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	// Payload constraints come before any lookup
	if _, err := h.storageService.ValidatePayload(header.Filename, header.Size); err != nil {
		response.FromError(c, err)
		return
	}

	// Posting joins the sender, so only existence is checked here
	ctx := c.Request.Context()
	if _, err := h.conversationService.Lookup(ctx, conversationID); err != nil {
		response.FromError(c, err)
		return
	}

	f, err := header.Open()
	if err != nil {
		response.ValidationError(c, "Failed to read uploaded file")
		return
	}
	defer f.Close()

	stored, err := h.storageService.Store(ctx, conversationID, header.Filename, header.Header.Get("Content-Type"), header.Size, f)
	if err != nil {
		response.FromError(c, err)
		return
	}

	message, err := h.chatService.Append(ctx, &chat.AppendInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        stored.FileName,
		ContentType:    stored.ContentType,
		File:           stored.Meta(),
	})
	if err != nil {
		// The blob stays; identical content re-uploads to the same key
		logger.FromContext(ctx).Warn("Stored file was not attached to a message",
			zap.String("key", stored.Key),
			zap.Error(err))
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}

// Download streams a file's bytes with its MIME type and original name
// GET /v1/files/:id
func (h *Handler) Download(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ctx := c.Request.Context()
	file, err := h.chatService.FileForUser(ctx, id, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	rc, err := h.storageService.Retrieve(ctx, file.StorageKey)
	if err != nil {
		response.FromError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, file.SizeBytes, file.MimeType, rc, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName}),
		"X-Content-Hash":      file.Hash,
	})
}

// DownloadURL returns a presigned link to a file
// GET /v1/files/:id/url
func (h *Handler) DownloadURL(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ctx := c.Request.Context()
	file, err := h.chatService.FileForUser(ctx, id, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	link, err := h.storageService.PresignDownload(ctx, file, constants.DownloadURLExpiry)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, link)
}

// Verify re-hashes a stored file and compares it with the recorded hash
// GET /v1/files/:id/verify
func (h *Handler) Verify(c *gin.Context) {
	id, ok := fileID(c)
	if !ok {
		return
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ctx := c.Request.Context()
	file, err := h.chatService.FileForUser(ctx, id, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	intact, err := h.storageService.Verify(ctx, file.StorageKey, file.Hash)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"file_id":  file.FileID,
		"hash":     file.Hash,
		"verified": intact,
	})
}
