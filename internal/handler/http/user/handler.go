package user

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/middleware"
	"chatcore-backend/internal/service/user"
	"chatcore-backend/pkg/pagination"
	"chatcore-backend/pkg/response"
)

// Handler handles user HTTP requests
type Handler struct {
	userService *user.Service
}

// NewHandler creates a new user handler
func NewHandler(userService *user.Service) *Handler {
	return &Handler{
		userService: userService,
	}
}

// UsernameRequest is the body of signup and login
type UsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// UpdatePreferencesRequest represents a preferences update
type UpdatePreferencesRequest struct {
	AutoDeleteHours *int `json:"auto_delete_hours" binding:"required"`
}

func toResponses(users []*domain.User) []*domain.UserResponse {
	now := time.Now()
	out := make([]*domain.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToResponse(now))
	}
	return out
}

// Signup registers a new username
// POST /v1/users/signup
func (h *Handler) Signup(c *gin.Context) {
	var req UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	u, err := h.userService.Register(c.Request.Context(), req.Username)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, u.ToResponse(time.Now()))
}

// Login resolves a username, creating it if absent, and marks it online
// POST /v1/users/login
func (h *Handler) Login(c *gin.Context) {
	var req UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	u, err := h.userService.Authenticate(c.Request.Context(), req.Username)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, u.ToResponse(time.Now()))
}

// ListUsers returns users, most recently active first.
// Without page or limit the whole directory is returned.
// GET /v1/users?page=1&limit=20
func (h *Handler) ListUsers(c *gin.Context) {
	pageStr, limitStr := c.Query("page"), c.Query("limit")
	var params *pagination.Params
	if pageStr != "" || limitStr != "" {
		var err error
		params, err = pagination.Parse(pageStr, limitStr)
		if err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	if params == nil {
		response.Success(c, http.StatusOK, gin.H{
			"users": toResponses(users),
		})
		return
	}

	start, end := params.Window(len(users))
	response.Success(c, http.StatusOK, pagination.NewResponse(params, len(users), toResponses(users[start:end])))
}

// ListOnline returns users currently considered online
// GET /v1/users/online
func (h *Handler) ListOnline(c *gin.Context) {
	users, err := h.userService.ListOnline(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"users": toResponses(users),
	})
}

// GetUser returns a single user
// GET /v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	u, err := h.userService.Get(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, u.ToResponse(time.Now()))
}

// TouchActivity refreshes the caller's presence
// POST /v1/users/activity
func (h *Handler) TouchActivity(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.userService.TouchActivity(c.Request.Context(), userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Activity recorded",
	})
}

// Logout marks the caller offline
// POST /v1/users/logout
func (h *Handler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.userService.SetOffline(c.Request.Context(), userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Logged out",
	})
}

// UpdatePreferences changes the caller's message TTL
// PATCH /v1/users/me/preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	u, err := h.userService.UpdatePreferences(c.Request.Context(), userID, *req.AutoDeleteHours)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, u.ToResponse(time.Now()))
}
