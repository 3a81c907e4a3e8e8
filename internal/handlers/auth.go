package handlers

import (
	"net/http"
	"strings"

	"github.com/devroad/mentorchat/internal/auth"
	"github.com/devroad/mentorchat/internal/models"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authSvc *auth.Service
}

func NewAuthHandler(authSvc *auth.Service) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a new learner account
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}

	user, err := h.authSvc.Register(req.Username, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authSvc.GenerateToken(user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: user})
}

// Login authenticates a user and returns a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidRequest)
		return
	}

	token, user, err := h.authSvc.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: user})
}

// Me returns the caller's identity
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authSvc.Identity(currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AuthMiddleware validates the JWT and loads the caller. The role comes from
// the database so role changes apply to existing tokens.
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}

		// WebSocket clients cannot set headers
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			respondError(c, apperrors.ErrMissingAuthToken)
			return
		}

		claims, err := h.authSvc.ValidateToken(token)
		if err != nil {
			respondError(c, apperrors.ErrInvalidToken)
			return
		}

		user, err := h.authSvc.Identity(claims.UserID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				respondError(c, apperrors.ErrInvalidToken)
				return
			}
			respondError(c, err)
			return
		}

		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Set("role", user.Role)
		c.Next()
	}
}

// AdminOnly rejects callers that are not admins. Must run after
// AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get("role"); role != models.RoleAdmin {
			respondError(c, apperrors.ErrAdminOnly)
			return
		}
		c.Next()
	}
}
