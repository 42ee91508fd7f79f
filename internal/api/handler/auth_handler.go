package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusexchange/points/internal/service"
)

// AuthHandler handles registration, login, and refresh-token rotation.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Register godoc
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}

	result, err := h.authSvc.Register(c.Request.Context(), req, c.GetHeader("X-Device-Label"))
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusCreated, result)
}

// Login godoc
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failValidation(c, err.Error())
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), body.Email, body.Password, c.GetHeader("X-Device-Label"))
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, result)
}

// Refresh godoc
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failValidation(c, err.Error())
		return
	}

	result, err := h.authSvc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, result)
}
