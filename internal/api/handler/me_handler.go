package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/api/middleware"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/repository"
	"github.com/campusexchange/points/internal/service"
)

// MeHandler serves the caller's own profile, stats, bets, and groups, plus
// other users' public profiles.
type MeHandler struct {
	users    *repository.UserRepository
	betSvc   *service.BetService
	groupSvc *service.GroupService
}

// NewMeHandler creates a MeHandler.
func NewMeHandler(users *repository.UserRepository, betSvc *service.BetService, groupSvc *service.GroupService) *MeHandler {
	return &MeHandler{users: users, betSvc: betSvc, groupSvc: groupSvc}
}

// UpdateProfileRequest edits the caller's own profile fields.
type UpdateProfileRequest struct {
	Description *string           `json:"description,omitempty"`
	Alias       *string           `json:"alias,omitempty"`
	Quote       *string           `json:"quote,omitempty"`
	Visibility  *domain.Visibility `json:"visibility,omitempty"`
}

// Stats godoc
// GET /me/stats [JWT]
func (h *MeHandler) Stats(c *gin.Context) {
	userID := middleware.GetUserID(c)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	_, total, err := h.betSvc.PositionsForUser(c.Request.Context(), userID, 1, 0)
	if err != nil {
		fail(c, err)
		return
	}
	groupIDs, err := h.groupSvc.MemberGroups(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, gin.H{
		"points":        user.Points,
		"banned":        user.Banned,
		"betPositions":  total,
		"groupCount":    len(groupIDs),
	})
}

// Bets godoc
// GET /me/bets?page=&limit= [JWT]
func (h *MeHandler) Bets(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	positions, total, err := h.betSvc.PositionsForUser(c.Request.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, positions, total, page, limit)
}

// Groups godoc
// GET /me/groups [JWT]
func (h *MeHandler) Groups(c *gin.Context) {
	userID := middleware.GetUserID(c)
	groupIDs, err := h.groupSvc.MemberGroups(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, groupIDs)
}

// UpdateProfile godoc
// PATCH /me/profile [JWT]
func (h *MeHandler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}

	profile := user.Profile
	if req.Description != nil {
		profile.Description = *req.Description
	}
	if req.Alias != nil {
		profile.Alias = *req.Alias
	}
	if req.Quote != nil {
		profile.Quote = *req.Quote
	}
	if req.Visibility != nil {
		profile.Visibility = *req.Visibility
	}

	if err := h.users.UpdateProfile(c.Request.Context(), userID, profile); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, profile)
}

// GetUser godoc
// GET /users/:id [JWT] — the caller's own view of any account's public id.
func (h *MeHandler) GetUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid user id")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, user.ToPublicProfile())
}

// GetProfile godoc
// GET /profiles/:id — public profile, visible regardless of auth, but never
// exposed when the owner has set their profile to private.
func (h *MeHandler) GetProfile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid user id")
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if user.Profile.Visibility == domain.VisibilityPrivate {
		fail(c, domain.ErrUserNotFound)
		return
	}
	okData(c, http.StatusOK, user.ToPublicProfile())
}
