package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/service"
)

// GroupHandler serves access-control group CRUD and membership (C10).
type GroupHandler struct {
	groups *service.GroupService
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// Create godoc
// POST /admin/groups [admin.access]
func (h *GroupHandler) Create(c *gin.Context) {
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusCreated, group)
}

// List godoc
// GET /groups [JWT]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, groups)
}

// Get godoc
// GET /groups/:id [JWT]
func (h *GroupHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid group id")
		return
	}
	group, err := h.groups.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, group)
}

// AddMembers godoc
// POST /admin/groups/:id/members [admin.access]
func (h *GroupHandler) AddMembers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid group id")
		return
	}
	var req service.MemberBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	if err := h.groups.AddMembers(c.Request.Context(), id, req); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}

// RemoveMembers godoc
// DELETE /admin/groups/:id/members [admin.access]
func (h *GroupHandler) RemoveMembers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid group id")
		return
	}
	var req service.MemberBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	if err := h.groups.RemoveMembers(c.Request.Context(), id, req); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, nil)
}
