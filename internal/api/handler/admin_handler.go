package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/api/middleware"
	"github.com/campusexchange/points/internal/idempotency"
	"github.com/campusexchange/points/internal/service"
)

// AdminHandler serves admin control (C7) and the resolve/cancel arm of the
// bet engine (C5) — both require admin.access, so they share one handler
// rather than splitting resolve/cancel across BetHandler and AdminHandler.
type AdminHandler struct {
	db     *sqlx.DB
	wrap   *idempotency.Wrapper
	admin  *service.AdminService
	bets   *service.BetService
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *sqlx.DB, wrap *idempotency.Wrapper, admin *service.AdminService, bets *service.BetService) *AdminHandler {
	return &AdminHandler{db: db, wrap: wrap, admin: admin, bets: bets}
}

func targetUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid user id")
		return uuid.Nil, false
	}
	return id, true
}

// Credit godoc
// POST /admin/users/:id/credit [admin.access]
func (h *AdminHandler) Credit(c *gin.Context) {
	targetID, ok := targetUserID(c)
	if !ok {
		return
	}
	var req service.CreditDebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	if err := h.admin.Credit(c.Request.Context(), middleware.GetUserID(c), targetID, req); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Debit godoc
// POST /admin/users/:id/debit [admin.access]
func (h *AdminHandler) Debit(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	var req service.CreditDebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	if err := h.admin.Debit(c.Request.Context(), middleware.GetUserID(c), targetID, req); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Ban godoc
// POST /admin/users/:id/ban [admin.access]
func (h *AdminHandler) Ban(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	if err := h.admin.Ban(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Unban godoc
// POST /admin/users/:id/unban [admin.access]
func (h *AdminHandler) Unban(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	if err := h.admin.Unban(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Promote godoc
// POST /admin/users/:id/promote [admin.super]
func (h *AdminHandler) Promote(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	if err := h.admin.Promote(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Demote godoc
// POST /admin/users/:id/demote [admin.super]
func (h *AdminHandler) Demote(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	if err := h.admin.Demote(c.Request.Context(), middleware.GetUserID(c), targetID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// ResetPassword godoc
// POST /admin/users/:id/reset-password [admin.access]
func (h *AdminHandler) ResetPassword(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	if err := h.admin.ResetPassword(c.Request.Context(), middleware.GetUserID(c), targetID, req); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// Users godoc
// GET /admin/users?page=&limit= [admin.access]
func (h *AdminHandler) Users(c *gin.Context) {
	page, limit := parsePagination(c)
	users, total, err := h.admin.Users(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, users, total, page, limit)
}

// BannedUsers godoc
// GET /admin/users/banned [admin.access]
func (h *AdminHandler) BannedUsers(c *gin.Context) {
	users, err := h.admin.BannedUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, users)
}

// Devices godoc
// GET /admin/users/:id/devices [admin.access]
func (h *AdminHandler) Devices(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	devices, err := h.admin.Devices(c.Request.Context(), targetID)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, devices)
}

// Sessions godoc
// GET /admin/users/:id/sessions [admin.access]
func (h *AdminHandler) Sessions(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	sessions, err := h.admin.Sessions(c.Request.Context(), targetID)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, sessions)
}

// RevokeDevice godoc
// DELETE /admin/devices/:deviceId [admin.access]
func (h *AdminHandler) RevokeDevice(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("deviceId"))
	if err != nil {
		failValidation(c, "invalid device id")
		return
	}
	if err := h.admin.RevokeDevice(c.Request.Context(), middleware.GetUserID(c), deviceID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// RevokeSession godoc
// DELETE /admin/sessions/:sessionId [admin.access]
func (h *AdminHandler) RevokeSession(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		failValidation(c, "invalid session id")
		return
	}
	if err := h.admin.RevokeSession(c.Request.Context(), middleware.GetUserID(c), tokenID); err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, nil)
}

// UserLogs godoc
// GET /admin/users/:id/logs?page=&limit= [admin.access]
func (h *AdminHandler) UserLogs(c *gin.Context) {
	targetID, okID := targetUserID(c)
	if !okID {
		return
	}
	page, limit := parsePagination(c)
	logs, total, err := h.admin.Logs(c.Request.Context(), targetID, limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, logs, total, page, limit)
}

// AllLogs godoc
// GET /admin/logs?page=&limit= [admin.access]
func (h *AdminHandler) AllLogs(c *gin.Context) {
	page, limit := parsePagination(c)
	logs, total, err := h.admin.AllLogs(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, logs, total, page, limit)
}

// FeesSummary godoc
// GET /admin/fees/summary [admin.access]
func (h *AdminHandler) FeesSummary(c *gin.Context) {
	summary, err := h.admin.FeesSummary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, summary)
}

// PendingResolution godoc
// GET /admin/bets/pending-resolution [admin.access]
func (h *AdminHandler) PendingResolution(c *gin.Context) {
	bets, err := h.bets.PendingResolution(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, bets)
}

// ResolveBet godoc
// POST /admin/bets/:id/resolve [admin.access, Idempotency-Key]
func (h *AdminHandler) ResolveBet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	var req service.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	actorID := middleware.GetUserID(c)

	withIdempotency(c, h.db, h.wrap, "POST /admin/bets/:id/resolve", mustJSON(req),
		func(ctx context.Context) (idempotency.Result, error) {
			if err := h.bets.Resolve(ctx, actorID, id, req); err != nil {
				return idempotency.Result{}, err
			}
			return idempotency.Result{Status: http.StatusOK, Body: gin.H{"ok": true}}, nil
		},
	)
}

// CancelBet godoc
// DELETE /admin/bets/:id [admin.access, Idempotency-Key]
func (h *AdminHandler) CancelBet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	actorID := middleware.GetUserID(c)

	withIdempotency(c, h.db, h.wrap, "DELETE /admin/bets/:id", mustJSON(gin.H{"betId": id}),
		func(ctx context.Context) (idempotency.Result, error) {
			if err := h.bets.Cancel(ctx, actorID, id); err != nil {
				return idempotency.Result{}, err
			}
			return idempotency.Result{Status: http.StatusOK, Body: gin.H{"ok": true}}, nil
		},
	)
}
