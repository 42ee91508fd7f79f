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

// BetHandler serves the bet engine endpoints (C5): create/buy/sell and read
// paths. Resolve and cancel are admin-gated and live in AdminHandler.
type BetHandler struct {
	db   *sqlx.DB
	wrap *idempotency.Wrapper
	bets *service.BetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(db *sqlx.DB, wrap *idempotency.Wrapper, bets *service.BetService) *BetHandler {
	return &BetHandler{db: db, wrap: wrap, bets: bets}
}

// Create godoc
// POST /bets [JWT]
func (h *BetHandler) Create(c *gin.Context) {
	var req service.CreateBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	bet, err := h.bets.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusCreated, bet)
}

// List godoc
// GET /bets?active=&page=&limit= [JWT]
func (h *BetHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	activeOnly := c.Query("active") == "true"
	bets, total, err := h.bets.List(c.Request.Context(), middleware.GetUserID(c), activeOnly, limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, bets, total, page, limit)
}

// Get godoc
// GET /bets/:id [JWT]
func (h *BetHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	bet, options, err := h.bets.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, gin.H{"bet": bet, "options": options})
}

// Buy godoc
// POST /bets/:id/buy [JWT, Idempotency-Key]
func (h *BetHandler) Buy(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	var req service.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	userID := middleware.GetUserID(c)

	withIdempotency(c, h.db, h.wrap, "POST /bets/:id/buy", mustJSON(req),
		func(ctx context.Context) (idempotency.Result, error) {
			pos, err := h.bets.Buy(ctx, userID, id, req)
			if err != nil {
				return idempotency.Result{}, err
			}
			return idempotency.Result{Status: http.StatusCreated, Body: gin.H{"ok": true, "data": pos}}, nil
		},
	)
}

// Sell godoc
// POST /bets/:id/sell [JWT, Idempotency-Key]
func (h *BetHandler) Sell(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	var req service.SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	userID := middleware.GetUserID(c)

	withIdempotency(c, h.db, h.wrap, "POST /bets/:id/sell", mustJSON(req),
		func(ctx context.Context) (idempotency.Result, error) {
			net, err := h.bets.Sell(ctx, userID, id, req)
			if err != nil {
				return idempotency.Result{}, err
			}
			return idempotency.Result{Status: http.StatusOK, Body: gin.H{"ok": true, "data": gin.H{"net": net}}}, nil
		},
	)
}

// Positions godoc
// GET /bets/:id/positions [JWT]
func (h *BetHandler) Positions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid bet id")
		return
	}
	positions, err := h.bets.PositionsForBet(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, positions)
}
