package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/api/middleware"
	"github.com/campusexchange/points/internal/idempotency"
	"github.com/campusexchange/points/internal/service"
)

// OfferHandler serves the offer engine endpoints (C4).
type OfferHandler struct {
	db     *sqlx.DB
	wrap   *idempotency.Wrapper
	offers *service.OfferService
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(db *sqlx.DB, wrap *idempotency.Wrapper, offers *service.OfferService) *OfferHandler {
	return &OfferHandler{db: db, wrap: wrap, offers: offers}
}

// Create godoc
// POST /offers [JWT]
func (h *OfferHandler) Create(c *gin.Context) {
	var req service.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	offer, err := h.offers.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusCreated, offer)
}

// List godoc
// GET /offers?active=&search=&page=&limit= [JWT]
func (h *OfferHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	activeOnly := c.Query("active") == "true"
	offers, total, err := h.offers.List(c.Request.Context(), middleware.GetUserID(c), activeOnly, c.Query("search"), limit, (page-1)*limit)
	if err != nil {
		fail(c, err)
		return
	}
	okList(c, offers, total, page, limit)
}

// Get godoc
// GET /offers/:id [JWT]
func (h *OfferHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid offer id")
		return
	}
	offer, err := h.offers.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, offer)
}

// Accept godoc
// POST /offers/:id/accept [JWT, Idempotency-Key]
func (h *OfferHandler) Accept(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid offer id")
		return
	}
	buyerID := middleware.GetUserID(c)

	withIdempotency(c, h.db, h.wrap, "POST /offers/:id/accept", mustJSON(gin.H{"offerId": id}),
		func(ctx context.Context) (idempotency.Result, error) {
			acceptance, err := h.offers.Accept(ctx, buyerID, id)
			if err != nil {
				return idempotency.Result{}, err
			}
			return idempotency.Result{Status: http.StatusCreated, Body: gin.H{"ok": true, "data": acceptance}}, nil
		},
	)
}

// Reviews godoc
// GET /offers/:id/reviews
func (h *OfferHandler) Reviews(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid offer id")
		return
	}
	reviews, err := h.offers.Reviews(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, reviews)
}

// CreateReview godoc
// POST /offers/:id/reviews [JWT]
func (h *OfferHandler) CreateReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid offer id")
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failValidation(c, err.Error())
		return
	}
	review, err := h.offers.Review(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusCreated, review)
}

// Acceptances godoc
// GET /offers/:id/acceptances
func (h *OfferHandler) Acceptances(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		failValidation(c, "invalid offer id")
		return
	}
	acceptances, err := h.offers.Acceptances(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	okData(c, http.StatusOK, acceptances)
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
