package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/ledger"
	"github.com/campusexchange/points/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request types
// ──────────────────────────────────────────────────────────────────────────────

// CreateOfferRequest opens a new offer.
type CreateOfferRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	GroupID        *uuid.UUID `json:"groupId,omitempty"`
	PointsCost     int64      `json:"pointsCost" binding:"required,gt=0"`
	MaxAcceptances *int64     `json:"maxAcceptances,omitempty"`
}

// ReviewRequest leaves a rating on an offer the caller has accepted.
type ReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OfferService
// ──────────────────────────────────────────────────────────────────────────────

// OfferService implements the offer engine (C4): create/accept/review over
// fixed-price, optionally capped service listings.
type OfferService struct {
	db     *sqlx.DB
	offers *repository.OfferRepository
	groups *repository.GroupRepository
	ledger *ledger.Core
}

// NewOfferService creates an OfferService.
func NewOfferService(db *sqlx.DB, offers *repository.OfferRepository, groups *repository.GroupRepository, ledger *ledger.Core) *OfferService {
	return &OfferService{db: db, offers: offers, groups: groups, ledger: ledger}
}

// Create opens a new offer, active by default.
func (s *OfferService) Create(ctx context.Context, creatorID uuid.UUID, req CreateOfferRequest) (*domain.Offer, error) {
	offer := &domain.Offer{
		ID:             uuid.New(),
		CreatorUserID:  creatorID,
		GroupID:        req.GroupID,
		Title:          req.Title,
		Description:    req.Description,
		PointsCost:     req.PointsCost,
		MaxAcceptances: req.MaxAcceptances,
		AcceptedCount:  0,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		return nil, err
	}
	return offer, nil
}

// Accept locks the offer, validates it is open to buyerID, debits
// cost+fee from the buyer, credits cost to the creator, credits the fee to
// the super-admin, and records the acceptance — all in one transaction.
func (s *OfferService) Accept(ctx context.Context, buyerID, offerID uuid.UUID) (*domain.OfferAcceptance, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("offer_service.Accept: begin tx: %w", err)
	}
	defer tx.Rollback()

	offer, err := s.offers.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return nil, err
	}
	if !offer.IsActive {
		return nil, domain.ErrOfferInactive
	}
	if !offer.HasCapacity() {
		return nil, domain.ErrOfferCapReached
	}
	if offer.CreatorUserID == buyerID {
		return nil, domain.ErrOfferSelfAccept
	}
	if offer.GroupID != nil {
		member, err := s.groups.IsMember(ctx, *offer.GroupID, buyerID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, domain.ErrOfferGroupDenied
		}
	}

	fee := offer.AcceptanceFee()
	total := offer.PointsCost + fee

	if _, _, err := s.ledger.ApplyDelta(ctx, tx, buyerID, -total, &buyerID, "offer_accept_debit", "offer accepted", &offer.ID, map[string]any{
		"offer_id": offer.ID, "points_cost": offer.PointsCost, "fee": fee,
	}); err != nil {
		return nil, err
	}
	if _, _, err := s.ledger.ApplyDelta(ctx, tx, offer.CreatorUserID, offer.PointsCost, &buyerID, "offer_accept_credit", "offer accepted by buyer", &offer.ID, map[string]any{
		"offer_id": offer.ID, "buyer_id": buyerID,
	}); err != nil {
		return nil, err
	}
	related := offer.ID
	if err := s.ledger.CreditFee(ctx, tx, fee, &buyerID, "offer_accept_fee", "offer acceptance fee", &related); err != nil {
		return nil, err
	}

	offer.AcceptedCount++
	offer.RecomputeActive()
	if err := s.offers.UpdateAcceptanceTx(ctx, tx, offer); err != nil {
		return nil, err
	}

	acceptance := &domain.OfferAcceptance{
		ID:         uuid.New(),
		OfferID:    offer.ID,
		BuyerID:    buyerID,
		PointsCost: offer.PointsCost,
		Fee:        fee,
		AcceptedAt: time.Now().UTC(),
	}
	if err := s.offers.InsertAcceptanceTx(ctx, tx, acceptance); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("offer_service.Accept: commit: %w", err)
	}
	return acceptance, nil
}

// Review records a 1-5 rating left by a user who has accepted the offer.
func (s *OfferService) Review(ctx context.Context, reviewerID, offerID uuid.UUID, req ReviewRequest) (*domain.OfferReview, error) {
	if !domain.ValidRating(req.Rating) {
		return nil, domain.ErrReviewInvalidRating
	}
	if _, err := s.offers.GetByID(ctx, offerID); err != nil {
		return nil, err
	}
	accepted, err := s.offers.HasAccepted(ctx, offerID, reviewerID)
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, domain.ErrReviewNotAccepted
	}

	review := &domain.OfferReview{
		ID:         uuid.New(),
		OfferID:    offerID,
		ReviewerID: reviewerID,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.offers.InsertReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// Get fetches an offer by id.
func (s *OfferService) Get(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	return s.offers.GetByID(ctx, id)
}

// List returns offers visible to userID, paginated.
func (s *OfferService) List(ctx context.Context, userID uuid.UUID, activeOnly bool, search string, limit, offset int) ([]*domain.Offer, int, error) {
	groupIDs, err := s.groups.MemberGroupIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if groupIDs == nil {
		// No memberships: an empty, non-nil list keeps the group filter on.
		groupIDs = []uuid.UUID{}
	}
	return s.offers.List(ctx, repository.OfferFilter{ActiveOnly: activeOnly, Search: search, GroupIDs: groupIDs}, limit, offset)
}

// Acceptances returns every acceptance of an offer.
func (s *OfferService) Acceptances(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferAcceptance, error) {
	return s.offers.Acceptances(ctx, offerID)
}

// Reviews returns every review of an offer.
func (s *OfferService) Reviews(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferReview, error) {
	return s.offers.Reviews(ctx, offerID)
}
