package domain

import (
	"time"

	"github.com/google/uuid"
)

// Offer is a fixed-price, sellable service listed by its creator.
//
// Invariant: AcceptedCount <= MaxAcceptances when MaxAcceptances != nil;
// IsActive implies (MaxAcceptances == nil || AcceptedCount < MaxAcceptances).
type Offer struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	CreatorUserID  uuid.UUID  `db:"creator_user_id" json:"creatorUserId"`
	GroupID        *uuid.UUID `db:"group_id" json:"groupId,omitempty"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	PointsCost     int64      `db:"points_cost" json:"pointsCost"`
	MaxAcceptances *int64     `db:"max_acceptances" json:"maxAcceptances,omitempty"`
	AcceptedCount  int64      `db:"accepted_count" json:"acceptedCount"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Unbounded reports whether the offer has no acceptance cap.
func (o *Offer) Unbounded() bool { return o.MaxAcceptances == nil }

// HasCapacity reports whether one more acceptance is still allowed.
func (o *Offer) HasCapacity() bool {
	return o.Unbounded() || o.AcceptedCount < *o.MaxAcceptances
}

// RecomputeActive derives IsActive from the current AcceptedCount against
// MaxAcceptances, matching the invariant enforced on every accept.
func (o *Offer) RecomputeActive() {
	o.IsActive = o.Unbounded() || o.AcceptedCount < *o.MaxAcceptances
}

// AcceptanceFee computes the 2% floor fee charged on top of PointsCost.
func (o *Offer) AcceptanceFee() int64 {
	return o.PointsCost * FeeRateNum / FeeRateDen
}

// OfferAcceptance records one user's purchase of an offer.
type OfferAcceptance struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OfferID    uuid.UUID `db:"offer_id" json:"offerId"`
	BuyerID    uuid.UUID `db:"buyer_id" json:"buyerId"`
	PointsCost int64     `db:"points_cost" json:"pointsCost"`
	Fee        int64     `db:"fee" json:"fee"`
	AcceptedAt time.Time `db:"accepted_at" json:"acceptedAt"`
}

// OfferReview is a 1-5 rating left by an acceptor, at most one per
// (offer, reviewer).
type OfferReview struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OfferID    uuid.UUID `db:"offer_id" json:"offerId"`
	ReviewerID uuid.UUID `db:"reviewer_id" json:"reviewerId"`
	Rating     int       `db:"rating" json:"rating"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ValidRating reports whether r falls within the allowed review range.
func ValidRating(r int) bool { return r >= MinReviewRating && r <= MaxReviewRating }
