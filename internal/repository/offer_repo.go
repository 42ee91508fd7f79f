package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// OfferRepository handles Offer, OfferAcceptance, and OfferReview rows.
type OfferRepository struct {
	db *sqlx.DB
}

// NewOfferRepository creates a new OfferRepository.
func NewOfferRepository(db *sqlx.DB) *OfferRepository {
	return &OfferRepository{db: db}
}

// Create inserts a new offer.
func (r *OfferRepository) Create(ctx context.Context, o *domain.Offer) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO offers (id, creator_user_id, group_id, title, description, points_cost, max_acceptances, accepted_count, is_active, created_at)
		VALUES (:id, :creator_user_id, :group_id, :title, :description, :points_cost, :max_acceptances, :accepted_count, :is_active, :created_at)`, o)
	if err != nil {
		return fmt.Errorf("offer_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches an offer by id.
func (r *OfferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	var o domain.Offer
	err := r.db.GetContext(ctx, &o, `SELECT * FROM offers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer_repo.GetByID: %w", err)
	}
	return &o, nil
}

// GetForUpdate locks the offer row within tx — the first step of accept().
func (r *OfferRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Offer, error) {
	var o domain.Offer
	err := tx.GetContext(ctx, &o, `SELECT * FROM offers WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOfferNotFound
		}
		return nil, fmt.Errorf("offer_repo.GetForUpdate: %w", err)
	}
	return &o, nil
}

// OfferFilter narrows List results.
type OfferFilter struct {
	ActiveOnly bool
	Search     string
	GroupIDs   []uuid.UUID // visible groups for the requesting user, plus ungrouped
}

// List returns offers matching filter, paginated, plus the total count.
func (r *OfferRepository) List(ctx context.Context, f OfferFilter, limit, offset int) ([]*domain.Offer, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	pos := 1

	if f.ActiveOnly {
		where += " AND is_active = true"
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", pos, pos)
		args = append(args, "%"+f.Search+"%")
		pos++
	}
	if f.GroupIDs != nil {
		where += fmt.Sprintf(" AND (group_id IS NULL OR group_id = ANY($%d))", pos)
		args = append(args, pqUUIDArray(f.GroupIDs))
		pos++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM offers "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("offer_repo.List count: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT * FROM offers %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, pos, pos+1)

	var offers []*domain.Offer
	if err := r.db.SelectContext(ctx, &offers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("offer_repo.List select: %w", err)
	}
	return offers, total, nil
}

// UpdateAcceptanceTx persists the new accepted_count/is_active within tx.
func (r *OfferRepository) UpdateAcceptanceTx(ctx context.Context, tx *sqlx.Tx, o *domain.Offer) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE offers SET accepted_count = $1, is_active = $2 WHERE id = $3`,
		o.AcceptedCount, o.IsActive, o.ID)
	if err != nil {
		return fmt.Errorf("offer_repo.UpdateAcceptanceTx: %w", err)
	}
	return nil
}

// InsertAcceptanceTx records one OfferAcceptance row within tx.
func (r *OfferRepository) InsertAcceptanceTx(ctx context.Context, tx *sqlx.Tx, a *domain.OfferAcceptance) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO offer_acceptances (id, offer_id, buyer_id, points_cost, fee, accepted_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, a.ID, a.OfferID, a.BuyerID, a.PointsCost, a.Fee, a.AcceptedAt)
	if err != nil {
		return fmt.Errorf("offer_repo.InsertAcceptanceTx: %w", err)
	}
	return nil
}

// Acceptances returns every acceptance for an offer.
func (r *OfferRepository) Acceptances(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferAcceptance, error) {
	var rows []*domain.OfferAcceptance
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM offer_acceptances WHERE offer_id = $1 ORDER BY accepted_at DESC`, offerID)
	if err != nil {
		return nil, fmt.Errorf("offer_repo.Acceptances: %w", err)
	}
	return rows, nil
}

// HasAccepted reports whether userID has an acceptance row for offerID —
// used to gate review submission (ErrReviewNotAccepted).
func (r *OfferRepository) HasAccepted(ctx context.Context, offerID, userID uuid.UUID) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM offer_acceptances WHERE offer_id = $1 AND buyer_id = $2`, offerID, userID)
	if err != nil {
		return false, fmt.Errorf("offer_repo.HasAccepted: %w", err)
	}
	return count > 0, nil
}

// InsertReview inserts a review, surfacing the unique (offer,reviewer)
// constraint violation as domain.ErrReviewAlreadyExists.
func (r *OfferRepository) InsertReview(ctx context.Context, rev *domain.OfferReview) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO offer_reviews (id, offer_id, reviewer_id, rating, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, rev.ID, rev.OfferID, rev.ReviewerID, rev.Rating, rev.Comment, rev.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err, "offer_reviews_offer_id_reviewer_id_key") {
			return domain.ErrReviewAlreadyExists
		}
		return fmt.Errorf("offer_repo.InsertReview: %w", err)
	}
	return nil
}

// Reviews returns every review for an offer.
func (r *OfferRepository) Reviews(ctx context.Context, offerID uuid.UUID) ([]*domain.OfferReview, error) {
	var rows []*domain.OfferReview
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM offer_reviews WHERE offer_id = $1 ORDER BY created_at DESC`, offerID)
	if err != nil {
		return nil, fmt.Errorf("offer_repo.Reviews: %w", err)
	}
	return rows, nil
}

// pqUUIDArray renders a []uuid.UUID as a Postgres array literal, avoiding a
// dependency on lib/pq's pq.Array wrapper for the ANY(...) filters in
// OfferRepository.List and BetRepository.List.
func pqUUIDArray(ids []uuid.UUID) string {
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += id.String()
	}
	return s + "}"
}
