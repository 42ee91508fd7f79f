package domain

import "github.com/campusexchange/points/internal/apperr"

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is(), classify with apperr.KindOf()
// ──────────────────────────────────────────────────────────────────────────────

// User / ledger errors
var (
	ErrUserNotFound = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")

	ErrEmailTaken = apperr.New(apperr.KindConflict, "email_taken", "email address is already registered")

	ErrInvalidCredentials = apperr.New(apperr.KindUnauthenticated, "invalid_credentials", "invalid email or password")

	ErrUserBanned = apperr.New(apperr.KindForbidden, "user_banned", "user account is banned")

	ErrInsufficientPoints = apperr.New(apperr.KindInsufficientPoints, "insufficient_points", "insufficient points balance")

	ErrSuperAdminProtected = apperr.New(apperr.KindForbidden, "super_admin_protected", "operation forbidden against an admin or super-admin target")
)

// Auth errors
var (
	ErrUnauthenticated = apperr.New(apperr.KindUnauthenticated, "unauthenticated", "missing or invalid credentials")

	ErrForbidden = apperr.New(apperr.KindForbidden, "forbidden", "insufficient permissions")

	ErrTokenExpired = apperr.New(apperr.KindUnauthenticated, "token_expired", "token has expired")

	ErrTokenInvalid = apperr.New(apperr.KindUnauthenticated, "token_invalid", "token signature does not match any known secret")
)

// Idempotency errors
var (
	ErrIdempotencyPayloadMismatch = apperr.New(apperr.KindConflict, "key-reused-different-payload", "idempotency key reused with a different request payload")

	ErrIdempotencyInFlight = apperr.New(apperr.KindConflict, "in-flight", "an identical request is already being processed")
)

// Offer errors
var (
	ErrOfferNotFound = apperr.New(apperr.KindNotFound, "offer_not_found", "offer not found")

	ErrOfferInactive = apperr.New(apperr.KindStateInvalid, "offer_inactive", "offer is not active")

	ErrOfferCapReached = apperr.New(apperr.KindStateInvalid, "offer_cap_reached", "offer has reached its maximum acceptances")

	ErrOfferSelfAccept = apperr.New(apperr.KindValidation, "offer_self_accept", "creator cannot accept their own offer")

	ErrOfferGroupDenied = apperr.New(apperr.KindForbidden, "offer_group_denied", "user is not a member of the offer's group")

	ErrReviewAlreadyExists = apperr.New(apperr.KindConflict, "review_exists", "reviewer has already reviewed this offer")

	ErrReviewNotAccepted = apperr.New(apperr.KindStateInvalid, "review_not_accepted", "only users who accepted the offer may review it")

	ErrReviewInvalidRating = apperr.New(apperr.KindValidation, "review_invalid_rating", "rating must be between 1 and 5")
)

// Bet errors
var (
	ErrBetNotFound = apperr.New(apperr.KindNotFound, "bet_not_found", "bet not found")

	ErrBetNotOpen = apperr.New(apperr.KindStateInvalid, "bet_not_open", "bet is not open for buying")

	ErrBetClosed = apperr.New(apperr.KindStateInvalid, "bet_closed", "bet closing time has passed")

	ErrBetAlreadyResolved = apperr.New(apperr.KindConflict, "bet_already_resolved", "bet is already resolved")

	ErrBetWrongStateForSell = apperr.New(apperr.KindStateInvalid, "bet_wrong_state_for_sell", "bet is resolving, resolved, or cancelled — sell is forbidden")

	ErrBetWrongStateForCancel = apperr.New(apperr.KindStateInvalid, "bet_wrong_state_for_cancel", "bet is resolved or resolving — cancel is forbidden")

	ErrBetOptionNotFound = apperr.New(apperr.KindNotFound, "bet_option_not_found", "bet option not found")

	ErrBetOptionCount = apperr.New(apperr.KindValidation, "bet_option_count", "bet must have at least two options")

	ErrBetOddsTooLow = apperr.New(apperr.KindValidation, "bet_odds_too_low", "bet option odds must be >= 1.01")

	ErrBetClosesAtPast = apperr.New(apperr.KindValidation, "bet_closes_at_past", "bet closesAt must be strictly in the future")

	ErrPositionNotFound = apperr.New(apperr.KindNotFound, "position_not_found", "bet position not found")

	ErrPositionNotOpen = apperr.New(apperr.KindStateInvalid, "position_not_open", "bet position is not open")

	ErrPositionNotOwned = apperr.New(apperr.KindForbidden, "position_not_owned", "bet position does not belong to the caller")
)

// Payout worker errors
var (
	ErrPayoutJobNotFound = apperr.New(apperr.KindNotFound, "payout_job_not_found", "payout job not found")

	ErrPayoutJobNotQueued = apperr.New(apperr.KindConflict, "payout_job_not_queued", "payout job is not in a queued state")
)

// Group errors
var (
	ErrGroupNotFound = apperr.New(apperr.KindNotFound, "group_not_found", "group not found")
)

// Review rating bound, shared by validation and the domain invariant check.
const (
	MinReviewRating = 1
	MaxReviewRating = 5
)

// FeeRateNum / FeeRateDen express the 2% fee as an exact integer ratio so
// fee computation never touches floating point: fee = floor(amount*2/100).
const (
	FeeRateNum = 2
	FeeRateDen = 100
)

// MinBetOdds is the lowest odds value permitted on a bet option (§8 boundary).
const MinBetOdds = 1.01
