package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether a user's profile is discoverable by others.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Profile is the free-text, user-editable portion of a User.
type Profile struct {
	Description string     `json:"description" db:"description"`
	Alias       string     `json:"alias" db:"alias"`
	Quote       string     `json:"quote" db:"quote"`
	Visibility  Visibility `json:"visibility" db:"visibility"`
}

// User is the ledger-owning principal of the points economy. Only the
// Ledger component ever writes Points; everyone else reads it.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Points       int64     `json:"points" db:"points"`
	Banned       bool      `json:"banned" db:"banned"`
	BannedAt     *time.Time `json:"banned_at,omitempty" db:"banned_at"`
	Profile
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PublicProfile is the read model returned by GET /profiles/{id} — it never
// exposes points, email, or banned state to non-owners.
type PublicProfile struct {
	ID          uuid.UUID `json:"id"`
	Alias       string    `json:"alias"`
	Description string    `json:"description"`
	Quote       string    `json:"quote"`
}

// ToPublicProfile projects a User down to its public-facing fields. Callers
// are responsible for checking Visibility before exposing this to strangers.
func (u *User) ToPublicProfile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		Alias:       u.Profile.Alias,
		Description: u.Profile.Description,
		Quote:       u.Profile.Quote,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// RBAC
// ──────────────────────────────────────────────────────────────────────────────

// Role is a named bundle of permissions (e.g. "admin", "super_admin").
type Role struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
}

// Permission is a single grantable capability (e.g. "admin.access").
type Permission struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
}

// RolePermission joins Role to Permission.
type RolePermission struct {
	RoleID       uuid.UUID `db:"role_id"`
	PermissionID uuid.UUID `db:"permission_id"`
}

// UserRole joins User to Role.
type UserRole struct {
	UserID uuid.UUID `db:"user_id"`
	RoleID uuid.UUID `db:"role_id"`
}

// Well-known role/permission names seeded at bootstrap (§4.9).
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"

	PermAdminAccess = "admin.access"
	PermAdminSuper  = "admin.super"
)

// Principal is the resolved, request-scoped identity produced by Authz —
// the target-language equivalent of an ad-hoc "req.user" object (§9 design
// note): a small named record passed explicitly through call signatures
// rather than attached to a magic request object.
type Principal struct {
	UserID      uuid.UUID
	Email       string
	Banned      bool
	Permissions map[string]struct{}
}

// Has reports whether the principal carries the named permission.
func (p Principal) Has(permission string) bool {
	_, ok := p.Permissions[permission]
	return ok
}

// AuthSecret is one member of the rotating JWT signing/verification set.
type AuthSecret struct {
	ID        uuid.UUID  `db:"id"`
	Secret    string     `db:"secret"`
	IsPrimary bool       `db:"is_primary"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Expired reports whether the secret is past its expiry at time t.
func (s AuthSecret) Expired(t time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(t)
}

// ──────────────────────────────────────────────────────────────────────────────
// Sessions & devices
// ──────────────────────────────────────────────────────────────────────────────

// UserDevice records a device a user has authenticated from, so admins can
// revoke it independently of any single refresh token.
type UserDevice struct {
	ID         uuid.UUID `db:"id"`
	UserID     uuid.UUID `db:"user_id"`
	Label      string    `db:"label"`
	LastSeenAt time.Time `db:"last_seen_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// RefreshToken is a long-lived session token optionally bound to a device.
type RefreshToken struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	DeviceID  *uuid.UUID `db:"device_id"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at"`
	CreatedAt time.Time  `db:"created_at"`
}

// Active reports whether the refresh token can still be redeemed at time t.
func (r RefreshToken) Active(t time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(t)
}

// ──────────────────────────────────────────────────────────────────────────────
// Groups
// ──────────────────────────────────────────────────────────────────────────────

// Group scopes offer/bet visibility to its members (C10 access control).
type Group struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// GroupMember joins Group to User.
type GroupMember struct {
	GroupID  uuid.UUID `db:"group_id"`
	UserID   uuid.UUID `db:"user_id"`
	JoinedAt time.Time `db:"joined_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────────────────────────────────

// AuditLog is the append-only record of every points mutation and every
// admin action. Action is a short machine token, e.g. "ledger_delta",
// "ban_transfer_debit", "offer_accept_fee".
type AuditLog struct {
	ID              uuid.UUID      `db:"id"`
	ActorUserID     *uuid.UUID     `db:"actor_user_id"`
	TargetUserID    *uuid.UUID     `db:"target_user_id"`
	Action          string         `db:"action"`
	Reason          string         `db:"reason"`
	PointsDelta     *int64         `db:"points_delta"`
	BalanceBefore   *int64         `db:"balance_before"`
	BalanceAfter    *int64         `db:"balance_after"`
	RelatedEntity   *uuid.UUID     `db:"related_entity"`
	CorrelationID   *uuid.UUID     `db:"correlation_id"`
	Metadata        string         `db:"metadata"` // JSON-encoded, opaque to the ledger
	CreatedAt       time.Time      `db:"created_at"`
}
