package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/config"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// RegisterRequest contains the fields required to create a new user account.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Alias    string `json:"alias" binding:"omitempty,max=50"`
}

// TokenPair holds both tokens returned by a successful auth operation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult bundles the user with a fresh token pair.
type AuthResult struct {
	User   *domain.User `json:"user"`
	Tokens TokenPair    `json:"tokens"`
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthService
// ──────────────────────────────────────────────────────────────────────────────

// AuthService handles registration, login, and refresh-token rotation.
// Access tokens are short-lived signed JWTs verified against the rotating
// secret set (authz.Verifier); refresh tokens are opaque random strings
// stored only as a hash, scoped to an optional device, and individually
// revocable (§4.2, §4.7).
type AuthService struct {
	db       *sqlx.DB
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	verifier *authz.Verifier
	cfg      *config.Config
}

// NewAuthService creates an AuthService.
func NewAuthService(
	db *sqlx.DB,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	verifier *authz.Verifier,
	cfg *config.Config,
) *AuthService {
	return &AuthService{db: db, users: users, sessions: sessions, verifier: verifier, cfg: cfg}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register
// ──────────────────────────────────────────────────────────────────────────────

// Register creates a new user account with Points starting at zero and
// issues a fresh token pair bound to deviceLabel.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, deviceLabel string) (*AuthResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth_service.Register: hash: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Points:       0,
		Profile: domain.Profile{
			Alias:      req.Alias,
			Visibility: domain.VisibilityPublic,
		},
		CreatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user, deviceLabel)
}

// ──────────────────────────────────────────────────────────────────────────────
// Login
// ──────────────────────────────────────────────────────────────────────────────

// Login validates credentials and returns a fresh token pair bound to
// deviceLabel.
func (s *AuthService) Login(ctx context.Context, email, password, deviceLabel string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Map not-found to a generic credential error to prevent user enumeration.
		return nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if user.Banned {
		return nil, domain.ErrUserBanned
	}

	return s.issueTokens(ctx, user, deviceLabel)
}

// ──────────────────────────────────────────────────────────────────────────────
// RefreshToken
// ──────────────────────────────────────────────────────────────────────────────

// RefreshToken validates a presented refresh token against its stored hash
// and rotates it: the old token is revoked and a new pair is issued, so a
// stolen-and-replayed refresh token is single-use.
func (s *AuthService) RefreshToken(ctx context.Context, rawToken string) (*AuthResult, error) {
	hash := hashToken(rawToken)
	rt, err := s.sessions.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !rt.Active(time.Now().UTC()) {
		return nil, domain.ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	if user.Banned {
		return nil, domain.ErrUserBanned
	}

	if err := s.sessions.RevokeToken(ctx, rt.ID); err != nil {
		return nil, fmt.Errorf("auth_service.RefreshToken: revoke old: %w", err)
	}

	var deviceLabel string
	return s.issueTokensForDevice(ctx, user, rt.DeviceID, deviceLabel)
}

// ──────────────────────────────────────────────────────────────────────────────
// Token issuance
// ──────────────────────────────────────────────────────────────────────────────

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User, deviceLabel string) (*AuthResult, error) {
	var deviceID *uuid.UUID
	if deviceLabel != "" {
		device, err := s.sessions.TouchDevice(ctx, user.ID, deviceLabel)
		if err != nil {
			return nil, fmt.Errorf("auth_service.issueTokens: touch device: %w", err)
		}
		deviceID = &device.ID
	}
	return s.issueTokensForDevice(ctx, user, deviceID, deviceLabel)
}

func (s *AuthService) issueTokensForDevice(ctx context.Context, user *domain.User, deviceID *uuid.UUID, deviceLabel string) (*AuthResult, error) {
	access, err := s.verifier.Sign(user.ID, "access", s.cfg.Auth.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service: sign access token: %w", err)
	}

	raw, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("auth_service: generate refresh token: %w", err)
	}
	now := time.Now().UTC()
	rt := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		DeviceID:  deviceID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.cfg.Auth.RefreshTTL),
		CreatedAt: now,
	}
	if err := s.sessions.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("auth_service: store refresh token: %w", err)
	}

	return &AuthResult{
		User:   user,
		Tokens: TokenPair{AccessToken: access, RefreshToken: raw},
	}, nil
}

// newOpaqueToken generates a 256-bit random token, URL-safe base64 encoded.
func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
