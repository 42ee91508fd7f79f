// Package schema applies the SQL migrations directory and seeds the
// RBAC/auth-secret rows a fresh database needs before the server can
// authenticate anyone (C9).
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/config"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/repository"
)

// Bootstrapper applies migrations and seeds roles, permissions, the
// super-admin assignment, and the primary signing secret.
type Bootstrapper struct {
	db     *sqlx.DB
	rbac   *repository.RBACRepository
	users  *repository.UserRepository
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs a Bootstrapper.
func New(db *sqlx.DB, rbac *repository.RBACRepository, users *repository.UserRepository, cfg *config.Config, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{db: db, rbac: rbac, users: users, cfg: cfg, logger: logger}
}

// Run applies every *.sql file under dir in name order, then seeds RBAC and
// the primary auth secret. Safe to call on every boot: every migration and
// every seed statement is idempotent.
func (b *Bootstrapper) Run(ctx context.Context, dir string) error {
	if err := b.runMigrations(ctx, dir); err != nil {
		return fmt.Errorf("schema.Run: migrations: %w", err)
	}
	if err := b.seedRoles(ctx); err != nil {
		return fmt.Errorf("schema.Run: seed roles: %w", err)
	}
	if err := b.assignBootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("schema.Run: assign bootstrap admin: %w", err)
	}
	if err := b.rbac.InsertPrimarySecretIfMissing(ctx, b.cfg.Auth.PrimarySecret); err != nil {
		return fmt.Errorf("schema.Run: seed primary secret: %w", err)
	}
	return nil
}

// runMigrations reads every *.sql file from dir, sorted by name, and
// executes it. A fresh database can momentarily reject a statement whose
// dependency hasn't committed on another connection pooled by the same
// DSN; each file gets a small capped-retry with backoff before giving up.
func (b *Bootstrapper) runMigrations(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %q: %w", f, err)
		}
		if err := b.execWithRetry(ctx, string(data), 5); err != nil {
			return fmt.Errorf("exec %q: %w", f, err)
		}
		b.logger.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}

func (b *Bootstrapper) execWithRetry(ctx context.Context, stmt string, maxAttempts int) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			b.logger.Warn("migration statement failed, retrying", "attempt", attempt, "backoff", backoff, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// seedRoles ensures the admin/super_admin roles, the admin.access/
// admin.super permissions, and their join rows all exist.
func (b *Bootstrapper) seedRoles(ctx context.Context) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	roleIDs := map[string]string{}
	for _, name := range []string{domain.RoleAdmin, domain.RoleSuperAdmin} {
		var id string
		err := tx.GetContext(ctx, &id, `
			INSERT INTO roles (id, name) VALUES (gen_random_uuid(), $1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name)
		if err != nil {
			return fmt.Errorf("seed role %q: %w", name, err)
		}
		roleIDs[name] = id
	}

	permIDs := map[string]string{}
	for _, name := range []string{domain.PermAdminAccess, domain.PermAdminSuper} {
		var id string
		err := tx.GetContext(ctx, &id, `
			INSERT INTO permissions (id, name) VALUES (gen_random_uuid(), $1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name)
		if err != nil {
			return fmt.Errorf("seed permission %q: %w", name, err)
		}
		permIDs[name] = id
	}

	// admin holds admin.access; super_admin holds both.
	grants := map[string][]string{
		domain.RoleAdmin:      {domain.PermAdminAccess},
		domain.RoleSuperAdmin: {domain.PermAdminAccess, domain.PermAdminSuper},
	}
	for role, perms := range grants {
		for _, perm := range perms {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, roleIDs[role], permIDs[perm]); err != nil {
				return fmt.Errorf("grant %s -> %s: %w", role, perm, err)
			}
		}
	}

	return tx.Commit()
}

// assignBootstrapAdmin grants super_admin to the configured bootstrap user,
// looked up by id or email, if it isn't already assigned to anyone.
func (b *Bootstrapper) assignBootstrapAdmin(ctx context.Context) error {
	if _, err := b.rbac.FindSuperAdminID(ctx); err == nil {
		return nil // already assigned
	}

	var targetID string
	switch {
	case b.cfg.Auth.BootstrapAdminID != "":
		targetID = b.cfg.Auth.BootstrapAdminID
	case b.cfg.Auth.BootstrapAdminEmail != "":
		u, err := b.users.GetByEmail(ctx, b.cfg.Auth.BootstrapAdminEmail)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) || errors.Is(err, domain.ErrUserNotFound) {
				b.logger.Warn("bootstrap admin email not registered yet, skipping super-admin seed", "email", b.cfg.Auth.BootstrapAdminEmail)
				return nil
			}
			return err
		}
		targetID = u.ID.String()
	default:
		return nil
	}

	roleID, err := b.rbac.RoleIDByName(ctx, domain.RoleSuperAdmin)
	if err != nil {
		return err
	}

	parsed, err := uuid.Parse(targetID)
	if err != nil {
		return fmt.Errorf("invalid bootstrap admin id %q: %w", targetID, err)
	}
	if err := b.rbac.AssignRole(ctx, parsed, roleID); err != nil {
		return err
	}
	b.logger.Info("bootstrap super-admin assigned", "user_id", targetID)
	return nil
}
