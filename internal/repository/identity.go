package repository

import (
	"context"
	"errors"
	"time"

	"walletid/internal/domain"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("identity not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("identity conflicts with an existing record")
)

// IdentityUpdate carries the fields staged for a single-write update.
// Nil fields are left untouched.
type IdentityUpdate struct {
	Username           *string
	LastUsernameChange *time.Time
	Avatar             *string
	LastLogin          *time.Time
}

// IdentityRepository defines persistence operations for identity records.
// Username lookups are case-insensitive; the store must enforce uniqueness
// of external auth id, user id, username, and wallet public key so that a
// racing write surfaces as ErrConflict.
type IdentityRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, identity *domain.Identity) error
	GetByExternalID(ctx context.Context, externalAuthID string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	Update(ctx context.Context, externalAuthID string, update IdentityUpdate) (*domain.Identity, error)
	GenerateUserID(ctx context.Context) (string, error)
}
