package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletid/internal/domain"
	"walletid/internal/repository"
)

// username collates NOCASE so uniqueness and lookups are case-insensitive;
// the unique indexes make racing writes fail instead of persisting
// duplicates.
const createIdentitiesTable = `
CREATE TABLE IF NOT EXISTS identities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_auth_id TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE COLLATE NOCASE,
	wallet_public_key TEXT NOT NULL UNIQUE,
	wallet_private_key_encrypted TEXT NOT NULL,
	avatar TEXT NOT NULL,
	login_method TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	signin_wallet_address TEXT NOT NULL DEFAULT '',
	last_username_change DATETIME,
	last_login DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const identityColumns = `
id, external_auth_id, user_id, username, wallet_public_key,
wallet_private_key_encrypted, avatar, login_method, email,
signin_wallet_address, last_username_change, last_login, created_at, updated_at`

type IdentityRepository struct {
	db *sql.DB
}

func NewIdentityRepository(db *sql.DB) repository.IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createIdentitiesTable); err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO identities (
	external_auth_id, user_id, username, wallet_public_key,
	wallet_private_key_encrypted, avatar, login_method, email,
	signin_wallet_address, last_username_change, last_login, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ExternalAuthID,
		identity.UserID,
		identity.Username,
		identity.WalletPublicKey,
		identity.WalletPrivateKeyEncrypted,
		identity.Avatar,
		identity.LoginMethod,
		identity.Email,
		identity.SigninWalletAddress,
		identity.LastUsernameChange,
		identity.LastLogin,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert identity: %w", repository.ErrConflict)
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("identity last insert id: %w", err)
	}
	identity.ID = id
	return nil
}

func (r *IdentityRepository) GetByExternalID(ctx context.Context, externalAuthID string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+identityColumns+`
FROM identities
WHERE external_auth_id = ?`,
		externalAuthID,
	)
	return scanIdentity(row)
}

func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	// the column collates NOCASE, so = matches case-insensitively
	row := r.db.QueryRowContext(ctx, `
SELECT `+identityColumns+`
FROM identities
WHERE username = ?`,
		username,
	)
	return scanIdentity(row)
}

func (r *IdentityRepository) Update(ctx context.Context, externalAuthID string, update repository.IdentityUpdate) (*domain.Identity, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *update.Username)
	}
	if update.LastUsernameChange != nil {
		sets = append(sets, "last_username_change = ?")
		args = append(args, *update.LastUsernameChange)
	}
	if update.Avatar != nil {
		sets = append(sets, "avatar = ?")
		args = append(args, *update.Avatar)
	}
	if update.LastLogin != nil {
		sets = append(sets, "last_login = ?")
		args = append(args, *update.LastLogin)
	}
	args = append(args, externalAuthID)

	res, err := r.db.ExecContext(ctx, `
UPDATE identities
SET `+strings.Join(sets, ", ")+`
WHERE external_auth_id = ?`,
		args...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("update identity: %w", repository.ErrConflict)
		}
		return nil, fmt.Errorf("update identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update identity rows affected: %w", err)
	}
	if affected == 0 {
		return nil, repository.ErrNotFound
	}

	return r.GetByExternalID(ctx, externalAuthID)
}

// GenerateUserID allocates a display identifier unique across records.
func (r *IdentityRepository) GenerateUserID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		candidate := "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

		var exists int
		err := r.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM identities WHERE user_id = ?`, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check user id: %w", err)
		}
		if exists == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("generate user id: exhausted attempts")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func scanIdentity(row interface {
	Scan(dest ...any) error
}) (*domain.Identity, error) {
	var (
		identity           domain.Identity
		lastUsernameChange sql.NullTime
		lastLogin          sql.NullTime
	)
	if err := row.Scan(
		&identity.ID,
		&identity.ExternalAuthID,
		&identity.UserID,
		&identity.Username,
		&identity.WalletPublicKey,
		&identity.WalletPrivateKeyEncrypted,
		&identity.Avatar,
		&identity.LoginMethod,
		&identity.Email,
		&identity.SigninWalletAddress,
		&lastUsernameChange,
		&lastLogin,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	if lastUsernameChange.Valid {
		t := lastUsernameChange.Time
		identity.LastUsernameChange = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLogin = &t
	}
	return &identity, nil
}
