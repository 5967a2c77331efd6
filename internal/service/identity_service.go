package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"walletid/internal/domain"
	"walletid/internal/repository"
	"walletid/internal/storage"
	"walletid/internal/username"
	"walletid/internal/wallet"
)

var (
	// ErrNotFound indicates no identity exists for the external auth id.
	ErrNotFound = errors.New("identity not found")
	// ErrUsernameTaken indicates the candidate username is already in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrCreationFailed indicates identity creation could not complete; the
	// caller may retry (covers id and key collisions as well as store
	// failures).
	ErrCreationFailed = errors.New("failed to create identity")
	// ErrUpdateFailed indicates the final write did not succeed.
	ErrUpdateFailed = errors.New("failed to update identity")
)

// UsernameCooldown is the minimum interval between username changes.
const UsernameCooldown = 7 * 24 * time.Hour

// CooldownError reports an update rejected because the rename cooldown is
// still active.
type CooldownError struct {
	DaysRemaining int
	NextChange    time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("username can only be changed once every 7 days, %d days remaining", e.DaysRemaining)
}

// ResolveInput identifies the authenticated caller on first or repeat
// sign-in. ExternalAuthID and LoginMethod are required; the rest is
// provenance metadata recorded at creation.
type ResolveInput struct {
	ExternalAuthID      string
	LoginMethod         string
	Email               string
	SigninWalletAddress string
}

// UpdateInput carries the mutable profile fields. UsernameChanged asserts
// the caller intends a rename; a username without it is revalidated but
// does not touch the cooldown.
type UpdateInput struct {
	Username        *string
	UsernameChanged bool
	Avatar          *string
}

// IdentityService orchestrates wallet provisioning and identity mutation.
type IdentityService interface {
	Resolve(ctx context.Context, in ResolveInput) (*domain.Projection, error)
	Get(ctx context.Context, externalAuthID string) (*domain.Projection, error)
	// CheckUsername validates a candidate and reports availability. The
	// normalized form is returned even alongside ErrUsernameTaken so
	// callers can echo it back.
	CheckUsername(ctx context.Context, candidate, excludeExternalID string) (string, error)
	Update(ctx context.Context, externalAuthID string, in UpdateInput) (*domain.Projection, error)
}

type identityService struct {
	identities        repository.IdentityRepository
	encryptor         *wallet.Encryptor
	avatars           storage.Service
	avatarInlineLimit int
	now               func() time.Time
}

// NewIdentityService wires the service. avatars may be nil, in which case
// every avatar payload is stored inline; otherwise payloads larger than
// avatarInlineLimit bytes are offloaded to object storage.
func NewIdentityService(identities repository.IdentityRepository, encryptor *wallet.Encryptor, avatars storage.Service, avatarInlineLimit int) IdentityService {
	return &identityService{
		identities:        identities,
		encryptor:         encryptor,
		avatars:           avatars,
		avatarInlineLimit: avatarInlineLimit,
		now:               time.Now,
	}
}

func (s *identityService) Resolve(ctx context.Context, in ResolveInput) (*domain.Projection, error) {
	in.ExternalAuthID = strings.TrimSpace(in.ExternalAuthID)
	in.LoginMethod = strings.TrimSpace(in.LoginMethod)
	if in.ExternalAuthID == "" {
		return nil, errors.New("external auth id is required")
	}
	if in.LoginMethod == "" {
		return nil, errors.New("login method is required")
	}

	_, err := s.identities.GetByExternalID(ctx, in.ExternalAuthID)
	switch {
	case err == nil:
		lastLogin := s.now().UTC()
		updated, err := s.identities.Update(ctx, in.ExternalAuthID, repository.IdentityUpdate{
			LastLogin: &lastLogin,
		})
		if err != nil {
			return nil, fmt.Errorf("update last login: %w", err)
		}
		p := updated.Project()
		return &p, nil
	case errors.Is(err, repository.ErrNotFound):
		return s.create(ctx, in)
	default:
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
}

// create provisions the wallet and inserts the record. The plaintext
// secret exists only between generation and sealing; any failure aborts
// before the insert so no partial record can appear.
func (s *identityService) create(ctx context.Context, in ResolveInput) (*domain.Projection, error) {
	keypair, err := wallet.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: generate wallet: %v", ErrCreationFailed, err)
	}
	sealed, err := s.encryptor.Seal(keypair.Secret)
	keypair.Zero()
	if err != nil {
		return nil, fmt.Errorf("%w: seal wallet key: %v", ErrCreationFailed, err)
	}

	userID, err := s.identities.GenerateUserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: generate user id: %v", ErrCreationFailed, err)
	}

	identity := &domain.Identity{
		ExternalAuthID:            in.ExternalAuthID,
		UserID:                    userID,
		Username:                  domain.DeriveDefaultUsername(keypair.PublicKey),
		WalletPublicKey:           keypair.PublicKey,
		WalletPrivateKeyEncrypted: sealed,
		Avatar:                    domain.AvatarDefault,
		LoginMethod:               in.LoginMethod,
		Email:                     strings.TrimSpace(in.Email),
		SigninWalletAddress:       strings.TrimSpace(in.SigninWalletAddress),
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("%w: insert: %v", ErrCreationFailed, err)
	}

	p := identity.Project()
	return &p, nil
}

func (s *identityService) Get(ctx context.Context, externalAuthID string) (*domain.Projection, error) {
	identity, err := s.identities.GetByExternalID(ctx, externalAuthID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	p := identity.Project()
	return &p, nil
}

func (s *identityService) CheckUsername(ctx context.Context, candidate, excludeExternalID string) (string, error) {
	normalized, err := username.Validate(candidate)
	if err != nil {
		return "", err
	}

	holder, err := s.identities.GetByUsername(ctx, normalized)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return normalized, nil
	case err != nil:
		return "", fmt.Errorf("lookup username: %w", err)
	}

	if excludeExternalID != "" && holder.ExternalAuthID == excludeExternalID {
		// a user checking their own current name is not blocked by it
		return normalized, nil
	}
	return normalized, ErrUsernameTaken
}

func (s *identityService) Update(ctx context.Context, externalAuthID string, in UpdateInput) (*domain.Projection, error) {
	externalAuthID = strings.TrimSpace(externalAuthID)
	if externalAuthID == "" {
		return nil, errors.New("external auth id is required")
	}

	record, err := s.identities.GetByExternalID(ctx, externalAuthID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	var staged repository.IdentityUpdate

	if in.Avatar != nil {
		avatar, err := s.stageAvatar(ctx, record, *in.Avatar)
		if err != nil {
			return nil, err
		}
		staged.Avatar = avatar
	}

	switch {
	case in.Username != nil && in.UsernameChanged:
		if err := s.checkCooldown(record); err != nil {
			return nil, err
		}
		normalized, err := s.CheckUsername(ctx, *in.Username, externalAuthID)
		if err != nil {
			return nil, err
		}
		changedAt := s.now().UTC()
		staged.Username = &normalized
		staged.LastUsernameChange = &changedAt
	case in.Username != nil:
		// cosmetic resubmission: revalidate only, no uniqueness check and
		// no cooldown touch
		normalized, err := username.Validate(*in.Username)
		if err != nil {
			return nil, err
		}
		staged.Username = &normalized
	}

	updated, err := s.identities.Update(ctx, externalAuthID, staged)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			// a concurrent rename won the race; same outcome as a failed
			// availability check
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrUpdateFailed, err)
		}
	}

	p := updated.Project()
	return &p, nil
}

// stageAvatar returns the value to write for a recognized inline image
// payload, offloading to object storage when configured and above the
// inline limit. Unrecognized payloads stage nothing.
func (s *identityService) stageAvatar(ctx context.Context, record *domain.Identity, raw string) (*string, error) {
	contentType, data, ok := storage.ParseImageDataURI(raw)
	if !ok {
		return nil, nil
	}
	if s.avatars == nil || len(data) <= s.avatarInlineLimit {
		return &raw, nil
	}
	location, err := s.avatars.UploadAvatar(ctx, record.UserID, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: store avatar: %v", ErrUpdateFailed, err)
	}
	return &location, nil
}

func (s *identityService) checkCooldown(record *domain.Identity) error {
	if record.LastUsernameChange == nil {
		return nil
	}
	boundary := record.LastUsernameChange.Add(UsernameCooldown)
	now := s.now()
	if !now.Before(boundary) {
		return nil
	}
	remaining := boundary.Sub(now)
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return &CooldownError{DaysRemaining: days, NextChange: boundary}
}
