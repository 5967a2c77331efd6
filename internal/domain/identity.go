package domain

import "time"

// AvatarDefault is the sentinel stored for users who never uploaded a picture.
const AvatarDefault = "/pfpdefault.png"

// Identity is the stored profile+wallet tuple for one authenticated user.
type Identity struct {
	ID                        int64
	ExternalAuthID            string
	UserID                    string
	Username                  string
	WalletPublicKey           string
	WalletPrivateKeyEncrypted string
	Avatar                    string
	LoginMethod               string
	Email                     string
	SigninWalletAddress       string
	LastUsernameChange        *time.Time
	LastLogin                 *time.Time
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Projection is the caller-visible view of an identity. The encrypted
// private key never appears here.
type Projection struct {
	UserID             string
	Username           string
	WalletPublicKey    string
	Avatar             string
	LastUsernameChange *time.Time
	CreatedAt          time.Time
}

// Project strips an identity down to its public fields.
func (i *Identity) Project() Projection {
	return Projection{
		UserID:             i.UserID,
		Username:           i.Username,
		WalletPublicKey:    i.WalletPublicKey,
		Avatar:             i.Avatar,
		LastUsernameChange: i.LastUsernameChange,
		CreatedAt:          i.CreatedAt,
	}
}

// DeriveDefaultUsername builds the system-assigned username for a fresh
// wallet: the first and last three characters of the public key joined by
// an ellipsis. This value is derived, not user supplied, so it never goes
// through username validation.
func DeriveDefaultUsername(walletPublicKey string) string {
	if len(walletPublicKey) <= 6 {
		return walletPublicKey
	}
	return walletPublicKey[:3] + "..." + walletPublicKey[len(walletPublicKey)-3:]
}
