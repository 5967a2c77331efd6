// Package wallet provisions custodial keypairs and seals private keys for
// storage at rest.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
)

var (
	// ErrAuthFailed indicates the ciphertext failed authentication on open.
	ErrAuthFailed = errors.New("wallet ciphertext authentication failed")
	// ErrInvalidCiphertext indicates a malformed stored envelope.
	ErrInvalidCiphertext = errors.New("wallet ciphertext envelope is invalid")
)

// Keypair is a freshly generated wallet. PublicKey is the base58 display
// form; Secret is the raw 64-byte private key in base64. The secret must be
// sealed and dropped before any value leaves the provisioning path.
type Keypair struct {
	PublicKey string
	Secret    []byte
}

// Generate produces a new ed25519 wallet keypair from the system CSPRNG.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	secret := make([]byte, base64.StdEncoding.EncodedLen(len(priv)))
	base64.StdEncoding.Encode(secret, priv)

	return &Keypair{
		PublicKey: base58.Encode(pub),
		Secret:    secret,
	}, nil
}

// Zero wipes the plaintext secret in place.
func (k *Keypair) Zero() {
	for i := range k.Secret {
		k.Secret[i] = 0
	}
}

type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Encryptor seals wallet secrets with a process-wide passphrase using
// argon2id key derivation and XChaCha20-Poly1305.
type Encryptor struct {
	passphrase string
}

func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, errors.New("wallet encryption key is required")
	}
	return &Encryptor{passphrase: passphrase}, nil
}

// Seal encrypts a plaintext secret and returns an opaque base64 string
// suitable for a TEXT column.
func (e *Encryptor) Seal(plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := e.deriveKey(salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	env := envelope{
		Version:     envelopeVersion,
		KDF:         "argon2id",
		KDFTime:     2,
		KDFMemoryKB: 64 * 1024,
		KDFThreads:  1,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, nil),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Open decrypts a stored ciphertext produced by Seal.
func (e *Encryptor) Open(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidCiphertext
	}
	if env.Version != envelopeVersion || env.KDF != "argon2id" {
		return nil, ErrInvalidCiphertext
	}

	key := e.deriveKey(env.Salt)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func (e *Encryptor) deriveKey(salt []byte) []byte {
	return argon2.IDKey([]byte(e.passphrase), salt, 2, 64*1024, 1, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
