// Package escrow hands a freshly generated blockchain private key to its
// creator exactly once, via a single-use, time-boxed retrieval token.
package escrow

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/onetime"
)

// DefaultTTL is the retrieval window for an escrowed key.
const DefaultTTL = 30 * time.Minute

const (
	schemeAESGCM = "aes-gcm"
	// schemePlain is the reversible fallback used only when no encryption
	// key is configured. It must never run in a production posture.
	schemePlain = "plain"
)

// Entry is the decrypted result of a successful retrieval.
type Entry struct {
	AccountID  string `json:"account_id"`
	Network    string `json:"network"`
	PrivateKey string `json:"private_key"`
}

// envelope is what actually goes into the one-time token store: the key
// material is encrypted before it leaves this package.
type envelope struct {
	AccountID  string `json:"account_id"`
	Network    string `json:"network"`
	Scheme     string `json:"scheme"`
	Ciphertext string `json:"ciphertext"`
}

// Service encrypts private keys at rest and stores them behind single-use
// tokens. The private key is persisted nowhere else: losing the entry means
// the key is unrecoverable, which is the intended security property.
type Service struct {
	tokens     *onetime.Service
	aead       cipher.AEAD
	defaultTTL time.Duration
}

// New constructs the escrow service. encryptionKey must be 16, 24 or 32
// bytes for AES-GCM; a nil key selects the reversible fallback encoding and
// logs a loud warning.
func New(tokens *onetime.Service, encryptionKey []byte) (*Service, error) {
	if tokens == nil {
		return nil, errors.New("escrow: token service is required")
	}
	s := &Service{tokens: tokens, defaultTTL: DefaultTTL}
	if len(encryptionKey) == 0 {
		obs.Logger().Warn().
			Msg("ESCROW ENCRYPTION DISABLED: private keys will be stored with a reversible encoding; configure PESABRIDGE_ESCROW_KEY before any production use")
		return s, nil
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("escrow: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("escrow: gcm init: %w", err)
	}
	s.aead = aead
	return s, nil
}

// Store escrows the private key and returns the single-use retrieval token
// with its expiry. A non-positive ttl selects the default window.
func (s *Service) Store(ctx context.Context, accountID, privateKey, network string, ttl time.Duration) (string, time.Time, error) {
	if accountID == "" || privateKey == "" {
		return "", time.Time{}, errors.New("escrow: account id and private key are required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	env := envelope{AccountID: accountID, Network: network}
	if s.aead != nil {
		ct, err := s.encrypt([]byte(privateKey))
		if err != nil {
			return "", time.Time{}, err
		}
		env.Scheme = schemeAESGCM
		env.Ciphertext = ct
	} else {
		obs.Logger().Warn().Str("account_id", accountID).Msg("escrowing private key WITHOUT encryption")
		env.Scheme = schemePlain
		env.Ciphertext = base64.StdEncoding.EncodeToString([]byte(privateKey))
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiresAt, err := s.tokens.Issue(ctx, payload, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	obs.ObserveEscrowIssued()
	return token, expiresAt, nil
}

// Retrieve redeems the token and returns the decrypted entry. The first
// successful call consumes the entry; unknown, expired and already-consumed
// tokens all yield (nil, nil) and are indistinguishable to the caller.
// Errors are reserved for decryption and configuration failures, which
// indicate tampering or misconfiguration and are surfaced loudly.
func (s *Service) Retrieve(ctx context.Context, token string) (*Entry, error) {
	payload, ok, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("escrow: redeem: %w", err)
	}
	if !ok {
		obs.ObserveEscrowRedeem("absent")
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("escrow: corrupt envelope: %w", err)
	}

	var key []byte
	switch env.Scheme {
	case schemeAESGCM:
		if s.aead == nil {
			return nil, errors.New("escrow: entry is encrypted but no key is configured")
		}
		key, err = s.decrypt(env.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("escrow: decrypt: %w", err)
		}
	case schemePlain:
		key, err = base64.StdEncoding.DecodeString(env.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("escrow: decode: %w", err)
		}
	default:
		return nil, fmt.Errorf("escrow: unknown scheme %q", env.Scheme)
	}

	obs.ObserveEscrowRedeem("ok")
	return &Entry{
		AccountID:  env.AccountID,
		Network:    env.Network,
		PrivateKey: string(key),
	}, nil
}

// Revoke deletes the entry unconditionally and reports whether it existed.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	return s.tokens.Revoke(ctx, token)
}

// SweepExpired removes all entries past their retrieval window.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.tokens.SweepExpired(ctx)
}

func (s *Service) encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Service) decrypt(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, sealed, nil)
}
