package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"pesabridge.io/internal/ids"
)

const apiKeyDisplayPrefixLen = 12

// HashAPIKey derives the lookup hash for an API key secret. Keys are stored
// and looked up only by this derivation, never by the raw secret.
func HashAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IssueAPIKey creates a new API key for the developer. The returned secret
// is shown exactly once; only its hash and display prefix are persisted.
func (s *Service) IssueAPIKey(ctx context.Context, userID, name string, permissions []string, rateLimit int, ttl time.Duration) (*APIKey, string, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, "", fmt.Errorf("%w: user id and key name are required", ErrInvalidInput)
	}
	permissions = dedupeStrings(permissions)
	if len(permissions) == 0 {
		return nil, "", fmt.Errorf("%w: at least one permission is required", ErrInvalidInput)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", err
	}
	secret := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(secretBytes)

	key := &APIKey{
		ID:          ids.New(),
		UserID:      userID,
		Name:        name,
		KeyPrefix:   secret[:apiKeyDisplayPrefixLen],
		KeyHash:     HashAPIKey(secret),
		Permissions: permissions,
		RateLimit:   rateLimit,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	if ttl > 0 {
		exp := s.now().UTC().Add(ttl)
		key.ExpiresAt = &exp
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", err
	}
	return key, secret, nil
}

// ListAPIKeys returns the developer's keys with secrets redacted (only the
// display prefix remains).
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]*APIKey, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deactivates one of the developer's keys.
func (s *Service) RevokeAPIKey(ctx context.Context, userID, keyID string) error {
	userID = strings.TrimSpace(userID)
	keyID = strings.TrimSpace(keyID)
	if userID == "" || keyID == "" {
		return fmt.Errorf("%w: user id and key id are required", ErrInvalidInput)
	}
	return s.store.RevokeAPIKey(ctx, userID, keyID)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
