package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pesabridge.io/internal/obs"
)

// APIKeyPrefix is the fixed, recognizable prefix carried by every issued
// API key. A bearer string without it can only be a session token.
const APIKeyPrefix = "pbk_"

// Authenticator is the request-time gate. It accepts either a session access
// token or an API key and unifies both into an AuthContext.
//
// The authorization policy is intentionally asymmetric: session users are
// presumed vetted by login and get implicit access to a narrow allow-list of
// basic operations even without explicit grants; API keys, handed to
// third-party code, are always strictly enforced.
type Authenticator struct {
	codec *Codec
	store CredentialStore
	now   func() time.Time
}

// NewAuthenticator wires the token codec and credential store.
func NewAuthenticator(codec *Codec, store CredentialStore) (*Authenticator, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	return &Authenticator{codec: codec, store: store, now: time.Now}, nil
}

// Authenticate resolves the bearer credential and applies the authorization
// policy. An empty required set always allows once the credential is valid.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string, required ...string) (*AuthContext, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		obs.ObserveAuth("none", "unauthorized")
		return nil, fmt.Errorf("%w: missing credential", ErrUnauthorized)
	}

	// Try session auth first. Any codec failure falls through to the
	// API-key path; it is not an error yet.
	claims, codecErr := a.codec.Verify(bearer, TokenAccess)
	if codecErr == nil {
		return a.authenticateSession(ctx, claims, required)
	}
	obs.Logger().Debug().Err(codecErr).Msg("session verify failed, trying api key")

	return a.authenticateAPIKey(ctx, bearer, required)
}

func (a *Authenticator) authenticateSession(ctx context.Context, claims *Claims, required []string) (*AuthContext, error) {
	identity, err := a.store.FindIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveAuth(string(KindSession), "unauthorized")
			return nil, fmt.Errorf("%w: unknown subject", ErrUnauthorized)
		}
		obs.ObserveAuth(string(KindSession), "internal")
		return nil, fmt.Errorf("%w: identity lookup: %v", ErrInternal, err)
	}
	if !identity.Active {
		obs.ObserveAuth(string(KindSession), "unauthorized")
		return nil, fmt.Errorf("%w: identity disabled", ErrUnauthorized)
	}

	perms := ResolvePermissions(identity)
	if missing := missingPermissions(perms, required); len(missing) > 0 {
		// Session leniency: requests covered entirely by the basic
		// operations allow-list pass without explicit grants. The check
		// is all-or-nothing against the requested set.
		if !allBasic(required) {
			obs.ObserveAuth(string(KindSession), "forbidden")
			return nil, &PermissionError{Missing: missing}
		}
	}

	obs.ObserveAuth(string(KindSession), "ok")
	return &AuthContext{
		Kind:        KindSession,
		PrincipalID: identity.ID,
		Permissions: perms,
		Identity:    identity,
	}, nil
}

func (a *Authenticator) authenticateAPIKey(ctx context.Context, bearer string, required []string) (*AuthContext, error) {
	if !strings.HasPrefix(bearer, APIKeyPrefix) {
		obs.ObserveAuth(string(KindAPIKey), "unauthorized")
		return nil, fmt.Errorf("%w: bad credential format", ErrUnauthorized)
	}

	key, err := a.store.FindAPIKeyByHash(ctx, HashAPIKey(bearer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ObserveAuth(string(KindAPIKey), "unauthorized")
			return nil, fmt.Errorf("%w: unknown api key", ErrUnauthorized)
		}
		obs.ObserveAuth(string(KindAPIKey), "internal")
		return nil, fmt.Errorf("%w: api key lookup: %v", ErrInternal, err)
	}
	if !key.Active {
		obs.ObserveAuth(string(KindAPIKey), "unauthorized")
		return nil, fmt.Errorf("%w: api key revoked", ErrUnauthorized)
	}
	if key.ExpiresAt != nil && !a.now().UTC().Before(*key.ExpiresAt) {
		obs.ObserveAuth(string(KindAPIKey), "unauthorized")
		return nil, fmt.Errorf("%w: api key expired", ErrUnauthorized)
	}

	perms := make(map[string]struct{}, len(key.Permissions))
	for _, name := range key.Permissions {
		perms[name] = struct{}{}
	}
	// No allow-list exception here: API keys carry exactly what they were
	// granted.
	if missing := missingPermissions(perms, required); len(missing) > 0 {
		obs.ObserveAuth(string(KindAPIKey), "forbidden")
		return nil, &PermissionError{Missing: missing}
	}

	if err := a.store.RecordAPIKeyUsage(ctx, key.ID, a.now().UTC()); err != nil {
		obs.Logger().Warn().Err(err).Str("key_id", key.ID).Msg("record api key usage")
	}

	obs.ObserveAuth(string(KindAPIKey), "ok")
	return &AuthContext{
		Kind:        KindAPIKey,
		PrincipalID: key.UserID,
		Permissions: perms,
		Key:         key,
	}, nil
}
