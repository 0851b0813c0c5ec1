package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pesabridge.io/internal/ids"
	"pesabridge.io/internal/obs"
	"pesabridge.io/internal/onetime"
)

const (
	defaultLockoutLimit  = 5
	defaultLockoutWindow = 15 * time.Minute
	defaultLockoutPeriod = 30 * time.Minute

	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
)

// Service provides registration, login, refresh rotation and the one-time
// verification/reset token flows on top of the credential store.
type Service struct {
	store  CredentialStore
	codec  *Codec
	tokens *onetime.Service
	now    func() time.Time

	lockoutLimit  int
	lockoutWindow time.Duration
	lockoutPeriod time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLockout overrides failed-login lockout parameters.
func WithLockout(limit int, window, period time.Duration) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.lockoutLimit = limit
		}
		if window > 0 {
			s.lockoutWindow = window
		}
		if period > 0 {
			s.lockoutPeriod = period
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the auth service. The one-time token service backs
// email verification and password reset; it may share a store with the key
// escrow service or use its own.
func NewService(store CredentialStore, codec *Codec, tokens *onetime.Service, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	s := &Service{
		store:         store,
		codec:         codec,
		tokens:        tokens,
		now:           time.Now,
		lockoutLimit:  defaultLockoutLimit,
		lockoutWindow: defaultLockoutWindow,
		lockoutPeriod: defaultLockoutPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins ensures the predefined permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

// TokenPair carries freshly issued access and refresh tokens.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Register creates a new identity and issues its first token pair. The
// returned verification token would normally travel by email; delivery is
// outside this service.
func (s *Service) Register(ctx context.Context, email, password, ip, userAgent string) (*Identity, TokenPair, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, TokenPair{}, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, TokenPair{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, "", err
	}

	now := s.now().UTC()
	identity := &Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, TokenPair{}, "", err
	}

	verifyToken, err := s.issueOneTime(ctx, purposeVerifyEmail, identity.ID, verifyTokenTTL)
	if err != nil {
		return nil, TokenPair{}, "", err
	}

	pair, err := s.mintTokens(ctx, identity, ip, userAgent)
	if err != nil {
		return nil, TokenPair{}, "", err
	}
	return identity, pair, verifyToken, nil
}

// Login authenticates credentials and issues a fresh token pair. Repeated
// failures within the lockout window temporarily lock the identity.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*Identity, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrUnauthorized
	}
	identity, err := s.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthorized
		}
		return nil, TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !identity.Active {
		return nil, TokenPair{}, ErrUnauthorized
	}

	now := s.now().UTC()
	if identity.LockedUntil != nil && now.Before(*identity.LockedUntil) {
		return nil, TokenPair{}, ErrLocked
	}

	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		if err := s.recordFailure(ctx, identity, ip, now); err != nil {
			obs.Logger().Warn().Err(err).Str("user_id", identity.ID).Msg("record failed login")
		}
		return nil, TokenPair{}, ErrUnauthorized
	}

	if err := s.store.ClearFailedLogins(ctx, identity.ID); err != nil {
		obs.Logger().Warn().Err(err).Str("user_id", identity.ID).Msg("clear failed logins")
	}
	pair, err := s.mintTokens(ctx, identity, ip, userAgent)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return identity, pair, nil
}

func (s *Service) recordFailure(ctx context.Context, identity *Identity, ip string, now time.Time) error {
	if err := s.store.RecordFailedLogin(ctx, identity.ID, ip, now); err != nil {
		return err
	}
	count, err := s.store.CountFailedLogins(ctx, identity.ID, now.Add(-s.lockoutWindow))
	if err != nil {
		return err
	}
	if count < s.lockoutLimit {
		return nil
	}
	until := now.Add(s.lockoutPeriod)
	obs.Logger().Warn().Str("user_id", identity.ID).Time("until", until).Msg("account locked after repeated failures")
	return s.store.SetLockedUntil(ctx, identity.ID, &until)
}

// Refresh rotates the refresh token: the presented token's session is
// revoked and a new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}

	session, err := s.store.FindSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	now := s.now().UTC()
	if !session.Active || !now.Before(session.ExpiresAt) {
		return TokenPair{}, ErrUnauthorized
	}
	if session.TokenHash != hashToken(refreshToken) {
		// Hash mismatch for a known session id means a forged or replayed
		// token; kill the session.
		_ = s.store.RevokeSession(ctx, session.ID)
		return TokenPair{}, ErrUnauthorized
	}

	identity, err := s.store.FindIdentity(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !identity.Active {
		return TokenPair{}, ErrUnauthorized
	}

	if err := s.store.RevokeSession(ctx, session.ID); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return s.mintTokens(ctx, identity, session.IP, session.UserAgent)
}

// Logout revokes the session behind the presented refresh token. Unknown or
// already-revoked tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil
	}
	session, err := s.store.FindSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if session.TokenHash != hashToken(refreshToken) {
		return nil
	}
	return s.store.RevokeSession(ctx, session.ID)
}

func (s *Service) mintTokens(ctx context.Context, identity *Identity, ip, userAgent string) (TokenPair, error) {
	roleNames := make([]string, 0, len(identity.Roles))
	for _, role := range identity.Roles {
		if role.Active {
			roleNames = append(roleNames, role.Name)
		}
	}
	access, accessExp, err := s.codec.IssueAccess(identity.ID, identity.Email, roleNames)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(identity.ID, identity.Email)
	if err != nil {
		return TokenPair{}, err
	}

	refreshClaims, err := s.codec.Verify(refresh, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.now().UTC()
	session := &Session{
		ID:             refreshClaims.ID,
		UserID:         identity.ID,
		TokenHash:      hashToken(refresh),
		IP:             ip,
		UserAgent:      userAgent,
		Active:         true,
		ExpiresAt:      refreshExp,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// --- one-time verification / reset tokens ---------------------------------

const (
	purposeVerifyEmail   = "verify-email"
	purposePasswordReset = "password-reset"
)

type oneTimePayload struct {
	Purpose string `json:"purpose"`
	UserID  string `json:"user_id"`
}

func (s *Service) issueOneTime(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	payload, err := json.Marshal(oneTimePayload{Purpose: purpose, UserID: userID})
	if err != nil {
		return "", err
	}
	token, _, err := s.tokens.Issue(ctx, payload, ttl)
	return token, err
}

func (s *Service) redeemOneTime(ctx context.Context, purpose, token string) (string, error) {
	if s.tokens == nil {
		return "", ErrNotFound
	}
	payload, ok, err := s.tokens.Redeem(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return "", ErrNotFound
	}
	var p oneTimePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Purpose != purpose {
		return "", ErrNotFound
	}
	return p.UserID, nil
}

// VerifyEmail redeems a verification token and marks the identity verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.redeemOneTime(ctx, purposeVerifyEmail, token)
	if err != nil {
		return err
	}
	return s.store.MarkEmailVerified(ctx, userID)
}

// RequestPasswordReset issues a single-use reset token for the email's
// identity. The token is always "issued" from the caller's perspective to
// avoid account enumeration; unknown emails yield an empty token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	identity, err := s.store.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return s.issueOneTime(ctx, purposePasswordReset, identity.ID, resetTokenTTL)
}

// ResetPassword redeems a reset token, replaces the password and revokes all
// of the identity's sessions.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	userID, err := s.redeemOneTime(ctx, purposePasswordReset, token)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.store.RevokeSessionsForUser(ctx, userID)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
