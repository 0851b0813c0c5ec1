package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")

	// ErrUnauthorized covers missing, malformed, unsigned, wrong-type and
	// expired credentials, plus unrecognized API-key formats.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrForbidden means the credential is valid but the required
	// permissions are not satisfied. Use PermissionError to carry the
	// missing names.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrInternal marks store or infrastructure failures, distinct from
	// credential problems.
	ErrInternal = errors.New("auth: internal error")

	ErrLocked = errors.New("auth: account temporarily locked")
)

// Token codec failures. Callers reject on all three; they are distinguished
// for logging.
var (
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrWrongTokenType = errors.New("auth: wrong token type")
)

// PermissionError reports which required permissions the principal lacks.
type PermissionError struct {
	Missing []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("auth: missing permissions: %s", strings.Join(e.Missing, ", "))
}

// Is makes errors.Is(err, ErrForbidden) true for permission errors.
func (e *PermissionError) Is(target error) bool {
	return target == ErrForbidden
}
