package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorization = errors.New("authorization error")
	ErrResource      = errors.New("resource error")
	ErrRead          = errors.New("read error")
	ErrWrite         = errors.New("write error")
	ErrSessionActive = errors.New("a capture session is already active")

	ErrAuthorizationExpired = fmt.Errorf("%w: capture grant expired", ErrAuthorization)
	ErrAuthorizationRevoked = fmt.Errorf("%w: capture grant revoked", ErrAuthorization)
)
