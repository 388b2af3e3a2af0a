// Package grant issues and verifies capture grants: short-lived HS256 tokens
// that authorize playback-loopback capture for a set of usages.
package grant

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"callrec/internal/domain"
)

type Claims struct {
	Usages []string `json:"usages"`
	jwt.RegisteredClaims
}

// Verifier remembers every grant it has handed out until the grant expires,
// keyed by its token ID. Verifying the same token again returns the same
// authorization, so a grant claimed or invalidated by a session stays that way.
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time

	mu     sync.Mutex
	issued map[string]*domain.Authorization
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
		issued: make(map[string]*domain.Authorization),
	}
}

// Verify parses token and returns the authorization it carries. A grant whose
// session has already ended is rejected with domain.ErrAuthorizationRevoked.
// Any failure is wrapped around domain.ErrAuthorization.
func (v *Verifier) Verify(token string) (*domain.Authorization, error) {
	auth, err := v.parse(token)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	v.prune(now)

	if known, ok := v.issued[auth.ID]; ok {
		if err := known.Valid(now); err != nil {
			return nil, fmt.Errorf("grant %s: %w", auth.ID, err)
		}
		return known, nil
	}
	v.issued[auth.ID] = auth
	return auth, nil
}

// prune forgets grants past their expiry; the token itself is rejected from
// then on by its exp claim.
func (v *Verifier) prune(now time.Time) {
	for id, auth := range v.issued {
		if !now.Before(auth.ExpiresAt) {
			delete(v.issued, id)
		}
	}
}

func (v *Verifier) parse(token string) (*domain.Authorization, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty capture grant", domain.ErrAuthorization)
	}
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: grant verification is not configured", domain.ErrAuthorization)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrAuthorizationExpired
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthorization, err)
	}

	auth := &domain.Authorization{
		ID:        claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		auth.IssuedAt = claims.IssuedAt.Time
	}
	for _, u := range claims.Usages {
		auth.Usages = append(auth.Usages, domain.Usage(u))
	}
	if auth.ID == "" {
		return nil, fmt.Errorf("%w: grant has no token id", domain.ErrAuthorization)
	}
	if len(auth.Usages) == 0 {
		return nil, fmt.Errorf("%w: grant %s names no usages", domain.ErrAuthorization, auth.ID)
	}
	return auth, nil
}

type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a grant for subject valid for ttl.
func (i *Issuer) Issue(subject string, usages []domain.Usage, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("grant secret is not configured")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("invalid grant ttl %s", ttl)
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	for _, u := range usages {
		claims.Usages = append(claims.Usages, string(u))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing grant: %w", err)
	}
	return signed, nil
}
