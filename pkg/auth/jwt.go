// Package auth issues and validates HS256 access tokens and hashes passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
)

var (
	// ErrInvalidToken covers malformed, badly signed and expired tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned when the signing key is empty.
	ErrMissingSecret = errors.New("signing secret is required")
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Claims represents the extracted claims from a validated JWT token.
type Claims struct {
	Subject   string    // Subject (sub), the user id
	Username  string    // username
	Issuer    string    // Issuer (iss)
	IssuedAt  time.Time // Issued at (iat)
	ExpiresAt time.Time // Expiration time (exp)
}

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// HMACTokenManager signs and verifies tokens with a shared secret.
type HMACTokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

// HMACOption configures optional behavior of the token manager.
type HMACOption func(*HMACTokenManager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) HMACOption {
	return func(m *HMACTokenManager) {
		m.now = now
	}
}

// NewHMACTokenManager creates a manager that issues tokens valid for ttl.
func NewHMACTokenManager(secret, issuer string, ttl time.Duration, log logger.Logger, opts ...HMACOption) (*HMACTokenManager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	if log == nil {
		log = logger.NewNop()
	}
	m := &HMACTokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		logger: log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue returns a signed token for subject and its expiry.
func (m *HMACTokenManager) Issue(subject, username string) (string, time.Time, error) {
	now := m.now().UTC().Truncate(time.Second)
	expires := now.Add(m.ttl)
	claims := tokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate verifies signature, algorithm, issuer and expiry.
func (m *HMACTokenManager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.issuer))
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, parserOpts...)
	if err != nil {
		m.logger.WithContext(ctx).Debug("token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	out := &Claims{
		Subject:  claims.Subject,
		Username: claims.Username,
		Issuer:   claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// claimsContextKey is the context key for storing claims.
type claimsContextKey struct{}

// WithClaims stores claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// GetClaims retrieves claims from the context.
// Returns nil if no claims are found.
func GetClaims(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey{}).(*Claims); ok {
		return claims
	}
	return nil
}
