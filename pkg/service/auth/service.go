package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/repository/document"
)

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(subject, username string) (string, time.Time, error)
}

// Service holds the account use cases.
type Service struct {
	users  *UserRepository
	hasher *auth.PasswordHasher
	tokens TokenIssuer
	clock  func() time.Time
	log    logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

func NewService(users *UserRepository, hasher *auth.PasswordHasher, tokens TokenIssuer, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		clock:  func() time.Time { return time.Now().UTC() },
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account. A taken email or username is a 409.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (UserResponse, error) {
	req.Normalize()
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return UserResponse{}, controller.NewInternalError("could not hash password", err)
	}
	now := s.clock()
	user, err := s.users.Create(ctx, &User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, document.ErrConflict) {
			return UserResponse{}, controller.NewConflictError(controller.ReasonUserExists, "User already exists")
		}
		return UserResponse{}, controller.NewInternalError("could not create user", err)
	}
	s.log.WithContext(ctx).Info("user registered", "user_id", user.ID.Hex())
	return ToUserResponse(user), nil
}

// Login verifies the credentials and issues an access token. Unknown users
// and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, req LoginRequest) (TokenResponse, error) {
	login := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := s.users.FindByUsernameOrEmail(ctx, login)
	if err != nil {
		return TokenResponse{}, controller.NewInternalError("could not load user", err)
	}
	if user == nil || s.hasher.Compare(user.PasswordHash, req.Password) != nil {
		return TokenResponse{}, controller.NewUnauthorizedError(controller.ReasonInvalidCredentials, "Invalid username or password")
	}

	token, expires, err := s.tokens.Issue(user.ID.Hex(), user.Username)
	if err != nil {
		return TokenResponse{}, controller.NewInternalError("could not issue token", err)
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
	}, nil
}

// Me returns the profile of userID.
func (s *Service) Me(ctx context.Context, userID string) (MeResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return MeResponse{}, controller.NewInternalError("could not load user", err)
	}
	if user == nil {
		return MeResponse{}, controller.NewNotFoundError(controller.ReasonUserNotFound, "User not found")
	}
	return MeResponse{Email: user.Email, Username: user.Username, FullName: user.FullName}, nil
}
