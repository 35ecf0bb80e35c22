package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teamplan/scheduler/internal"
	"github.com/teamplan/scheduler/internal/user"
)

// UserRepository is the slice of user storage the auth flow needs.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
}

// RateLimiter bounds login attempts per key. A nil limiter disables the
// check (tests, redis outage).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const (
	loginAttemptLimit  = 10
	loginAttemptWindow = time.Minute
)

// Service performs authentication business logic.
type Service struct {
	userRepo   UserRepository
	tokens     TokenGenerator
	limiter    RateLimiter
	bcryptCost int
}

func NewService(userRepo UserRepository, tokens TokenGenerator, limiter RateLimiter) *Service {
	return &Service{
		userRepo:   userRepo,
		tokens:     tokens,
		limiter:    limiter,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Authenticate validates credentials and returns a token pair.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	email := strings.ToLower(strings.TrimSpace(dto.Email))
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "login:"+email, loginAttemptLimit, loginAttemptWindow)
		if err == nil && !ok {
			return AuthTokens{}, internal.ErrTooManyAttempts
		}
	}

	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	return s.issuePair(u.ID, u.Email)
}

// RefreshTokens swaps a valid refresh token for a new pair.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	return s.issuePair(u.ID, u.Email)
}

// Register creates a user with the employee role and returns it.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*user.User, error) {
	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	email := strings.ToLower(strings.TrimSpace(dto.Email))
	if existing, err := s.userRepo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, internal.ErrEmailTaken
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("password hashing failed", err)
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleEmployee,
		IsActive:     true,
	}
	if dto.DisplayName != "" {
		u.DisplayName = &dto.DisplayName
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoadPrincipal resolves an access token into the request principal.
func (s *Service) LoadPrincipal(ctx context.Context, accessToken string) (internal.Principal, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return internal.Principal{}, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return internal.Principal{}, internal.ErrInvalidToken
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return internal.Principal{}, internal.ErrInvalidToken
	}
	if !u.IsActive {
		return internal.Principal{}, internal.ErrUserInactive
	}
	p := internal.Principal{ID: u.ID, Email: u.Email, Role: u.Role}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	return p, nil
}

// HashPassword creates a bcrypt hash of the password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) issuePair(userID uuid.UUID, email string) (AuthTokens, error) {
	accessToken, err := s.tokens.GenerateAccessToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(userID, email)
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
	}, nil
}

// JWTTokenGenerator signs HS256 tokens with separate access and refresh
// secrets. The token_type claim pins which secret verifies a token.
type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

func NewJWTTokenGenerator(accessSecret, refreshSecret string) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     AccessTokenTTL,
		RefreshTokenTTL:    RefreshTokenTTL,
	}
}

func (j *JWTTokenGenerator) GenerateAccessToken(userID uuid.UUID, email string) (string, error) {
	return j.sign(userID, email, TokenTypeAccess, j.AccessTokenTTL, j.AccessTokenSecret)
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID uuid.UUID, email string) (string, error) {
	return j.sign(userID, email, TokenTypeRefresh, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return j.validate(tokenString, TokenTypeAccess, j.AccessTokenSecret)
}

func (j *JWTTokenGenerator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return j.validate(tokenString, TokenTypeRefresh, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) sign(userID uuid.UUID, email, tokenType string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID.String(),
		Email:     email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (j *JWTTokenGenerator) validate(tokenString, wantType string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}
