package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/identity"
)

var (
	ErrInvalidToken  = apperr.Unauthenticated("invalid_token", "invalid token")
	ErrTokenRevoked  = apperr.Unauthenticated("token_revoked", "token invalidated")
	ErrMissingBearer = apperr.Unauthenticated("missing_bearer", "missing bearer token")
)

// Config holds the signing secrets and token lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims are the JWT claims of access and refresh tokens. Version must match
// the user's token version for the token to be accepted.
type Claims struct {
	Version int `json:"ver"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg  Config
	repo identity.Repository
	now  func() time.Time
}

func NewService(cfg Config, repo identity.Repository) *Service {
	return &Service{cfg: cfg, repo: repo, now: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues a token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user.ID, user.TokenVersion, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user.ID, user.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTTL.Seconds())}, nil
}

func (s *Service) sign(subject string, version int, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Service) parse(token string, secret []byte) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// current checks that the token version still matches the user's.
func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrTokenRevoked
	}
	if err != nil {
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}

// Authenticate validates an access token and returns the user id it names.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.parse(accessToken, s.cfg.AccessSecret)
	if err != nil {
		return "", err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(user.ID, user.TokenVersion, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTTL.Seconds()), nil
}

// Logout increments token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}
