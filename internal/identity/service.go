package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/walletcore/internal/account"
	"github.com/congo-pay/walletcore/internal/apperr"
	"github.com/congo-pay/walletcore/internal/ledger"
)

var (
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
	ErrPhoneTaken         = apperr.New(apperr.KindStateConflict, "phone_taken", "phone number already registered")
	ErrInvalidCredentials = apperr.Unauthenticated("invalid_credentials", "invalid phone or PIN")
	ErrInvalidPIN         = apperr.Validation("invalid_pin", "PIN must be 4 to 6 digits")
)

// AccountOpener opens the ledger account backing a new user.
type AccountOpener interface {
	Open(ctx context.Context, in ledger.OpenInput) (account.Account, error)
}

// Limits are the caps a freshly registered account starts with.
type Limits struct {
	Daily   int64
	Monthly int64
}

// Service manages identity lifecycle. It also serves as the phone directory
// and the PIN credential verifier of the transfer engine.
type Service struct {
	repo     Repository
	accounts AccountOpener
	limits   Limits
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, accounts AccountOpener, limits Limits, logger *slog.Logger) *Service {
	return &Service{repo: repo, accounts: accounts, limits: limits, logger: logger, now: time.Now}
}

// NormalizePhone strips formatting characters from a phone number.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// Register creates a user with a hashed PIN and opens their account.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if !validPIN(creds.PIN) {
		return User{}, ErrInvalidPIN
	}
	phone := NormalizePhone(creds.Phone)
	if phone == "" {
		return User{}, apperr.Validation("phone_required", "phone is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     phone,
		PINHash:   hash,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	if _, err := s.accounts.Open(ctx, ledger.OpenInput{
		ID:           user.ID,
		DailyLimit:   s.limits.Daily,
		MonthlyLimit: s.limits.Monthly,
	}); err != nil {
		if delErr := s.repo.Delete(ctx, user.ID); delErr != nil {
			s.logger.Error("undo registration", slog.String("user_id", user.ID), slog.Any("error", delErr))
		}
		return User{}, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies phone and PIN.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, NormalizePhone(creds.Phone))
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record last login", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// FindByID returns the user owning id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// ResolvePhone maps a phone number to the account registered with it.
func (s *Service) ResolvePhone(ctx context.Context, phone string) (string, error) {
	phone = NormalizePhone(phone)
	user, err := s.repo.FindByPhone(ctx, phone)
	if errors.Is(err, ErrUserNotFound) {
		return "", apperr.NotFound("recipient", phone)
	}
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// VerifyCredential checks a PIN against the owner of accountID.
func (s *Service) VerifyCredential(ctx context.Context, accountID, credential string) (bool, error) {
	user, err := s.repo.FindByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword(user.PINHash, []byte(credential)) == nil, nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
