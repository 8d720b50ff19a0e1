package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/walletcore/internal/identity"
)

func newTestService(t *testing.T) (*Service, identity.Repository, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	user := identity.User{ID: "0b6c3f3e-8a1d-4a55-9d59-2f4c3c1f7a10", Phone: "+911111111111", CreatedAt: time.Now()}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := NewService(Config{
		AccessSecret:  []byte("access"),
		RefreshSecret: []byte("refresh"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "test",
	}, repo)
	return svc, repo, user
}

func TestLoginAuthenticateAndRefresh(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expected 900s got %d", pair.ExpiresIn)
	}
	uid, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil || uid != user.ID {
		t.Fatalf("Authenticate: %q %v", uid, err)
	}

	if _, err := svc.Authenticate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not pass as access token, got %v", err)
	}

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Authenticate(ctx, access); err != nil {
		t.Fatalf("refreshed token rejected: %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked access token, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked refresh token, got %v", err)
	}
}

func TestExpiredAndTamperedTokens(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	issued := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(16 * time.Minute) }
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}

	svc.now = func() time.Time { return issued }
	sig := []byte(pair.AccessToken)
	i := len(sig) - 6
	if sig[i] == 'A' {
		sig[i] = 'B'
	} else {
		sig[i] = 'A'
	}
	tampered := string(sig)
	if _, err := svc.Authenticate(ctx, tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token error, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed token error, got %v", err)
	}
}
