package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"group-chat/internal/domain"
)

func TestAuthService_IssueVerify(t *testing.T) {
	svc := NewAuthService("secret", 15*time.Minute, 30*time.Minute, NewMemoryRefreshTokenStore())

	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.TokenType != "bearer" {
		t.Fatalf("unexpected pair: %+v", pair)
	}

	userID, err := svc.Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected u1, got %s", userID)
	}
	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil || claims.Name != "alice" {
		t.Fatalf("unexpected claims: %+v err=%v", claims, err)
	}
}

func TestAuthService_VerifyRejectsRefreshToken(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour, nil)
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(pair.RefreshToken); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := svc.Verify("garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAuthService_RefreshRotation(t *testing.T) {
	svc := NewAuthService("secret", 15*time.Minute, 30*time.Minute, NewMemoryRefreshTokenStore())
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	refreshed, err := svc.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Fatalf("expected refreshed tokens")
	}
	if _, err := svc.Refresh(pair.RefreshToken); err == nil {
		t.Fatalf("expected old refresh token to be revoked")
	}
}

func TestAuthService_Revoke(t *testing.T) {
	svc := NewAuthService("secret", 15*time.Minute, 30*time.Minute, NewMemoryRefreshTokenStore())
	pair, err := svc.Issue("u1", "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.Revoke(pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Refresh(pair.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail after revoke")
	}
	if err := svc.Revoke(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token rejected by revoke, got %v", err)
	}
}

func TestAuthService_RejectsEmptySecret(t *testing.T) {
	svc := NewAuthService("", time.Minute, time.Hour, nil)
	if _, err := svc.Issue("u1", "alice"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on empty secret, got %v", err)
	}
	var nilSvc *AuthService
	if _, err := nilSvc.Verify("x"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected nil service to reject, got %v", err)
	}
}

func signWith(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthService_RejectsForeignAndExpiredTokens(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour, nil)
	now := time.Now().UTC()

	wrongIssuer := signWith(t, Claims{
		UserID:    "u1",
		TokenType: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "other-issuer",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	})
	if _, err := svc.Verify(wrongIssuer); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	expired := signWith(t, Claims{
		UserID:    "u1",
		TokenType: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "group-chat",
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	})
	if _, err := svc.Verify(expired); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	mismatched := signWith(t, Claims{
		UserID:    "u1",
		TokenType: tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "group-chat",
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	if _, err := svc.Verify(mismatched); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for subject mismatch, got %v", err)
	}
}
