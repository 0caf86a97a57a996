package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret")

	token, err := svc.GenerateAccessToken(42, RoleUser)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	userID, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user id 42, got %d", userID)
	}
	if claims.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, claims.Role)
	}
}

func TestGenerateAccessToken_RejectsUnknownRole(t *testing.T) {
	svc := NewJWTService("test-secret")

	if _, err := svc.GenerateAccessToken(1, "superuser"); err != ErrInvalidRole {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a").GenerateAccessToken(1, RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := NewJWTService("secret-b").ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewJWTService("test-secret")
	svc.leeway = 0

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Role: RoleUser,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing failed: %v", err)
	}

	if _, err := svc.ValidateToken(token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

// TestValidateToken_Rotation tests that tokens signed with the previous
// secret remain valid during rotation.
func TestValidateToken_Rotation(t *testing.T) {
	oldSvc := NewJWTService("old-secret")
	token, err := oldSvc.GenerateAccessToken(7, RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	rotated := NewJWTServiceWithRotation("new-secret", "old-secret")
	claims, err := rotated.ValidateToken(token)
	if err != nil {
		t.Fatalf("expected old-secret token to validate during rotation: %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("expected role admin, got %q", claims.Role)
	}

	noRotation := NewJWTServiceWithRotation("new-secret", "")
	if _, err := noRotation.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken without rotation secret, got %v", err)
	}
}

func TestClaims_UserID_NonNumericSubject(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-number"}}
	if _, err := claims.UserID(); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
