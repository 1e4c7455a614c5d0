package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	clockNow := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		TokenTTL:      30 * time.Minute,
		Clock: func() time.Time {
			return clockNow
		},
	})

	tokenString, expiresAt, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{
		UserID:      "user-123",
		Email:       "ada@example.com",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return clockNow }))
	claims := &SessionClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("unexpected subject %s / %s", claims.Subject, claims.UserID)
	}
	if claims.Issuer != defaultSessionIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.UserDisplayName != "Ada" {
		t.Fatalf("unexpected display name %s", claims.UserDisplayName)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{TokenTTL: time.Minute})
	if _, _, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{UserID: "user-1"}); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}
}

func TestTokenIssuerRejectsMissingSubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if _, _, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{UserID: "  "}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
	if issuer.TokenTTL() != defaultTokenTTL {
		t.Fatalf("expected default ttl, got %s", issuer.TokenTTL())
	}
}

func TestIssuedTokenPassesSessionValidator(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("shared")})
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("shared"),
		CookieName:    "polly_session",
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	token, _, err := issuer.IssueSessionToken(context.Background(), SessionIdentity{UserID: "user-9"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	claims, err := validator.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "user-9" {
		t.Fatalf("unexpected user id %s", claims.UserID)
	}
}
