package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	t.Run("round trip carries principal", func(t *testing.T) {
		token, err := m.Generate("GMEMBER")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		claims, err := m.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.Principal() != "GMEMBER" {
			t.Errorf("principal: expected GMEMBER, got %s", claims.Principal())
		}
	})

	t.Run("rejects empty principal", func(t *testing.T) {
		if _, err := m.Generate(""); err == nil {
			t.Error("expected error for empty principal")
		}
	})

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		other := NewJWTManager("other-secret", time.Hour)
		token, err := other.Generate("GMEMBER")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("rejects expired token", func(t *testing.T) {
		expired := NewJWTManager("test-secret", -time.Minute)
		token, err := expired.Generate("GMEMBER")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("rejects raw secret as key", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Issuer: issuer, Subject: "GMEMBER"}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}

		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := m.Validate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestContextAuthenticator(t *testing.T) {
	var a ContextAuthenticator

	t.Run("no principal", func(t *testing.T) {
		err := a.RequireAuthorization(context.Background(), "GMEMBER")
		if !errors.Is(err, ErrNoPrincipal) {
			t.Errorf("expected ErrNoPrincipal, got %v", err)
		}
	})

	t.Run("matching principal", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), "GMEMBER")
		if err := a.RequireAuthorization(ctx, "GMEMBER"); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("different principal", func(t *testing.T) {
		ctx := WithPrincipal(context.Background(), "GOTHER")
		err := a.RequireAuthorization(ctx, "GMEMBER")
		if !errors.Is(err, ErrPrincipalMismatch) {
			t.Errorf("expected ErrPrincipalMismatch, got %v", err)
		}
	})
}
