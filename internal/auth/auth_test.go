package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestHashSecret(t *testing.T) {
	h1 := HashSecret("test-key-123")
	h2 := HashSecret("test-key-123")
	if h1 != h2 {
		t.Fatalf("same secret produced different hashes: %q vs %q", h1, h2)
	}

	h3 := HashSecret("different-key")
	if h1 == h3 {
		t.Fatal("different secrets produced the same hash")
	}

	if len(h1) != 64 {
		t.Fatalf("hash length = %d, want 64 (sha256 hex)", len(h1))
	}
}

func TestCaller_PrincipalID(t *testing.T) {
	userID := uuid.New()
	keyID := uuid.New()

	t.Run("session caller uses UserID", func(t *testing.T) {
		c := &Caller{UserID: userID, AuthKind: AuthKindSession}
		if got := c.PrincipalID(); got != userID {
			t.Errorf("PrincipalID() = %v, want %v", got, userID)
		}
	})

	t.Run("api key caller uses APIKeyID, not the zero-value UserID", func(t *testing.T) {
		c := &Caller{AuthKind: AuthKindAPIKey, APIKeyID: &keyID}
		if got := c.PrincipalID(); got != keyID {
			t.Errorf("PrincipalID() = %v, want %v", got, keyID)
		}
		if c.PrincipalID() == uuid.Nil {
			t.Error("PrincipalID() returned the zero UUID for an API-key caller")
		}
	})
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()

	if c := FromContext(ctx); c != nil {
		t.Fatalf("expected nil caller, got %+v", c)
	}

	caller := &Caller{UserID: uuid.New(), Email: "user@example.com", AuthKind: AuthKindSession}
	ctx = NewContext(ctx, caller)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("expected caller, got nil")
	}
	if got.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "user@example.com")
	}
	if got.AuthKind != AuthKindSession {
		t.Errorf("AuthKind = %q, want %q", got.AuthKind, AuthKindSession)
	}
}
