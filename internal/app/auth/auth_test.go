package auth

import (
	"errors"
	"testing"
	"time"
)

func TestManager_IssueVerify(t *testing.T) {
	m, err := NewManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", claims.UserID)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
}

func TestManager_RejectsWrongSecret(t *testing.T) {
	a, _ := NewManager("secret-a", time.Hour)
	b, _ := NewManager("secret-b", time.Hour)

	token, err := a.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
}

func TestManager_RejectsExpired(t *testing.T) {
	m, _ := NewManager("secret", time.Nanosecond)
	// NewManager treats non-positive ttl as DefaultTTL, so a nanosecond ttl
	// expires immediately without hitting the fallback.
	token, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestManager_RejectsGarbage(t *testing.T) {
	m, _ := NewManager("secret", time.Hour)
	if _, err := m.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestNewManager_EmptySecret(t *testing.T) {
	if _, err := NewManager("", time.Hour); err == nil {
		t.Fatalf("empty secret should be rejected")
	}
}

func TestNewManager_DefaultTTL(t *testing.T) {
	m, err := NewManager("secret", 0)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.ttl != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", m.ttl)
	}
}
