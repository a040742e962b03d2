package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	store := testStore(t)
	svc := NewTokenService("test-secret", 5*time.Minute, store)

	token, err := svc.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	user, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user %s", user.Username)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	store := testStore(t)
	token, err := NewTokenService("secret-a", 5*time.Minute, store).Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = NewTokenService("secret-b", 5*time.Minute, store).Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	store := testStore(t)
	svc := NewTokenService("test-secret", 5*time.Minute, store)
	if _, err := svc.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpiry(t *testing.T) {
	store := testStore(t)
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// ttl=0 is already expired on first use
	svc := NewTokenService("test-secret", 0, store).WithClock(func() time.Time { return issued })
	token, err := svc.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.WithClock(func() time.Time { return issued.Add(time.Second) })
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken for ttl=0, got %v", err)
	}

	// 5m token: valid at 4m59s, expired at 5m1s
	svc = NewTokenService("test-secret", 5*time.Minute, store).WithClock(func() time.Time { return issued })
	token, err = svc.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.WithClock(func() time.Time { return issued.Add(4*time.Minute + 59*time.Second) })
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected token valid at 4m59s: %v", err)
	}

	svc.WithClock(func() time.Time { return issued.Add(5*time.Minute + time.Second) })
	if _, err := svc.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken at 5m1s, got %v", err)
	}
}

func TestVerifyRemovedUser(t *testing.T) {
	store := testStore(t)
	svc := NewTokenService("test-secret", 5*time.Minute, store)
	token, err := svc.Issue("ghost")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}
