package auth

import (
	"testing"

	"github.com/tradewind-labs/signing_service/internal/config"
	"github.com/tradewind-labs/signing_service/internal/permission"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store, err := NewStore([]config.UserSettings{
		{
			Username:     "alice",
			PasswordHash: hash,
			WalletGrants: []config.GrantSettings{
				{Wallet: "wallet_1", Permissions: []string{"trade"}},
			},
		},
	}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAuthenticate(t *testing.T) {
	store := testStore(t)

	user := store.Authenticate("alice", "hunter2")
	if user == nil {
		t.Fatal("expected successful authentication")
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username %s", user.Username)
	}
	if !permission.UserAllows(user.Grants, "wallet_1", permission.Trade) {
		t.Fatal("expected trade grant on wallet_1")
	}

	if store.Authenticate("alice", "wrong") != nil {
		t.Fatal("expected nil for wrong password")
	}
	if store.Authenticate("bob", "hunter2") != nil {
		t.Fatal("expected nil for unknown user")
	}
}

func TestLookup(t *testing.T) {
	store := testStore(t)
	if store.Lookup("alice") == nil {
		t.Fatal("expected alice to resolve")
	}
	if store.Lookup("mallory") != nil {
		t.Fatal("expected unknown user to be nil")
	}
}
