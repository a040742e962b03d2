package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tradewind-labs/signing_service/internal/chain"
	"github.com/tradewind-labs/signing_service/internal/config"
)

// fakeNode is an in-memory NodeClient tracking queries and broadcasts.
type fakeNode struct {
	mu            sync.Mutex
	accountNumber uint64
	sequence      uint64
	queries       int
	broadcasts    []string
	broadcastErr  error
	queryErr      error
}

func (f *fakeNode) BroadcastHex(ctx context.Context, hexPayload string, sync bool) (*chain.BroadcastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broadcastErr != nil {
		return nil, f.broadcastErr
	}
	f.broadcasts = append(f.broadcasts, hexPayload)
	return &chain.BroadcastResult{Hash: "HASH", Code: 0}, nil
}

func (f *fakeNode) AccountSequence(ctx context.Context, address string) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return 0, 0, f.queryErr
	}
	f.queries++
	return f.accountNumber, f.sequence, nil
}

func testWallet(t *testing.T, node NodeClient) *Wallet {
	t.Helper()
	w, err := New(Options{
		Settings: config.WalletSettings{
			Name:        "wallet_1",
			PrivateKey:  strings.Repeat("11", 32),
			Environment: "testnet",
			Permissions: []string{"trade", "transfer"},
		},
		ClientFactory: func() (NodeClient, error) { return node, nil },
	})
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	return w
}

func TestInitialiseIdempotent(t *testing.T) {
	node := &fakeNode{accountNumber: 3, sequence: 10}
	w := testWallet(t, node)

	for i := 0; i < 3; i++ {
		if err := w.Initialise(context.Background()); err != nil {
			t.Fatalf("initialise: %v", err)
		}
	}
	if node.queries != 1 {
		t.Fatalf("expected a single account query, got %d", node.queries)
	}

	_, seq, err := w.Account(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if seq != 10 {
		t.Fatalf("expected sequence 10, got %d", seq)
	}
}

func TestWithNextSequenceAdvancesOnSuccessOnly(t *testing.T) {
	node := &fakeNode{sequence: 10}
	w := testWallet(t, node)

	err := w.WithNextSequence(context.Background(), func(client NodeClient, acct, seq uint64) error {
		if seq != 10 {
			t.Fatalf("expected sequence 10, got %d", seq)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with next sequence: %v", err)
	}

	// failure leaves the sequence untouched
	wantErr := fmt.Errorf("node rejected")
	err = w.WithNextSequence(context.Background(), func(client NodeClient, acct, seq uint64) error {
		if seq != 11 {
			t.Fatalf("expected sequence 11, got %d", seq)
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected body error to propagate, got %v", err)
	}

	_, seq, err := w.Account(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if seq != 11 {
		t.Fatalf("expected sequence still 11 after failed body, got %d", seq)
	}
}

func TestWithNextSequenceConcurrent(t *testing.T) {
	node := &fakeNode{sequence: 10}
	w := testWallet(t, node)

	const n = 20
	seen := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.WithNextSequence(context.Background(), func(client NodeClient, acct, seq uint64) error {
				seen <- seq
				return nil
			})
			if err != nil {
				t.Errorf("with next sequence: %v", err)
			}
		}()
	}
	wg.Wait()
	close(seen)

	used := make(map[uint64]bool)
	for seq := range seen {
		if used[seq] {
			t.Fatalf("sequence %d used twice", seq)
		}
		used[seq] = true
	}
	for i := uint64(10); i < 10+n; i++ {
		if !used[i] {
			t.Fatalf("sequence %d never used", i)
		}
	}

	_, final, err := w.Account(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if final != 10+n {
		t.Fatalf("expected final sequence %d, got %d", 10+n, final)
	}
}

func TestReinitialiseNeverRegresses(t *testing.T) {
	node := &fakeNode{sequence: 10}
	w := testWallet(t, node)

	for i := 0; i < 5; i++ {
		if err := w.WithNextSequence(context.Background(), func(NodeClient, uint64, uint64) error { return nil }); err != nil {
			t.Fatalf("with next sequence: %v", err)
		}
	}

	// a resync to a lower on-chain value is authoritative
	node.mu.Lock()
	node.sequence = 12
	node.mu.Unlock()

	seq, err := w.Resync(context.Background())
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if seq != 12 {
		t.Fatalf("expected resynced sequence 12, got %d", seq)
	}

	err = w.WithNextSequence(context.Background(), func(client NodeClient, acct, s uint64) error {
		if s != 12 {
			t.Fatalf("expected broadcast to use resynced sequence 12, got %d", s)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with next sequence: %v", err)
	}
}

func TestIPAuthorised(t *testing.T) {
	node := &fakeNode{}
	w, err := New(Options{
		Settings: config.WalletSettings{
			Name:        "restricted",
			PrivateKey:  strings.Repeat("22", 32),
			Permissions: []string{"trade"},
			IPAllowlist: []string{"10.0.0.1"},
		},
		ClientFactory: func() (NodeClient, error) { return node, nil },
	})
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}

	if !w.IPAuthorised("10.0.0.1") {
		t.Fatal("expected allow-listed IP to pass")
	}
	if w.IPAuthorised("10.0.0.2") {
		t.Fatal("expected other IP to be rejected")
	}

	open := testWallet(t, node)
	if !open.IPAuthorised("anything") {
		t.Fatal("expected empty allow-list to admit everyone")
	}
}

func TestRegistryResolve(t *testing.T) {
	node := &fakeNode{}
	reg, err := NewRegistry(RegistryConfig{
		Wallets: []config.WalletSettings{
			{Name: "wallet_1", PrivateKey: strings.Repeat("11", 32), Permissions: []string{"trade"}},
			{Name: "wallet_2", PrivateKey: strings.Repeat("22", 32), Permissions: []string{"transfer"}},
		},
		ClientFactory: func(config.WalletSettings) (NodeClient, error) { return node, nil },
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	if reg.Resolve("wallet_1") == nil {
		t.Fatal("expected wallet_1 to resolve")
	}
	if reg.Resolve("nope") != nil {
		t.Fatal("expected unknown name to resolve to nil")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "wallet_1" || names[1] != "wallet_2" {
		t.Fatalf("unexpected names %v", names)
	}
}
