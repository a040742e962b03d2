// Package wallet holds the process-wide pool of server-held signing
// identities and the per-wallet sequence discipline. Each wallet guards its
// own mutable state (sequence number, node client) with its own lock, so
// unrelated wallets never block each other.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradewind-labs/signing_service/internal/chain"
	"github.com/tradewind-labs/signing_service/internal/config"
	"github.com/tradewind-labs/signing_service/internal/permission"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

// NodeClient is the outbound chain connection a wallet owns. Exactly one is
// created per wallet on first need and reused until explicitly reset.
type NodeClient interface {
	BroadcastHex(ctx context.Context, hexPayload string, sync bool) (*chain.BroadcastResult, error)
	AccountSequence(ctx context.Context, address string) (accountNumber, sequence uint64, err error)
}

// Wallet is one named server-side signing identity. The sequence number is
// the only field mutated after construction.
type Wallet struct {
	name        string
	keys        *chain.KeyPair
	environment config.Environment
	chainID     string
	caps        permission.Set
	ipAllowlist []string
	log         *logger.Logger

	newClient func() (NodeClient, error)

	mu            sync.Mutex
	client        NodeClient
	initialised   bool
	accountNumber uint64
	sequence      uint64
}

// Options configures wallet construction.
type Options struct {
	Settings config.WalletSettings
	Timeout  time.Duration
	Log      *logger.Logger

	// ClientFactory overrides how the wallet builds its node client.
	// Tests inject fakes through it.
	ClientFactory func() (NodeClient, error)
}

// New constructs a wallet from validated settings.
func New(opts Options) (*Wallet, error) {
	settings := opts.Settings

	keys, err := chain.NewKeyPairFromHex(settings.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", settings.Name, err)
	}

	caps, err := permission.ParseSet(settings.Permissions)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", settings.Name, err)
	}

	env := settings.WalletEnvironment()
	testnet := env == config.EnvironmentTestnet

	nodeURL := settings.NodeURL
	if nodeURL == "" {
		nodeURL = chain.NodeURLForEnvironment(testnet)
	}

	log := opts.Log
	if log == nil {
		log = logger.NewDefault("wallet")
	}

	factory := opts.ClientFactory
	if factory == nil {
		timeout := opts.Timeout
		factory = func() (NodeClient, error) {
			return chain.NewClient(chain.ClientConfig{NodeURL: nodeURL, Timeout: timeout})
		}
	}

	return &Wallet{
		name:        settings.Name,
		keys:        keys,
		environment: env,
		chainID:     chain.ChainIDForEnvironment(testnet),
		caps:        caps,
		ipAllowlist: settings.IPAllowlist,
		log:         log.WithField("wallet", settings.Name),
		newClient:   factory,
	}, nil
}

// Name returns the wallet's configured name.
func (w *Wallet) Name() string { return w.name }

// Address returns the wallet's chain address.
func (w *Wallet) Address() string { return w.keys.Address() }

// Environment returns the wallet's target network environment.
func (w *Wallet) Environment() config.Environment { return w.environment }

// ChainID returns the chain ID messages are signed against.
func (w *Wallet) ChainID() string { return w.chainID }

// Capabilities returns the wallet's own capability set.
func (w *Wallet) Capabilities() permission.Set { return w.caps }

// Keys returns the wallet's signing identity for use by the signing
// collaborator. The private key stays inside the chain package.
func (w *Wallet) Keys() *chain.KeyPair { return w.keys }

// IPAuthorised reports whether a caller IP may use this wallet. An empty
// allow-list or a "*" entry admits everyone.
func (w *Wallet) IPAuthorised(ip string) bool {
	if len(w.ipAllowlist) == 0 {
		return true
	}
	for _, allowed := range w.ipAllowlist {
		if allowed == "*" || allowed == ip {
			return true
		}
	}
	return false
}

// clientLocked returns the wallet's node client, creating it on first need.
// Callers must hold w.mu.
func (w *Wallet) clientLocked() (NodeClient, error) {
	if w.client == nil {
		c, err := w.newClient()
		if err != nil {
			return nil, fmt.Errorf("wallet %s: create node client: %w", w.name, err)
		}
		w.client = c
	}
	return w.client, nil
}

// ResetClient drops the wallet's node client so the next use recreates it.
func (w *Wallet) ResetClient() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.client = nil
}

// ensureInitialisedLocked establishes the wallet's on-chain account number
// and sequence on first touch. Re-initialisation never regresses the local
// sequence below what has already been consumed: the higher of the local and
// freshly queried values wins.
func (w *Wallet) ensureInitialisedLocked(ctx context.Context) error {
	if w.initialised {
		return nil
	}

	client, err := w.clientLocked()
	if err != nil {
		return err
	}

	acct, seq, err := client.AccountSequence(ctx, w.keys.Address())
	if err != nil {
		return fmt.Errorf("wallet %s: query account: %w", w.name, err)
	}

	w.accountNumber = acct
	if seq > w.sequence {
		w.sequence = seq
	}
	w.initialised = true

	w.log.WithField("account_number", acct).
		WithField("sequence", w.sequence).
		Info("wallet initialised")
	return nil
}

// Initialise is the idempotent first-touch reconciliation. Safe to call
// repeatedly.
func (w *Wallet) Initialise(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ensureInitialisedLocked(ctx)
}

// Account returns the wallet's account number and current sequence without
// reserving the sequence. The value may be immediately stale relative to a
// concurrent broadcast; sign-only callers accept that.
func (w *Wallet) Account(ctx context.Context) (accountNumber, sequence uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureInitialisedLocked(ctx); err != nil {
		return 0, 0, err
	}
	return w.accountNumber, w.sequence, nil
}

// WithNextSequence runs body inside the wallet's exclusive section with the
// current sequence, then advances the sequence by exactly one if and only if
// body succeeds. On failure the sequence is untouched and the error
// propagates. Broadcasts for one wallet serialize here; other wallets
// proceed in parallel.
func (w *Wallet) WithNextSequence(ctx context.Context, body func(client NodeClient, accountNumber, sequence uint64) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureInitialisedLocked(ctx); err != nil {
		return err
	}
	client, err := w.clientLocked()
	if err != nil {
		return err
	}

	if err := body(client, w.accountNumber, w.sequence); err != nil {
		return err
	}

	w.sequence++
	return nil
}

// Resync forces a reconciliation query and overwrites the local sequence
// with the node's authoritative value regardless of prior local state.
func (w *Wallet) Resync(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	client, err := w.clientLocked()
	if err != nil {
		return 0, err
	}

	acct, seq, err := client.AccountSequence(ctx, w.keys.Address())
	if err != nil {
		return 0, fmt.Errorf("wallet %s: resync: %w", w.name, err)
	}

	w.accountNumber = acct
	w.sequence = seq
	w.initialised = true

	w.log.WithField("sequence", seq).Info("wallet resynced")
	return seq, nil
}
