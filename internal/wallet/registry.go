package wallet

import (
	"sort"
	"time"

	"github.com/tradewind-labs/signing_service/internal/config"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

// Registry is the process-wide map of named wallets. It is built once from
// configuration and never mutated structurally afterward, so concurrent
// reads need no synchronization.
type Registry struct {
	wallets map[string]*Wallet
	log     *logger.Logger
}

// RegistryConfig configures registry construction.
type RegistryConfig struct {
	Wallets []config.WalletSettings
	Timeout time.Duration
	Log     *logger.Logger

	// ClientFactory, when set, overrides node client creation for every
	// wallet. Used by tests.
	ClientFactory func(settings config.WalletSettings) (NodeClient, error)
}

// NewRegistry builds the wallet pool from validated configuration.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("wallet")
	}

	wallets := make(map[string]*Wallet, len(cfg.Wallets))
	for _, settings := range cfg.Wallets {
		opts := Options{
			Settings: settings,
			Timeout:  cfg.Timeout,
			Log:      log,
		}
		if cfg.ClientFactory != nil {
			s := settings
			opts.ClientFactory = func() (NodeClient, error) { return cfg.ClientFactory(s) }
		}

		w, err := New(opts)
		if err != nil {
			return nil, err
		}
		wallets[w.Name()] = w
	}

	log.WithField("count", len(wallets)).Info("wallet registry built")
	return &Registry{wallets: wallets, log: log}, nil
}

// Resolve returns the wallet for a name, or nil if the name is unknown.
// Callers treat nil as a client error, not a server fault.
func (r *Registry) Resolve(name string) *Wallet {
	return r.wallets[name]
}

// Names returns all configured wallet names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.wallets))
	for name := range r.wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
