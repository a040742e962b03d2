// Package config loads and validates the gateway configuration.
//
// The full set of wallets and users is supplied once at startup; nothing is
// hot-reloaded. Every entry is validated eagerly so a malformed config fails
// the process at boot instead of at first use.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tradewind-labs/signing_service/internal/permission"
)

// Environment selects the target network for a wallet.
type Environment string

const (
	EnvironmentProd    Environment = "prod"
	EnvironmentTestnet Environment = "testnet"
)

// WalletSettings describes one server-held signing identity.
type WalletSettings struct {
	Name        string   `yaml:"name"`
	PrivateKey  string   `yaml:"private_key"` // 32-byte hex
	Environment string   `yaml:"environment"` // prod (default) or testnet
	NodeURL     string   `yaml:"node_url"`    // optional endpoint override
	Permissions []string `yaml:"permissions"`
	IPAllowlist []string `yaml:"ip_allowlist"`
}

// GrantSettings is one (wallet, capabilities) grant on a user.
type GrantSettings struct {
	Wallet      string   `yaml:"wallet"`
	Permissions []string `yaml:"permissions"`
}

// UserSettings describes one configured user.
type UserSettings struct {
	Username     string          `yaml:"username"`
	PasswordHash string          `yaml:"password_hash"` // bcrypt
	WalletGrants []GrantSettings `yaml:"wallet_grants"`
}

// RateLimitSettings bounds per-client request rates.
type RateLimitSettings struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the full gateway configuration.
type Config struct {
	ListenAddr            string             `yaml:"listen_addr"`
	SecretKey             string             `yaml:"secret_key"`
	AccessTokenTTLMinutes int                `yaml:"access_token_ttl_minutes"`
	BroadcastTimeoutSecs  int                `yaml:"broadcast_timeout_seconds"`
	Wallets               []WalletSettings   `yaml:"wallets"`
	Users                 []UserSettings     `yaml:"users"`
	RateLimit             *RateLimitSettings `yaml:"rate_limit"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.AccessTokenTTLMinutes == 0 {
		cfg.AccessTokenTTLMinutes = 60
	}
	if cfg.BroadcastTimeoutSecs == 0 {
		cfg.BroadcastTimeoutSecs = 30
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	if c.AccessTokenTTLMinutes < 0 {
		return fmt.Errorf("access_token_ttl_minutes must not be negative")
	}
	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet is required")
	}

	walletNames := make(map[string]bool, len(c.Wallets))
	for i, w := range c.Wallets {
		if w.Name == "" {
			return fmt.Errorf("wallet %d: name is required", i)
		}
		if walletNames[w.Name] {
			return fmt.Errorf("wallet %s: duplicate name", w.Name)
		}
		walletNames[w.Name] = true

		key, err := hex.DecodeString(w.PrivateKey)
		if err != nil {
			return fmt.Errorf("wallet %s: private_key is not valid hex", w.Name)
		}
		if len(key) != 32 {
			return fmt.Errorf("wallet %s: private_key must be 32 bytes, got %d", w.Name, len(key))
		}

		switch Environment(w.Environment) {
		case EnvironmentProd, EnvironmentTestnet, "":
		default:
			return fmt.Errorf("wallet %s: unknown environment %q", w.Name, w.Environment)
		}

		if _, err := permission.ParseSet(w.Permissions); err != nil {
			return fmt.Errorf("wallet %s: %w", w.Name, err)
		}
	}

	usernames := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			return fmt.Errorf("user %d: username is required", i)
		}
		if usernames[u.Username] {
			return fmt.Errorf("user %s: duplicate username", u.Username)
		}
		usernames[u.Username] = true

		if u.PasswordHash == "" {
			return fmt.Errorf("user %s: password_hash is required", u.Username)
		}

		for _, g := range u.WalletGrants {
			if !walletNames[g.Wallet] {
				return fmt.Errorf("user %s: grant references unknown wallet %q", u.Username, g.Wallet)
			}
			if _, err := permission.ParseSet(g.Permissions); err != nil {
				return fmt.Errorf("user %s: wallet %s: %w", u.Username, g.Wallet, err)
			}
		}
	}

	if c.RateLimit != nil {
		if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit: requests_per_second and burst must be positive")
		}
	}

	return nil
}

// WalletEnvironment returns the wallet's environment, defaulting to prod.
func (w WalletSettings) WalletEnvironment() Environment {
	if w.Environment == "" {
		return EnvironmentProd
	}
	return Environment(w.Environment)
}
