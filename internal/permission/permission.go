// Package permission implements the two-level capability model that gates
// every wallet operation: the wallet's own capability set and the requesting
// user's per-wallet grant must both include the requested capability.
package permission

import (
	"fmt"
	"strings"
)

// Capability names one class of wallet operation.
type Capability string

const (
	Trade    Capability = "trade"
	Transfer Capability = "transfer"
	Freeze   Capability = "freeze"
	Resync   Capability = "resync"
)

// All lists every known capability.
var All = []Capability{Trade, Transfer, Freeze, Resync}

// Parse converts a config string into a Capability.
func Parse(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Trade, Transfer, Freeze, Resync:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Set is a capability set.
type Set map[Capability]struct{}

// NewSet builds a set from capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// ParseSet builds a set from config strings.
func ParseSet(names []string) (Set, error) {
	s := make(Set, len(names))
	for _, n := range names {
		c, err := Parse(n)
		if err != nil {
			return nil, err
		}
		s[c] = struct{}{}
	}
	return s, nil
}

// Has reports whether the set contains the capability.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the set's capabilities in enum order.
func (s Set) List() []Capability {
	out := make([]Capability, 0, len(s))
	for _, c := range All {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Level identifies which check denied a request.
type Level string

const (
	WalletLevel Level = "wallet"
	UserLevel   Level = "user"
)

// Forbidden is returned when either authorization level denies an operation.
type Forbidden struct {
	Level      Level
	Capability Capability
	Wallet     string
}

func (e *Forbidden) Error() string {
	if e.Level == WalletLevel {
		return fmt.Sprintf("wallet %s does not permit %s", e.Wallet, e.Capability)
	}
	return fmt.Sprintf("user has no %s permission on wallet %s", e.Capability, e.Wallet)
}

// Grants maps wallet names to the capabilities a user holds on them.
type Grants map[string]Set

// UserAllows reports whether the grants include the capability for the wallet.
func UserAllows(g Grants, walletName string, c Capability) bool {
	set, ok := g[walletName]
	if !ok {
		return false
	}
	return set.Has(c)
}

// Authorize runs both checks and returns a Forbidden error naming the level
// that failed. The wallet-level check runs first so a misconfigured wallet is
// reported before any user grant is consulted.
func Authorize(walletName string, walletCaps Set, grants Grants, c Capability) error {
	if !walletCaps.Has(c) {
		return &Forbidden{Level: WalletLevel, Capability: c, Wallet: walletName}
	}
	if !UserAllows(grants, walletName, c) {
		return &Forbidden{Level: UserLevel, Capability: c, Wallet: walletName}
	}
	return nil
}
