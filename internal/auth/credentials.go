// Package auth provides credential verification and bearer-token issuance
// for the gateway. Users are loaded once from configuration and held
// immutably for the process lifetime.
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/tradewind-labs/signing_service/internal/config"
	"github.com/tradewind-labs/signing_service/internal/permission"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

// User is a configured identity with its per-wallet grants.
type User struct {
	Username     string
	passwordHash []byte
	Grants       permission.Grants
}

// Store holds the configured users.
type Store struct {
	users []*User
	log   *logger.Logger
}

// NewStore builds the credential store from configuration. The config is
// assumed validated, so grant capability strings parse cleanly.
func NewStore(users []config.UserSettings, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDefault("auth")
	}

	s := &Store{log: log}
	for _, u := range users {
		grants := make(permission.Grants, len(u.WalletGrants))
		for _, g := range u.WalletGrants {
			set, err := permission.ParseSet(g.Permissions)
			if err != nil {
				return nil, err
			}
			grants[g.Wallet] = set
		}
		s.users = append(s.users, &User{
			Username:     u.Username,
			passwordHash: []byte(u.PasswordHash),
			Grants:       grants,
		})
	}
	return s, nil
}

// Authenticate verifies username and password, returning nil on any
// mismatch. The user list is tiny and fixed, so a linear scan is fine.
// The password itself is never logged.
func (s *Store) Authenticate(username, password string) *User {
	for _, u := range s.users {
		if u.Username != username {
			continue
		}
		if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
			s.log.WithField("username", username).Warn("password mismatch")
			return nil
		}
		return u
	}
	s.log.WithField("username", username).Warn("unknown username")
	return nil
}

// Lookup returns the configured user for a username, or nil. Used to
// re-resolve token subjects so tokens for removed users stop working.
func (s *Store) Lookup(username string) *User {
	for _, u := range s.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
