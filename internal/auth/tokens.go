package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenSubject = "access"

// Token verification failures. All of them surface to clients as a generic
// authentication failure; they are distinguished only for logging.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnknownUser  = errors.New("token user not configured")
)

// Claims are the signed contents of an access token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless bearer tokens. Tokens are
// validated purely by signature and expiry; there is no session store.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	store  *Store
	now    func() time.Time
}

// NewTokenService creates a token service signing with the process secret.
func NewTokenService(secret string, ttl time.Duration, store *Store) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue creates a signed access token for the username.
func (s *TokenService) Issue(username string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tokenSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks a token's signature and expiry and resolves its username to
// a configured user. A user removed from config invalidates all of their
// outstanding tokens immediately.
func (s *TokenService) Verify(tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject != tokenSubject {
		return nil, ErrInvalidToken
	}

	user := s.store.Lookup(claims.Username)
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}
