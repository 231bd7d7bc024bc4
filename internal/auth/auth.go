// Package auth issues the short lived tokens a signed-in operator presents
// when opening the dashboard websocket.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

type Claims struct {
	gojwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	length time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewIssuer(secret []byte, length time.Duration) *Issuer {
	return &Issuer{secret: secret, length: length, now: time.Now, revoked: make(map[string]time.Time)}
}

// Issue returns a signed token for email and the time it stops being
// accepted.
func (i *Issuer) Issue(email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.length)
	claims := Claims{RegisteredClaims: gojwt.RegisteredClaims{
		Subject:   email,
		ID:        ulid.Make().String(),
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(exp),
	}}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (i *Issuer) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parser := gojwt.NewParser(
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithTimeFunc(i.now),
		gojwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(token, claims, func(t *gojwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Verify returns the operator email carried by a valid, unrevoked token.
func (i *Issuer) Verify(token string) (string, error) {
	claims, err := i.parse(token)
	if err != nil {
		return "", err
	}
	i.mu.Lock()
	_, revoked := i.revoked[claims.ID]
	i.mu.Unlock()
	if revoked {
		return "", ErrRevoked
	}
	return claims.Subject, nil
}

func (i *Issuer) Revoke(token string) error {
	claims, err := i.parse(token)
	if err != nil {
		return err
	}
	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, exp := range i.revoked {
		if now.After(exp) {
			delete(i.revoked, id)
		}
	}
	i.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}
