// Package identity issues the stable anonymous identities players are known
// by. An identity is a random id carried in a signed token so a browser
// that reconnects keeps the same player record.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is an issued anonymous identity
type Identity struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider signs and verifies identity tokens
type Provider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewProvider creates a provider signing with secret. Tokens expire after ttl.
func NewProvider(secret, issuer string, ttl time.Duration) *Provider {
	return &Provider{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a new identity
func (p *Provider) Issue() (Identity, error) {
	return p.issueFor(uuid.NewString())
}

// Resume returns the identity carried by token, or a fresh one when the
// token is empty or no longer valid. The token is re-signed either way.
func (p *Provider) Resume(token string) (Identity, error) {
	if token != "" {
		if userID, err := p.Verify(token); err == nil {
			return p.issueFor(userID)
		}
	}
	return p.Issue()
}

func (p *Provider) issueFor(userID string) (Identity, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return Identity{}, fmt.Errorf("sign identity token: %w", err)
	}
	return Identity{UserID: userID, Token: signed, ExpiresAt: exp}, nil
}

// Verify checks token and returns the identity it names
func (p *Provider) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// TokenFromRequest finds a token in the Authorization header or the token
// query parameter
func TokenFromRequest(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	return r.URL.Query().Get("token")
}
