package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is the single configured administrator account.
type Credentials struct {
	Username string
	Password string
}

// Token is what a successful login returns.
type Token struct {
	AccessToken string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
}

// Authenticator checks admin credentials and issues signed tokens.
type Authenticator struct {
	creds  Credentials
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator requires a non-empty credential pair and signing key.
func NewAuthenticator(creds Credentials, signingKey []byte, issuer string, ttl time.Duration) (*Authenticator, error) {
	if len(signingKey) == 0 {
		return nil, ErrNoSigningKey
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("admin username and password are required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &Authenticator{creds: creds, key: signingKey, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Login returns a token when username and password match. The comparison is
// constant time on both fields.
func (a *Authenticator) Login(username, password string) (*Token, bool, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.creds.Password)) == 1
	if !userOK || !passOK {
		return nil, false, nil
	}

	now := a.now()
	exp := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: []string{RoleAdmin},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return nil, false, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: exp, Username: username, Role: RoleAdmin}, true, nil
}
