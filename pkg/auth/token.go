package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

var ErrInvalidToken = errors.New("invalid access token")

// claims is the JWT body. The subject carries the user id.
type claims struct {
	Role enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Tokens mints and verifies HS256 access tokens for one issuer.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(cfg config.JWTConfig) (*Tokens, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.Expiration() <= 0:
		return nil, errors.New("jwt expiration must be positive")
	}
	return &Tokens{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.Expiration(),
		now:    time.Now,
	}, nil
}

// Mint signs a token for actor valid from now for the configured lifetime.
func (t *Tokens) Mint(actor Actor, now time.Time) (string, error) {
	if !actor.Valid() {
		return "", fmt.Errorf("mint token: invalid actor %s/%q", actor.UserID, actor.Role)
	}
	body := claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and lifetime and returns the actor the
// token was minted for. Every failure wraps ErrInvalidToken.
func (t *Tokens) Verify(token string) (Actor, error) {
	var body claims
	_, err := jwt.ParseWithClaims(token, &body,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(body.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}
	actor := NewActor(userID, body.Role)
	if !actor.Valid() {
		return Actor{}, fmt.Errorf("%w: role %q", ErrInvalidToken, body.Role)
	}
	return actor, nil
}
