// Package auth issues and verifies HS256 actor tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

const leeway = 5 * time.Second

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// ParseActor validates tokenString and returns the actor it names. Every
// failure wraps store.ErrUnauthenticated.
func (v *JWTVerifier) ParseActor(tokenString string) (models.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	tok, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return models.Actor{}, fmt.Errorf("%w: invalid token", store.ErrUnauthenticated)
	}

	role, err := parseRole(c.Role)
	if c.Subject == "" || err != nil {
		return models.Actor{}, fmt.Errorf("%w: missing actor claims", store.ErrUnauthenticated)
	}
	return models.Actor{Id: c.Subject, Role: role}, nil
}

type JWTSigner struct {
	secret []byte
	issuer string
}

func NewJWTSigner(secret, issuer string) *JWTSigner {
	return &JWTSigner{secret: []byte(secret), issuer: issuer}
}

// SignActor returns a token for actor valid for ttl from now.
func (s *JWTSigner) SignActor(actor models.Actor, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if actor.Id == "" {
		return "", time.Time{}, errors.New("actor id is required")
	}
	if _, err := parseRole(string(actor.Role)); err != nil {
		return "", time.Time{}, err
	}

	expiresAt := now.Add(ttl)
	c := claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.Id,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func parseRole(role string) (models.Role, error) {
	switch r := models.Role(role); r {
	case models.RolePlayer, models.RoleReviewer, models.RoleFinance, models.RoleAdmin, models.RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

// PeekActor reads the actor named by a token without verifying it. Clients
// use it to label their own requests; servers must use ParseActor.
func PeekActor(tokenString string) (models.Actor, error) {
	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &c); err != nil {
		return models.Actor{}, fmt.Errorf("%w: malformed token", store.ErrUnauthenticated)
	}
	role, err := parseRole(c.Role)
	if c.Subject == "" || err != nil {
		return models.Actor{}, fmt.Errorf("%w: missing actor claims", store.ErrUnauthenticated)
	}
	return models.Actor{Id: c.Subject, Role: role}, nil
}
