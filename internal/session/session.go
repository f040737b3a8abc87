package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the session token for browser clients.
const CookieName = "wl_session"

var ErrInvalidToken = errors.New("invalid or expired token")

// Policy decides whether a Discord user is a portal admin.
type Policy interface {
	IsAdmin(userID string) bool
}

// AllowList is the default Policy: a fixed set of Discord user ids.
type AllowList map[string]struct{}

func NewAllowList(ids []string) AllowList {
	out := make(AllowList, len(ids))
	for _, id := range ids {
		if id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

func (a AllowList) IsAdmin(userID string) bool {
	_, ok := a[userID]
	return ok
}

// Identity is the Discord profile a session is issued for.
type Identity struct {
	ID     string
	Name   string
	Avatar string
}

// Claims are the session token contents. IsAdmin is evaluated once, when the
// session is issued.
type Claims struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	policy Policy
}

func NewIssuer(secret string, ttl time.Duration, policy Policy) *Issuer {
	if policy == nil {
		policy = AllowList{}
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, policy: policy}
}

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed token for id.
func (i *Issuer) Issue(id Identity) (string, *Claims, error) {
	if id.ID == "" {
		return "", nil, errors.New("session: identity without id")
	}
	now := time.Now()
	claims := &Claims{
		ID:      id.ID,
		Name:    id.Name,
		Avatar:  id.Avatar,
		IsAdmin: i.policy.IsAdmin(id.ID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Parse verifies a token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type ctxKey struct{}

// WithClaims stores the session claims on ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok && c != nil
}
