package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/gkouam/soulbondai-sub005"
)

// ErrNoSecret is returned by NewResolver without a signing secret.
var ErrNoSecret = errors.New("auth: signing secret required")

// Resolver verifies bearer tokens and resolves them into Principals.
type Resolver struct {
	secret []byte
	issuer string
	skew   time.Duration
	now    func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIssuer requires and issues tokens with the given iss claim.
func WithIssuer(iss string) Option {
	return func(r *Resolver) { r.issuer = iss }
}

// WithAcceptableSkew tolerates clock drift on exp, nbf and iat.
func WithAcceptableSkew(d time.Duration) Option {
	return func(r *Resolver) { r.skew = d }
}

// WithClock overrides time.Now for validation and issuing.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver for HS256 tokens signed with secret.
func NewResolver(secret []byte, opts ...Option) (*Resolver, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	r := &Resolver{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve verifies token and returns its Principal. Every failure matches
// soulbond.ErrUnauthenticated.
func (r *Resolver) Resolve(token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing token", soulbond.ErrUnauthenticated)
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256(), r.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(r.now)),
	}
	if r.skew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(r.skew))
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", soulbond.ErrUnauthenticated, err)
	}

	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", soulbond.ErrUnauthenticated)
	}
	return NewPrincipal(sub, claimValues(tok, "roles", "role"), claimValues(tok, "permissions")), nil
}

// Issue signs a token for userID with roles, valid for ttl. It backs
// service-to-service calls and local development.
func (r *Resolver) Issue(userID string, roles []string, ttl time.Duration) (string, error) {
	now := r.now()
	b := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(ttl))
	if len(roles) > 0 {
		b = b.Claim("roles", roles)
	}
	if r.issuer != "" {
		b = b.Issuer(r.issuer)
	}
	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), r.secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), nil
}

// claimValues collects string values of the named claims. A claim may be
// a string list or a single space or comma separated string.
func claimValues(tok jwt.Token, keys ...string) []string {
	var out []string
	for _, key := range keys {
		var raw any
		if err := tok.Get(key, &raw); err != nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			out = append(out, strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' })...)
		case []string:
			out = append(out, v...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
