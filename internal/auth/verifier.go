package auth

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/event-sphere/internal/domain"
)

// Claims are the token claims the service reads. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Name   string
}

type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	jwks    *keyfunc.JWKS
}

// NewJWKSVerifier verifies RS256/ES256 tokens against the keys published at
// jwksURL, refreshing them in the background.
func NewJWKSVerifier(ctx context.Context, jwksURL string) (*Verifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "load JWKS")
	}
	return &Verifier{
		keyfunc: jwks.Keyfunc,
		methods: []string{"RS256", "ES256"},
		jwks:    jwks,
	}, nil
}

// NewHMACVerifier verifies HS256 tokens signed with secret.
func NewHMACVerifier(secret string) *Verifier {
	key := []byte(secret)
	return &Verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{"HS256"},
	}
}

// Verify parses and validates a bearer token. Failures match
// domain.ErrUnauthorized.
func (v *Verifier) Verify(tokenStr string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "token validation failed"), domain.ErrUnauthorized)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.Mark(errors.New("invalid or expired token"), domain.ErrUnauthorized)
	}
	return &Principal{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
