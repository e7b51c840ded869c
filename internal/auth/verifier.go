package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/toiletmap/toiletmap-api/internal/config"
)

// Verification failures. Every one of them means "unauthenticated".
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidSignature  = errors.New("invalid token signature")
	ErrInvalidAudience   = errors.New("invalid token audience")
	ErrInvalidIssuer     = errors.New("invalid token issuer")
	ErrMissingKeyID      = errors.New("token missing kid header")
	ErrKeySetUnavailable = errors.New("signing keys unavailable")
)

// DefaultLeeway absorbs clock skew on exp, nbf and iat
const DefaultLeeway = 30 * time.Second

// TokenVerifier checks a bearer token for the given audience
type TokenVerifier interface {
	Verify(ctx context.Context, token, audience string) (jwt.MapClaims, error)
}

// Verifier validates RS256 tokens issued by one Auth0 tenant
type Verifier struct {
	issuer string
	keys   *KeySet
	parser *jwt.Parser
}

func NewVerifier(issuer string, keys *KeySet, leeway time.Duration) *Verifier {
	return &Verifier{
		issuer: config.NormalizeIssuer(issuer),
		keys:   keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks signature, expiry, audience and issuer, in that order, and
// returns the token's claims. The subject must be present.
func (v *Verifier) Verify(ctx context.Context, token, audience string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}

	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMissingKeyID
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if !audienceMatches(claims, audience) {
		return nil, ErrInvalidAudience
	}

	iss, _ := claims.GetIssuer()
	if config.NormalizeIssuer(iss) != v.issuer {
		return nil, ErrInvalidIssuer
	}

	if sub, _ := claims.GetSubject(); strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrMissingKeyID):
		return ErrMissingKeyID
	case errors.Is(err, ErrKeySetUnavailable):
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	case errors.Is(err, ErrUnknownKeyID),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// audienceMatches accepts aud as an array or as a single string holding
// comma or space separated values
func audienceMatches(claims jwt.MapClaims, expected string) bool {
	if expected == "" {
		return false
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return false
	}
	for _, entry := range aud {
		for _, value := range strings.FieldsFunc(entry, func(r rune) bool {
			return r == ',' || r == ' '
		}) {
			if value == expected {
				return true
			}
		}
	}
	return false
}
