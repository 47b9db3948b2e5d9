package connectutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v4"
	"github.com/mcdev12/pidr/go/internal/models"
)

var (
	ErrMissingToken = errors.New("authorization header required")
	ErrInvalidToken = errors.New("invalid token")
)

type occupantKey struct{}

// WithOccupant stores the authenticated occupant in ctx.
func WithOccupant(ctx context.Context, occupant models.OccupantID) context.Context {
	return context.WithValue(ctx, occupantKey{}, occupant)
}

// OccupantFrom returns the authenticated occupant stored in ctx.
func OccupantFrom(ctx context.Context) (models.OccupantID, bool) {
	occ, ok := ctx.Value(occupantKey{}).(models.OccupantID)
	return occ, ok
}

// Verifier checks HS256 bearer tokens whose subject is a human occupant id.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses a raw token and returns its occupant.
func (v *Verifier) Verify(raw string) (models.OccupantID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}
	occ, err := models.ParseOccupantID(claims.Subject)
	if err != nil || occ <= 0 {
		return 0, fmt.Errorf("%w: subject %q is not a player id", ErrInvalidToken, claims.Subject)
	}
	return occ, nil
}

// Issue signs a token for occupant. Token issuance belongs to the account
// service; this exists for local tooling and tests.
func (v *Verifier) Issue(occupant models.OccupantID, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   occupant.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: expected a bearer token", ErrInvalidToken)
	}
	return parts[1], nil
}

// NewAuthInterceptor authenticates every unary call and stores the caller
// in the request context. A nil limiter disables rate limiting.
func NewAuthInterceptor(v *Verifier, limiter *Limiter) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			raw, err := BearerToken(req.Header().Get("Authorization"))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			occ, err := v.Verify(raw)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			if limiter != nil && !limiter.Allow(occ) {
				return nil, connect.NewError(connect.CodeResourceExhausted,
					fmt.Errorf("rate limit exceeded for %d", occ))
			}
			return next(WithOccupant(ctx, occ), req)
		}
	}
}

// Caller returns the authenticated occupant or an unauthenticated error.
func Caller(ctx context.Context) (models.OccupantID, error) {
	occ, ok := OccupantFrom(ctx)
	if !ok {
		return 0, connect.NewError(connect.CodeUnauthenticated, ErrMissingToken)
	}
	return occ, nil
}
