package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("jwt-manager")

const signingAlgorithm = "HS256"

// JWTManager signs and validates operator tokens with a single shared
// HMAC key supplied by configuration.
type JWTManager struct {
	signingKey []byte
	tracer     trace.Tracer
}

// Claims represents JWT claims for the governor control API
type Claims struct {
	OperatorID string   `json:"operator_id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a manager over the given signing key.
func NewJWTManager(signingKey string) (*JWTManager, error) {
	if signingKey == "" {
		return nil, errors.New("jwt signing key is required (set JWT_SECRET)")
	}

	return &JWTManager{
		signingKey: []byte(signingKey),
		tracer:     tracer,
	}, nil
}

// GenerateToken issues a signed token for an operator.
func (jm *JWTManager) GenerateToken(ctx context.Context, operatorID, email string, roles []string, duration time.Duration) (string, error) {
	_, span := jm.tracer.Start(ctx, "jwt.generate_token")
	defer span.End()

	span.SetAttributes(
		attribute.String("operator.id", operatorID),
		attribute.String("operator.email", email),
	)

	now := time.Now()
	claims := &Claims{
		OperatorID: operatorID,
		Email:      email,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "publication-governor",
			Subject:   operatorID,
			ID:        fmt.Sprintf("jwt-%d", now.Unix()),
		},
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(signingAlgorithm), claims)
	tokenString, err := token.SignedString(jm.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	span.SetAttributes(attribute.String("jwt.id", claims.ID))

	return tokenString, nil
}

// ValidateToken parses a token and returns its claims. The signing
// method is pinned; tokens signed any other way are rejected before
// the key is consulted.
func (jm *JWTManager) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	_, span := jm.tracer.Start(ctx, "jwt.validate_token")
	defer span.End()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != signingAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jm.signingKey, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	span.SetAttributes(
		attribute.String("operator.id", claims.OperatorID),
		attribute.String("jwt.id", claims.ID),
	)

	return claims, nil
}

// RefreshToken reissues a token for the same operator, keeping the
// claims and resetting the expiry.
func (jm *JWTManager) RefreshToken(ctx context.Context, tokenString string, duration time.Duration) (string, error) {
	ctx, span := jm.tracer.Start(ctx, "jwt.refresh_token")
	defer span.End()

	claims, err := jm.ValidateToken(ctx, tokenString)
	if err != nil {
		return "", fmt.Errorf("cannot refresh invalid token: %w", err)
	}

	return jm.GenerateToken(ctx, claims.OperatorID, claims.Email, claims.Roles, duration)
}
