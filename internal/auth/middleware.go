package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by the auth middlewares
const (
	// OperatorIDKey is the context key for the authenticated operator ID
	OperatorIDKey = "operator_id"
	// EmailKey is the context key for the authenticated operator email
	EmailKey = "email"
	// RolesKey is the context key for operator roles
	RolesKey = "roles"
	// ClaimsKey is the context key for full JWT claims
	ClaimsKey = "claims"
)

// RequireAuth is a Gin middleware that validates JWT tokens
func RequireAuth(jwtManager *JWTManager, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token := bearerToken(c)
		if token == "" {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid authorization header"})
			c.Abort()
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			logger.WithError(err).Warn("Invalid token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("operator.id", claims.OperatorID),
			attribute.String("operator.email", claims.Email),
		)

		c.Set(OperatorIDKey, claims.OperatorID)
		c.Set(EmailKey, claims.Email)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		logger.WithFields(logrus.Fields{
			"operator_id": claims.OperatorID,
			"email":       claims.Email,
			"path":        c.Request.URL.Path,
			"method":      c.Request.Method,
		}).Info("Operator authenticated")

		c.Next()
	}
}

// OptionalAuth is a Gin middleware that validates JWT tokens if present
func OptionalAuth(jwtManager *JWTManager, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.optional_auth")
		defer span.End()

		token := bearerToken(c)
		if token == "" {
			span.SetAttributes(attribute.Bool("auth.authenticated", false))
			c.Next()
			return
		}

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.authenticated", false))
			logger.WithError(err).Warn("Invalid optional token")
			c.Next()
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.authenticated", true),
			attribute.String("operator.id", claims.OperatorID),
		)

		c.Set(OperatorIDKey, claims.OperatorID)
		c.Set(EmailKey, claims.Email)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireRole is a Gin middleware that checks if the authenticated
// operator has the required role. Must run after RequireAuth.
func RequireRole(role string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role")
		defer span.End()

		span.SetAttributes(attribute.String("required.role", role))

		rolesValue, exists := c.Get(RolesKey)
		if !exists {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			c.JSON(http.StatusForbidden, gin.H{"error": "Operator roles not found"})
			c.Abort()
			return
		}

		roles, ok := rolesValue.([]string)
		if !ok {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid operator roles"})
			c.Abort()
			return
		}

		hasRole := false
		for _, r := range roles {
			if r == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			operatorID, _ := c.Get(OperatorIDKey)
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			logger.WithFields(logrus.Fields{
				"operator_id":   operatorID,
				"required_role": role,
			}).Warn("Insufficient permissions")
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}

		span.SetAttributes(attribute.Bool("auth.role_authorized", true))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
