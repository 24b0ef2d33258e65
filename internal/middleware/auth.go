package middleware

import (
	"competition-service/internal/model"
	"competition-service/pkg/database"
	"competition-service/pkg/jwtutil"
	"competition-service/pkg/logger"
	"competition-service/prometheus"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware validates the JWT token from the Authorization header
// and resolves the caller identity into the request context.
//
// Tokens minted before a user was assigned to a tenant carry no
// tenant_id claim. The middleware backfills it from the user row so
// tenant-scoped routes always see a populated tenant context. The
// enrichment is idempotent: a token that already carries the claim is
// used as-is.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// The role claim is a closed enum; reject anything unknown here
		// rather than letting it fall through a rule table.
		if !claims.Role.Valid() {
			log.Error("Unknown role claim", zap.String("role", string(claims.Role)))
			prometheus.RecordAuthError("invalid_role_claim")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid role claim"})
		}

		tenantID := claims.TenantID
		if tenantID == nil && claims.Role != model.RoleSuperuser {
			var user model.User
			if result := database.GetDB().First(&user, claims.UserID); result.Error != nil {
				log.Error("Token references unknown user", zap.Uint("user_id", claims.UserID))
				prometheus.RecordAuthError("unknown_user")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}
			tenantID = user.TenantID
			log.Debug("Backfilled tenant context from user record",
				zap.Uint("user_id", claims.UserID))
		}

		// Store caller identity in context for the handlers
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("user_role", claims.Role)
		if tenantID != nil {
			c.Set("tenant_id", *tenantID)

			// Add tenant ID to request header for downstream services
			c.Request().Header.Set("X-Tenant-ID", fmt.Sprintf("%d", *tenantID))
		}
		c.Request().Header.Set("X-User-Role", string(claims.Role))

		// Token is valid, proceed with the request
		return next(c)
	}
}
