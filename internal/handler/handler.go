package handler

import (
	"errors"
	"net/http"

	"competition-service/internal/authz"
	"competition-service/internal/model"
	"competition-service/internal/store"
	"competition-service/pkg/logger"
	"competition-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var st *store.Store

// Initialize wires the handlers to the store used for ownership
// lookups and grant writes.
func Initialize(s *store.Store) {
	st = s
}

// callerFromContext rebuilds the caller identity the auth middleware
// resolved into the echo context.
func callerFromContext(c echo.Context) (authz.Caller, bool) {
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		return authz.Caller{}, false
	}
	role, ok := c.Get("user_role").(model.Role)
	if !ok {
		return authz.Caller{}, false
	}
	caller := authz.Caller{ID: userID, Role: role}
	if tenantID, ok := c.Get("tenant_id").(uint); ok {
		caller.TenantID = &tenantID
	}
	return caller, true
}

// unauthenticated writes the response for a request that reached a
// guarded handler without a resolved identity.
func unauthenticated(c echo.Context) error {
	logger.FromContext(c).Error("Failed to get caller identity from context")
	prometheus.RecordAuthError("missing_identity")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
}

// decide consults the decision engine and writes the response for any
// outcome other than an allow: 404 when an ownership lookup found no
// target, 500 on a store failure, 403 on a deny. The second return
// value reports whether the caller may proceed.
func decide(c echo.Context, req authz.Request) (authz.Decision, bool, error) {
	log := logger.FromContext(c)

	d, err := authz.Decide(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			prometheus.RecordAuthError("target_not_found")
			return d, false, c.JSON(http.StatusNotFound, echo.Map{"error": string(req.Kind) + " not found"})
		}
		log.Error("Decision lookup failed", zap.Error(err))
		prometheus.RecordAuthError("db_error")
		return d, false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	prometheus.RecordDecision(string(req.Kind), string(req.Action), d.Effect.String())

	if !d.Allowed() {
		log.Warn("Access denied",
			zap.String("entity", string(req.Kind)),
			zap.String("action", string(req.Action)),
			zap.String("reason", d.Reason))
		prometheus.RecordAuthError("access_denied")
		return d, false, c.JSON(http.StatusForbidden, echo.Map{"error": d.Reason})
	}

	return d, true, nil
}
