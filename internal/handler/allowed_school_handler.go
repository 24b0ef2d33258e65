package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"competition-service/internal/authz"
	"competition-service/internal/model"
	"competition-service/pkg/database"
	"competition-service/pkg/logger"
	"competition-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListAllowedSchools lists the grants attached to a competition.
func ListAllowedSchools(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordGrantOperation("list")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	competitionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var comp model.Competition
	if result := database.GetDB().First(&comp, competitionID); result.Error != nil {
		log.Error("Competition not found", zap.Uint64("id", competitionID))
		prometheus.RecordAuthError("competition_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "competition not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadMany,
		Kind:   authz.KindAllowedSchool,
		Target: &comp,
	}); !ok {
		return err
	}

	grants, err := st.GrantsForCompetition(c.Request().Context(), uint(competitionID))
	if err != nil {
		log.Error("Failed to retrieve grants", zap.Error(err))
		prometheus.RecordAuthError("grant_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve grants"})
	}

	return c.JSON(http.StatusOK, grants)
}

// CreateAllowedSchool grants a school access to a competition. The
// competition's visibility is forced to restricted in the same
// transaction; granting twice is a no-op.
func CreateAllowedSchool(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordGrantOperation("create")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	competitionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse grant request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.TenantID == 0 {
		prometheus.RecordAuthError("incomplete_grant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	grant := model.AllowedSchool{
		CompetitionID: uint(competitionID),
		TenantID:      req.TenantID,
	}

	// The engine resolves the competition's owner itself; a missing
	// competition surfaces here as a 404, not a deny.
	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionCreate,
		Kind:   authz.KindAllowedSchool,
		Target: &grant,
	}); !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	// Superusers bypass the engine's ownership lookup, so the target
	// competition still has to be checked here.
	if _, err := st.CompetitionByID(c.Request().Context(), uint(competitionID)); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			prometheus.RecordAuthError("competition_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "competition not found"})
		}
		log.Error("Failed to load competition", zap.Error(err))
		prometheus.RecordAuthError("db_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	// The grantee school must exist.
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, req.TenantID); result.Error != nil {
		log.Error("Unknown grantee tenant", zap.Uint("tenant_id", req.TenantID))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tenant"})
	}

	stored, created, err := st.CreateGrant(c.Request().Context(), uint(competitionID), req.TenantID)
	if err != nil {
		log.Error("Failed to create grant", zap.Error(err))
		prometheus.RecordAuthError("grant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "grant creation failed"})
	}

	if !created {
		return c.JSON(http.StatusOK, stored)
	}

	log.Info("Grant created",
		zap.Uint64("competition_id", competitionID),
		zap.Uint("tenant_id", req.TenantID))

	return c.JSON(http.StatusCreated, stored)
}

// DeleteAllowedSchool revokes a school's access to a competition. The
// competition's visibility is left untouched.
func DeleteAllowedSchool(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordGrantOperation("delete")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	competitionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	tenantID, err := strconv.ParseUint(c.Param("tenant_id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	grant := model.AllowedSchool{
		CompetitionID: uint(competitionID),
		TenantID:      uint(tenantID),
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionDelete,
		Kind:   authz.KindAllowedSchool,
		Target: &grant,
	}); !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := st.DeleteGrant(c.Request().Context(), uint(competitionID), uint(tenantID)); err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			prometheus.RecordAuthError("grant_not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": "grant not found"})
		}
		log.Error("Failed to delete grant", zap.Error(err))
		prometheus.RecordAuthError("grant_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "grant delete failed"})
	}

	log.Info("Grant deleted",
		zap.Uint64("competition_id", competitionID),
		zap.Uint64("tenant_id", tenantID))

	return c.NoContent(http.StatusNoContent)
}
