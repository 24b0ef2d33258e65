package handler

import (
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

// CreateTenant handles tenant creation. Superuser only.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	// Parse request
	var req struct {
		Name string `json:"name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		log.Error("Invalid tenant data", zap.String("name", req.Name))
		prometheus.RecordAuthError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	tenant := model.Tenant{Name: req.Name}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionCreate,
		Kind:   authz.KindTenant,
		Target: &tenant,
	}); !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(&tenant); result.Error != nil {
		log.Error("Failed to create tenant", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.Uint("id", tenant.ID))

	return c.JSON(http.StatusCreated, tenant)
}

// GetTenant retrieves tenant details
func GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	// Get ID from path parameter
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Error("Tenant not found", zap.Uint64("id", id), zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadOne,
		Kind:   authz.KindTenant,
		Target: &tenant,
	}); !ok {
		return err
	}

	return c.JSON(http.StatusOK, tenant)
}

// ListTenants retrieves tenants visible to the caller: the full list
// for superusers, the caller's own tenant row otherwise.
func ListTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	d, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadMany,
		Kind:   authz.KindTenant,
	})
	if !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := database.GetDB().Model(&model.Tenant{})
	if d.Filter != nil {
		query = query.Scopes(d.Filter.Scope)
	}

	var tenants []model.Tenant
	if result := query.Find(&tenants); result.Error != nil {
		log.Error("Failed to retrieve tenants", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	prometheus.UpdateActiveTenants(len(tenants))

	return c.JSON(http.StatusOK, tenants)
}

// UpdateTenant renames a tenant. Superuser only.
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("update")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Name string `json:"name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant update request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordAuthError("incomplete_tenant_update")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("update")(time.Now())

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Error("Tenant not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionUpdate,
		Kind:   authz.KindTenant,
		Target: &tenant,
	}); !ok {
		return err
	}

	tenant.Name = req.Name
	if err := database.GetDB().Save(&tenant).Error; err != nil {
		log.Error("Failed to update tenant", zap.Error(err))
		prometheus.RecordAuthError("tenant_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant update failed"})
	}

	log.Info("Tenant updated", zap.Uint("id", tenant.ID), zap.String("name", tenant.Name))

	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant removes a tenant. Superuser only; does not cascade.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("delete")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("delete")(time.Now())

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Error("Tenant not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionDelete,
		Kind:   authz.KindTenant,
		Target: &tenant,
	}); !ok {
		return err
	}

	if err := database.GetDB().Delete(&tenant).Error; err != nil {
		log.Error("Failed to delete tenant", zap.Error(err))
		prometheus.RecordAuthError("tenant_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant delete failed"})
	}

	log.Info("Tenant deleted", zap.Uint("id", tenant.ID))

	return c.NoContent(http.StatusNoContent)
}
