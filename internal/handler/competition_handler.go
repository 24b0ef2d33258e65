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

// CreateCompetition creates a competition owned by a tenant. School
// admins may only create within their own tenant.
func CreateCompetition(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("create")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req struct {
		Title       string           `json:"title"`
		Description string           `json:"description,omitempty"`
		Visibility  model.Visibility `json:"visibility,omitempty"`
		TenantID    *uint            `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse competition creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Title == "" {
		prometheus.RecordAuthError("incomplete_competition_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	if req.Visibility == "" {
		req.Visibility = model.VisibilityPrivate
	}
	if !req.Visibility.Valid() {
		prometheus.RecordAuthError("invalid_visibility")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown visibility"})
	}

	// Default ownership to the caller's tenant.
	if req.TenantID == nil {
		req.TenantID = caller.TenantID
	}
	if req.TenantID == nil {
		prometheus.RecordAuthError("incomplete_competition_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	comp := model.Competition{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		TenantID:    *req.TenantID,
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionCreate,
		Kind:   authz.KindCompetition,
		Target: &comp,
	}); !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	// The owning tenant must exist.
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, comp.TenantID); result.Error != nil {
		log.Error("Unknown tenant for new competition", zap.Uint("tenant_id", comp.TenantID))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tenant"})
	}

	if result := database.GetDB().Create(&comp); result.Error != nil {
		log.Error("Failed to create competition", zap.Error(result.Error))
		prometheus.RecordAuthError("competition_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "competition creation failed"})
	}

	log.Info("Competition created",
		zap.String("title", comp.Title),
		zap.Uint("id", comp.ID),
		zap.Uint("tenant_id", comp.TenantID))

	return c.JSON(http.StatusCreated, comp)
}

// GetCompetition retrieves a single competition, subject to its
// visibility and the caller's tenant.
func GetCompetition(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("access")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var comp model.Competition
	if result := database.GetDB().First(&comp, id); result.Error != nil {
		log.Error("Competition not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("competition_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "competition not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadOne,
		Kind:   authz.KindCompetition,
		Target: &comp,
	}); !ok {
		return err
	}

	return c.JSON(http.StatusOK, comp)
}

// ListCompetitions lists the competitions the caller's school can
// access: public ones, its own, and those granted to it.
func ListCompetitions(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("list")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	d, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadMany,
		Kind:   authz.KindCompetition,
	})
	if !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := database.GetDB().Model(&model.Competition{})
	if d.Filter != nil {
		query = query.Scopes(d.Filter.Scope)
	}

	var comps []model.Competition
	if result := query.Find(&comps); result.Error != nil {
		log.Error("Failed to retrieve competitions", zap.Error(result.Error))
		prometheus.RecordAuthError("competition_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve competitions"})
	}

	return c.JSON(http.StatusOK, comps)
}

// ListTenantCompetitions lists the competitions accessible to one
// school: every public competition, everything the school owns, and
// every competition granted to it. Non-superusers may only ask for
// their own tenant.
func ListTenantCompetitions(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("list_for_tenant")

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
	tenantID := uint(id)

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		log.Error("Tenant not found", zap.Uint("id", tenantID))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadMany,
		Kind:   authz.KindCompetition,
		List:   &authz.ListQuery{TenantID: &tenantID},
	}); !ok {
		return err
	}

	// The accessible set is the route's query, not just the caller's
	// restriction, so it applies to superusers too.
	filter := authz.AccessibleCompetitionsFilter{TenantID: tenantID}

	var comps []model.Competition
	result := database.GetDB().Model(&model.Competition{}).Scopes(filter.Scope).Find(&comps)
	if result.Error != nil {
		log.Error("Failed to retrieve competitions", zap.Error(result.Error))
		prometheus.RecordAuthError("competition_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve competitions"})
	}

	return c.JSON(http.StatusOK, comps)
}

// UpdateCompetition applies a partial update. The owning tenant is
// immutable for every role.
func UpdateCompetition(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("update")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	var req struct {
		Title       *string           `json:"title,omitempty"`
		Description *string           `json:"description,omitempty"`
		Visibility  *model.Visibility `json:"visibility,omitempty"`
		TenantID    *uint             `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse competition update request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Visibility != nil && !req.Visibility.Valid() {
		prometheus.RecordAuthError("invalid_visibility")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown visibility"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("update")(time.Now())

	var comp model.Competition
	if result := database.GetDB().First(&comp, id); result.Error != nil {
		log.Error("Competition not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("competition_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "competition not found"})
	}

	// Ownership never moves, whoever asks.
	if req.TenantID != nil && *req.TenantID != comp.TenantID {
		prometheus.RecordAuthError("tenant_immutable")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is immutable"})
	}

	update := authz.CompetitionUpdate{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		TenantID:    req.TenantID,
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionUpdate,
		Kind:   authz.KindCompetition,
		Target: &comp,
		Update: &update,
	}); !ok {
		return err
	}

	changes := map[string]interface{}{}
	if req.Title != nil {
		changes["title"] = *req.Title
	}
	if req.Description != nil {
		changes["description"] = *req.Description
	}
	if req.Visibility != nil {
		changes["visibility"] = *req.Visibility
	}

	if len(changes) > 0 {
		if err := database.GetDB().Model(&comp).Updates(changes).Error; err != nil {
			log.Error("Failed to update competition", zap.Error(err))
			prometheus.RecordAuthError("competition_update_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "competition update failed"})
		}
	}

	log.Info("Competition updated", zap.Uint("id", comp.ID))

	return c.JSON(http.StatusOK, comp)
}

// DeleteCompetition removes a competition.
func DeleteCompetition(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordCompetitionOperation("delete")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid competition ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_competition_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid competition ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("delete")(time.Now())

	var comp model.Competition
	if result := database.GetDB().First(&comp, id); result.Error != nil {
		log.Error("Competition not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("competition_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "competition not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionDelete,
		Kind:   authz.KindCompetition,
		Target: &comp,
	}); !ok {
		return err
	}

	if err := database.GetDB().Delete(&comp).Error; err != nil {
		log.Error("Failed to delete competition", zap.Error(err))
		prometheus.RecordAuthError("competition_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "competition delete failed"})
	}

	log.Info("Competition deleted", zap.Uint("id", comp.ID))

	return c.NoContent(http.StatusNoContent)
}
