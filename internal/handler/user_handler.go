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
	"golang.org/x/crypto/bcrypt"
)

// CreateUser creates an account. School admins may only create
// non-superuser accounts inside their own tenant; superusers are
// unrestricted. The role defaults to student.
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("create")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req struct {
		Email    string     `json:"email"`
		Password string     `json:"password"`
		Role     model.Role `json:"role,omitempty"`
		TenantID *uint      `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_user_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	// Default the role and reject anything outside the closed enum.
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		prometheus.RecordAuthError("invalid_role")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	// A school admin creates within their own tenant by default.
	if req.TenantID == nil && caller.Role != model.RoleSuperuser {
		req.TenantID = caller.TenantID
	}

	// Superusers are tenant-agnostic; everyone else needs a tenant.
	if req.TenantID == nil && req.Role != model.RoleSuperuser {
		prometheus.RecordAuthError("incomplete_user_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	user := model.User{
		Email:    req.Email,
		Role:     req.Role,
		TenantID: req.TenantID,
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionCreate,
		Kind:   authz.KindUser,
		Target: &user,
	}); !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("insert")(time.Now())

	// The referenced tenant must exist before the account does.
	if user.TenantID != nil {
		var tenant model.Tenant
		if result := database.GetDB().First(&tenant, *user.TenantID); result.Error != nil {
			log.Error("Unknown tenant for new user", zap.Uint("tenant_id", *user.TenantID))
			prometheus.RecordAuthError("tenant_not_found")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown tenant"})
		}
	}

	var existing model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existing); result.Error == nil {
		log.Error("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}
	user.Password = string(hashedPassword)

	if result := database.GetDB().Create(&user); result.Error != nil {
		log.Error("Failed to create user", zap.Error(result.Error))
		prometheus.RecordAuthError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	log.Info("User created",
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
		zap.Uint("id", user.ID))

	return c.JSON(http.StatusCreated, user)
}

// GetUser retrieves a single account.
func GetUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("access")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	var user model.User
	if result := database.GetDB().First(&user, id); result.Error != nil {
		log.Error("User not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadOne,
		Kind:   authz.KindUser,
		Target: &user,
	}); !ok {
		return err
	}

	return c.JSON(http.StatusOK, user)
}

// ListUsers lists accounts. Without a tenant_id query parameter the
// listing covers every tenant and is superuser-only; with one, the
// caller must be a non-student member of that tenant.
func ListUsers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("list")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	list := authz.ListQuery{}
	if raw := c.QueryParam("tenant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			prometheus.RecordAuthError("invalid_tenant_id")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
		}
		tenantID := uint(id)
		list.TenantID = &tenantID
	}

	d, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionReadMany,
		Kind:   authz.KindUser,
		List:   &list,
	})
	if !ok {
		return err
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("query")(time.Now())

	query := database.GetDB().Model(&model.User{})
	if d.Filter != nil {
		query = query.Scopes(d.Filter.Scope)
	} else if list.TenantID != nil {
		// Superuser asking for one tenant's users.
		query = query.Where("tenant_id = ?", *list.TenantID)
	}

	var users []model.User
	if result := query.Find(&users); result.Error != nil {
		log.Error("Failed to retrieve users", zap.Error(result.Error))
		prometheus.RecordAuthError("user_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve users"})
	}

	return c.JSON(http.StatusOK, users)
}

// UpdateUser applies a partial update to an account. Self-service
// updates can never change role or tenant.
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("update")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req struct {
		Email    *string     `json:"email,omitempty"`
		Password *string     `json:"password,omitempty"`
		Role     *model.Role `json:"role,omitempty"`
		TenantID *uint       `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user update request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Role != nil && !req.Role.Valid() {
		prometheus.RecordAuthError("invalid_role")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("update")(time.Now())

	var user model.User
	if result := database.GetDB().First(&user, id); result.Error != nil {
		log.Error("User not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	update := authz.UserUpdate{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		TenantID: req.TenantID,
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionUpdate,
		Kind:   authz.KindUser,
		Target: &user,
		Update: &update,
	}); !ok {
		return err
	}

	changes := map[string]interface{}{}
	if req.Email != nil {
		changes["email"] = *req.Email
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Failed to hash password", zap.Error(err))
			prometheus.RecordAuthError("password_hash_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user update failed"})
		}
		changes["password"] = string(hashed)
	}
	if req.Role != nil {
		changes["role"] = *req.Role
	}
	if req.TenantID != nil {
		changes["tenant_id"] = *req.TenantID
	}

	if len(changes) > 0 {
		if err := database.GetDB().Model(&user).Updates(changes).Error; err != nil {
			log.Error("Failed to update user", zap.Error(err))
			prometheus.RecordAuthError("user_update_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user update failed"})
		}
	}

	log.Info("User updated", zap.Uint("id", user.ID))

	return c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account. Self-delete is always refused.
func DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("delete")

	caller, ok := callerFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordAuthError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	// Track DB operations
	defer prometheus.TrackDBOperation("delete")(time.Now())

	var user model.User
	if result := database.GetDB().First(&user, id); result.Error != nil {
		log.Error("User not found", zap.Uint64("id", id))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	if _, ok, err := decide(c, authz.Request{
		Caller: caller,
		Action: authz.ActionDelete,
		Kind:   authz.KindUser,
		Target: &user,
	}); !ok {
		return err
	}

	if err := database.GetDB().Delete(&user).Error; err != nil {
		log.Error("Failed to delete user", zap.Error(err))
		prometheus.RecordAuthError("user_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user delete failed"})
	}

	log.Info("User deleted", zap.Uint("id", user.ID))

	return c.NoContent(http.StatusNoContent)
}
