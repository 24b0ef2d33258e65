package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"competition-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateUserSelfService(t *testing.T) {
	db := setupTestDB(t)
	north, south := seedTenants(t, db)
	_ = south

	student := seedUser(t, db, "kid@north.example", &north, model.RoleStudent)

	patch := func(target uint, body string, caller *model.User) int {
		c, rec := newContext(t, http.MethodPatch, "/api/users/:id", body, caller)
		c.SetParamNames("id")
		c.SetParamValues(fmt.Sprint(target))
		require.NoError(t, UpdateUser(c))
		return rec.Code
	}

	t.Run("email change allowed", func(t *testing.T) {
		code := patch(student.ID, `{"email":"renamed@north.example"}`, student)
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("role change denied even with other fields", func(t *testing.T) {
		code := patch(student.ID, `{"email":"again@north.example","role":"school_admin"}`, student)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("tenant change denied", func(t *testing.T) {
		code := patch(student.ID, fmt.Sprintf(`{"tenant_id":%d}`, south), student)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("unknown role rejected at the boundary", func(t *testing.T) {
		code := patch(student.ID, `{"role":"headmaster"}`, student)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestCreateUserRules(t *testing.T) {
	db := setupTestDB(t)
	north, south := seedTenants(t, db)

	admin := seedUser(t, db, "admin@north.example", &north, model.RoleSchoolAdmin)
	root := seedUser(t, db, "root@example", nil, model.RoleSuperuser)

	create := func(body string, caller *model.User) (int, model.User) {
		c, rec := newContext(t, http.MethodPost, "/api/users", body, caller)
		require.NoError(t, CreateUser(c))
		var u model.User
		if rec.Code == http.StatusCreated {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
		}
		return rec.Code, u
	}

	t.Run("admin creates student with default role", func(t *testing.T) {
		code, u := create(`{"email":"kid@north.example","password":"pw123456"}`, admin)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, model.RoleStudent, u.Role)
		require.NotNil(t, u.TenantID)
		assert.Equal(t, north, *u.TenantID)
	})

	t.Run("admin cannot create superuser", func(t *testing.T) {
		code, _ := create(`{"email":"root2@example","password":"pw123456","role":"superuser"}`, admin)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("admin cannot create in foreign tenant", func(t *testing.T) {
		body := fmt.Sprintf(`{"email":"kid@south.example","password":"pw123456","tenant_id":%d}`, south)
		code, _ := create(body, admin)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("superuser creates superuser", func(t *testing.T) {
		code, u := create(`{"email":"root2@example","password":"pw123456","role":"superuser"}`, root)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, model.RoleSuperuser, u.Role)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		code, _ := create(`{"email":"kid@north.example","password":"pw123456"}`, admin)
		assert.Equal(t, http.StatusConflict, code)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		code, _ := create(`{"email":"odd@north.example","password":"pw123456","role":"teacher"}`, admin)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestListUsersScoping(t *testing.T) {
	db := setupTestDB(t)
	north, south := seedTenants(t, db)

	admin := seedUser(t, db, "admin@north.example", &north, model.RoleSchoolAdmin)
	student := seedUser(t, db, "kid@north.example", &north, model.RoleStudent)
	seedUser(t, db, "kid@south.example", &south, model.RoleStudent)
	root := seedUser(t, db, "root@example", nil, model.RoleSuperuser)

	list := func(query string, caller *model.User) (int, []model.User) {
		c, rec := newContext(t, http.MethodGet, "/api/users"+query, "", caller)
		require.NoError(t, ListUsers(c))
		var users []model.User
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
		}
		return rec.Code, users
	}

	t.Run("admin lists own tenant only", func(t *testing.T) {
		code, users := list(fmt.Sprintf("?tenant_id=%d", north), admin)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, users, 2)
		for _, u := range users {
			require.NotNil(t, u.TenantID)
			assert.Equal(t, north, *u.TenantID)
		}
	})

	t.Run("admin cannot list foreign tenant", func(t *testing.T) {
		code, _ := list(fmt.Sprintf("?tenant_id=%d", south), admin)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("student cannot list", func(t *testing.T) {
		code, _ := list(fmt.Sprintf("?tenant_id=%d", north), student)
		assert.Equal(t, http.StatusForbidden, code)
	})

	t.Run("full listing is superuser only", func(t *testing.T) {
		code, _ := list("", admin)
		assert.Equal(t, http.StatusForbidden, code)

		code, users := list("", root)
		require.Equal(t, http.StatusOK, code)
		assert.Len(t, users, 4)
	})
}

func TestDeleteUserRules(t *testing.T) {
	db := setupTestDB(t)
	north, _ := seedTenants(t, db)

	admin := seedUser(t, db, "admin@north.example", &north, model.RoleSchoolAdmin)
	student := seedUser(t, db, "kid@north.example", &north, model.RoleStudent)

	del := func(target uint, caller *model.User) int {
		c, rec := newContext(t, http.MethodDelete, "/api/users/:id", "", caller)
		c.SetParamNames("id")
		c.SetParamValues(fmt.Sprint(target))
		require.NoError(t, DeleteUser(c))
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, del(admin.ID, admin), "self delete refused")
	assert.Equal(t, http.StatusNoContent, del(student.ID, admin), "admin deletes same-tenant student")
	assert.Equal(t, http.StatusNotFound, del(9999, admin), "missing user")
}
