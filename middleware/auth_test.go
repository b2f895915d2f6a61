package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsaathi/auth"
	"civicsaathi/authz"
	"civicsaathi/models"
	"civicsaathi/session"
)

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func Test_CitizenAuth_ValidToken(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := manager.GenerateToken(&models.CitizenSession{
		Username: "ramesh",
		UserType: models.UserTypeCitizen,
	}, "upstream-token")
	require.NoError(t, err)

	hit := false
	handler := CitizenAuth(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		claims, ok := GetCitizenFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "ramesh", claims.Username)
		assert.Equal(t, "upstream-token", claims.UpstreamToken)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/complaints/mine", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_CitizenAuth_RejectsNonCitizen(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := manager.GenerateToken(&models.CitizenSession{
		Username: "worker7",
		UserType: models.UserTypeWorker,
	}, "upstream-token")
	require.NoError(t, err)

	hit := false
	handler := CitizenAuth(manager)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodGet, "/api/complaints/mine", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_CitizenAuth_MissingHeader(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)

	hit := false
	handler := CitizenAuth(manager)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodGet, "/api/complaints/mine", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func adminSession(t *testing.T, store session.Store, role models.AdminRole) string {
	t.Helper()
	token, err := auth.NewAdminToken()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &session.Session{
		Token:    token,
		Admin:    authz.Principal{UserID: "admin1", Role: role},
		IssuedAt: time.Now(),
	}))
	return token
}

func Test_AdminAuth_ValidSession(t *testing.T) {
	store := session.NewMemoryStore()
	token := adminSession(t, store, models.RoleRootAdmin)

	hit := false
	handler := AdminAuth(store, 24*time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		admin, ok := GetAdminFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "admin1", admin.UserID)

		raw, ok := GetAdminTokenFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, token, raw)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/complaints", nil)
	req.Header.Set("X-Admin-Token", token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, hit)
}

func Test_AdminAuth_ExpiredSessionIsDeleted(t *testing.T) {
	store := session.NewMemoryStore()
	token, err := auth.NewAdminToken()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &session.Session{
		Token:    token,
		Admin:    authz.Principal{UserID: "admin1", Role: models.RoleSubAdmin},
		IssuedAt: time.Now().Add(-48 * time.Hour),
		LastSeen: time.Now().Add(-48 * time.Hour),
	}))

	hit := false
	handler := AdminAuth(store, 24*time.Hour)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/complaints", nil)
	req.Header.Set("X-Admin-Token", token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The stale record is gone, not just rejected.
	_, err = store.Get(context.Background(), token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func Test_AdminAuth_MalformedToken(t *testing.T) {
	store := session.NewMemoryStore()

	hit := false
	handler := AdminAuth(store, 24*time.Hour)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/complaints", nil)
	req.Header.Set("X-Admin-Token", "not-an-admin-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_RequireAdminRole_Allows(t *testing.T) {
	store := session.NewMemoryStore()
	token := adminSession(t, store, models.RoleRootAdmin)

	hit := false
	chain := AdminAuth(store, 24*time.Hour)(
		RequireAdminRole(models.RoleRootAdmin)(okHandler(&hit)),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/sla/trigger-escalation", nil)
	req.Header.Set("X-Admin-Token", token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.True(t, hit)
}

func Test_RequireAdminRole_Forbids(t *testing.T) {
	store := session.NewMemoryStore()
	token := adminSession(t, store, models.RoleDepartmentAdmin)

	hit := false
	chain := AdminAuth(store, 24*time.Hour)(
		RequireAdminRole(models.RoleRootAdmin)(okHandler(&hit)),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/sla/trigger-escalation", nil)
	req.Header.Set("X-Admin-Token", token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_RateLimiter_Blocks(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	hits := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/complaints/all/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
	assert.Equal(t, 2, hits)
}

func Test_NormalizePath(t *testing.T) {
	assert.Equal(t, "/api/complaints/{id}/assign", normalizePath("/api/complaints/517/assign"))
	assert.Equal(t, "/api/workers/{id}/statistics", normalizePath("/api/workers/w-12/statistics"))
	assert.Equal(t, "/api/complaints/create", normalizePath("/api/complaints/create"))
	assert.Equal(t, "/health", normalizePath("/health"))
}
