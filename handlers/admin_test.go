package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsaathi/auth"
	"civicsaathi/backend"
	"civicsaathi/db"
	"civicsaathi/middleware"
	"civicsaathi/models"
	"civicsaathi/session"
)

// writeCredentialTable writes a credential table fixture with bcrypt hashes
// and returns its path.
func writeCredentialTable(t *testing.T) string {
	t.Helper()

	rootHash, err := auth.HashPassword("root-password-1")
	require.NoError(t, err)
	subHash, err := auth.HashPassword("sub-password-1")
	require.NoError(t, err)
	deptHash, err := auth.HashPassword("dept-password-1")
	require.NoError(t, err)

	table := map[string]interface{}{
		"root_admin": map[string]string{
			"user_id":       "root",
			"name":          "Root Admin",
			"password_hash": rootHash,
		},
		"sub_admins": []map[string]interface{}{
			{
				"user_id":       "sub-north",
				"name":          "North Cluster Admin",
				"password_hash": subHash,
				"cluster_id":    "north",
				"cluster_name":  "North Cluster",
				"departments": []map[string]string{
					{"id": "1", "name": "Roads"},
					{"id": "2", "name": "Water Supply"},
				},
				"permissions": []string{"complaints.view", "complaints.assign"},
			},
		},
		"department_admins": []map[string]interface{}{
			{
				"user_id":         "dept-roads",
				"name":            "Roads Admin",
				"password_hash":   deptHash,
				"department_id":   "1",
				"department_name": "Roads",
				"multi_city":      true,
			},
		},
	}

	data, err := json.Marshal(table)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "admin_credentials.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// fakeBackend serves the upstream complaint list unfiltered, the way the
// real backend does.
func fakeBackend(t *testing.T, complaints []models.Complaint) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/complaints/all/{$}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(complaints)
	})
	mux.HandleFunc("/complaints/{id}/", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		for i := range complaints {
			if complaints[i].ID == id {
				json.NewEncoder(w).Encode(complaints[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "complaint not found"})
	})
	mux.HandleFunc("/complaints/{id}/assign/", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Admin-Token"))
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend.New(server.URL, 5*time.Second)
}

func newAdminHandler(t *testing.T, client *backend.Client, store session.Store) *AdminHandler {
	t.Helper()
	creds, err := auth.LoadCredentialTable(writeCredentialTable(t))
	require.NoError(t, err)
	return NewAdminHandler(client, creds, store, nil)
}

func loginAdmin(t *testing.T, h *AdminHandler, userID, password, cityContext string) (int, AdminLoginResponse) {
	t.Helper()
	body, _ := json.Marshal(AdminLoginRequest{
		UserID:      userID,
		Password:    password,
		CityContext: cityContext,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	var resp AdminLoginResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	}
	return rec.Code, resp
}

func Test_AdminLogin_OpensServerSideSession(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, nil), store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, auth.IsAdminTokenFormat(resp.Token))
	assert.Equal(t, models.RoleRootAdmin, resp.Admin.Role)

	// The token resolves to the same principal server-side.
	s, err := store.Get(t.Context(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "root", s.Admin.UserID)
}

func Test_AdminLogin_WrongPassword(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, nil), store)

	code, _ := loginAdmin(t, h, "root", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func Test_AdminLogin_CityContextOnlyForMultiCity(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, nil), store)

	// Multi-city department admin may narrow to a city.
	code, resp := loginAdmin(t, h, "dept-roads", "dept-password-1", "Jaipur")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Jaipur", resp.Admin.CityContext)

	// Anyone else supplying a city context is rejected outright.
	code, _ = loginAdmin(t, h, "sub-north", "sub-password-1", "Jaipur")
	assert.Equal(t, http.StatusBadRequest, code)
}

func Test_AdminLogout_DestroysSession(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, nil), store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	chain := middleware.AdminAuth(store, time.Hour)(http.HandlerFunc(h.Logout))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/logout", nil)
	req.Header.Set("X-Admin-Token", resp.Token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.Get(t.Context(), resp.Token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func scopedComplaints() []models.Complaint {
	return []models.Complaint{
		{ID: "1", Title: "Pothole", Department: "1", DepartmentName: "Roads", City: "Jaipur", Status: models.StatusPending, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "2", Title: "Leaking pipe", Department: "2", DepartmentName: "Water Supply", City: "Jaipur", Status: models.StatusAssigned, CreatedAt: time.Now().Add(-3 * time.Hour)},
		{ID: "3", Title: "Streetlight", Department: "5", DepartmentName: "Electricity", City: "Jaipur", Status: models.StatusPending, CreatedAt: time.Now().Add(-1 * time.Hour)},
		{ID: "4", Title: "Pothole elsewhere", Department: "1", DepartmentName: "Roads", City: "Udaipur", Status: models.StatusPending, CreatedAt: time.Now().Add(-4 * time.Hour)},
	}
}

func adminRequest(t *testing.T, h *AdminHandler, store session.Store, token, method, target string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	chain := middleware.AdminAuth(store, time.Hour)(handler)
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("X-Admin-Token", token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	return rec
}

func Test_Complaints_SubAdminSeesOnlyCluster(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, scopedComplaints()), store)

	code, resp := loginAdmin(t, h, "sub-north", "sub-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/complaints", h.Complaints)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Complaints []ComplaintView `json:"complaints"`
		Count      int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	// Departments 1 and 2 only; electricity (5) never appears.
	assert.Equal(t, 3, body.Count)
	for _, view := range body.Complaints {
		assert.NotEqual(t, "3", view.ID)
	}
}

func Test_Complaints_CityNarrowedDeptAdmin(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, scopedComplaints()), store)

	code, resp := loginAdmin(t, h, "dept-roads", "dept-password-1", "Jaipur")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/complaints", h.Complaints)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Complaints []ComplaintView `json:"complaints"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	// Roads in Jaipur only; the Udaipur roads complaint is filtered out.
	require.Len(t, body.Complaints, 1)
	assert.Equal(t, "1", body.Complaints[0].ID)
}

func Test_GetComplaint_OutOfScopeForbidden(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, scopedComplaints()), store)

	code, resp := loginAdmin(t, h, "sub-north", "sub-password-1", "")
	require.Equal(t, http.StatusOK, code)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/complaints/{id}", h.GetComplaint)
	chain := middleware.AdminAuth(store, time.Hour)(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/complaints/3", nil)
	req.Header.Set("X-Admin-Token", resp.Token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_DashboardStats_CountsByStatus(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, scopedComplaints()), store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/dashboard", h.DashboardStats)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 4, stats["total"])
	assert.Equal(t, 3, stats["pending"])
	assert.Equal(t, 1, stats["assigned"])
}

func Test_ExportComplaints_CSVHasScopedRows(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, scopedComplaints()), store)

	code, resp := loginAdmin(t, h, "sub-north", "sub-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/complaints/export", h.ExportComplaints)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "Pothole")
	assert.NotContains(t, body, "Streetlight")

	// Header plus three scoped rows.
	lines := bytes.Count([]byte(body), []byte("\n"))
	assert.Equal(t, 4, lines)
}

func workersBackend(t *testing.T) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/workers/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Worker{
			{ID: "w1", Name: "Ram", Department: "1", Active: true},
			{ID: "w2", Name: "Shyam", Department: "5", Active: true},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend.New(server.URL, 5*time.Second)
}

func Test_Workers_ScopedByCluster(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, workersBackend(t), store)

	code, resp := loginAdmin(t, h, "sub-north", "sub-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/workers", h.Workers)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Workers []models.Worker `json:"workers"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "w1", body.Workers[0].ID)
}

func Test_Workers_RootSeesAll(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, workersBackend(t), store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/workers", h.Workers)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
}

// memoryAuditStore is a queryable in-memory audit store for tests.
type memoryAuditStore struct {
	entries []db.AuditEntry
}

func (m *memoryAuditStore) LogAudit(ctx context.Context, actorID, action, details string) error {
	m.entries = append(m.entries, db.AuditEntry{
		LogID:     fmt.Sprintf("log-%d", len(m.entries)+1),
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
	})
	return nil
}

func (m *memoryAuditStore) GetAuditLogsSince(ctx context.Context, since time.Time) ([]db.AuditEntry, error) {
	var result []db.AuditEntry
	for _, e := range m.entries {
		if e.Timestamp.After(since) {
			result = append(result, e)
		}
	}
	return result, nil
}

func Test_AuditLogs_RootReadsBackRecordedActions(t *testing.T) {
	store := session.NewMemoryStore()
	audit := &memoryAuditStore{}
	creds, err := auth.LoadCredentialTable(writeCredentialTable(t))
	require.NoError(t, err)
	h := NewAdminHandler(fakeBackend(t, nil), creds, store, audit)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/audit-logs", h.AuditLogs)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Logs  []db.AuditEntry `json:"logs"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	// The login itself was audited and comes back.
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "admin.login", body.Logs[0].Action)
	assert.Equal(t, "root", body.Logs[0].ActorID)
}

func Test_AuditLogs_SinceFiltersAndValidates(t *testing.T) {
	store := session.NewMemoryStore()
	audit := &memoryAuditStore{}
	creds, err := auth.LoadCredentialTable(writeCredentialTable(t))
	require.NoError(t, err)
	h := NewAdminHandler(fakeBackend(t, nil), creds, store, audit)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	// A future cutoff excludes everything recorded so far.
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	rec := adminRequest(t, h, store, resp.Token, http.MethodGet,
		"/api/admin/audit-logs?since="+future, h.AuditLogs)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Count)

	rec = adminRequest(t, h, store, resp.Token, http.MethodGet,
		"/api/admin/audit-logs?since=yesterday", h.AuditLogs)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_AuditLogs_UnavailableWithoutDurableStore(t *testing.T) {
	store := session.NewMemoryStore()
	h := newAdminHandler(t, fakeBackend(t, nil), store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/audit-logs", h.AuditLogs)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_BackendUnavailable_Returns502(t *testing.T) {
	store := session.NewMemoryStore()
	// Point at a server that is already closed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	client := backend.New(server.URL, time.Second)
	h := newAdminHandler(t, client, store)

	code, resp := loginAdmin(t, h, "root", "root-password-1", "")
	require.Equal(t, http.StatusOK, code)

	rec := adminRequest(t, h, store, resp.Token, http.MethodGet, "/api/admin/complaints", h.Complaints)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
