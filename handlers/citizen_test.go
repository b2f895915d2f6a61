package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicsaathi/auth"
	"civicsaathi/backend"
	"civicsaathi/middleware"
	"civicsaathi/models"
)

func citizenBackend(t *testing.T, userType models.UserType) *backend.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var req backend.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(backend.LoginResult{
			Token: "upstream-token-1",
			User: models.CitizenSession{
				Username: req.Username,
				UserType: userType,
				City:     "Jaipur",
			},
		})
	})
	mux.HandleFunc("/complaints/create/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token upstream-token-1", r.Header.Get("Authorization"))
		var req backend.CreateComplaintRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Title == "Pothole on MG Road" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message":            "Similar complaint already reported nearby, your upvote was added",
				"existing_complaint": models.Complaint{ID: "42", Title: "Pothole on MG Road", Upvotes: 8},
			})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Complaint{ID: "99", Title: req.Title, Status: models.StatusPending})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return backend.New(server.URL, 5*time.Second)
}

func Test_CitizenLogin_IssuesGatewayToken(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeCitizen), manager, nil)

	body, _ := json.Marshal(CitizenLoginRequest{Username: "ramesh", Password: "correct"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp CitizenLoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ramesh", resp.User.Username)

	// The issued token wraps the upstream session token.
	claims, err := manager.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "upstream-token-1", claims.UpstreamToken)
	assert.Equal(t, models.UserTypeCitizen, claims.UserType)
}

func Test_CitizenLogin_RejectsWorkerAccount(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeWorker), manager, nil)

	body, _ := json.Marshal(CitizenLoginRequest{Username: "worker7", Password: "correct"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp["error"], "citizens only")
}

func Test_CitizenLogin_BadCredentials(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeCitizen), manager, nil)

	body, _ := json.Marshal(CitizenLoginRequest{Username: "ramesh", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func citizenToken(t *testing.T, manager *auth.JWTManager) string {
	t.Helper()
	token, err := manager.GenerateToken(&models.CitizenSession{
		Username: "ramesh",
		UserType: models.UserTypeCitizen,
	}, "upstream-token-1")
	require.NoError(t, err)
	return token
}

func Test_CreateComplaint_DuplicateSurfacesAs409(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeCitizen), manager, nil)

	chain := middleware.CitizenAuth(manager)(http.HandlerFunc(h.CreateComplaint))

	body, _ := json.Marshal(backend.CreateComplaintRequest{
		Title:       "Pothole on MG Road",
		Description: "Large pothole near the crossing",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/complaints/create", bytes.NewReader(body))
	req.Header.Set("Authorization", "Token "+citizenToken(t, manager))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		DuplicateDetected bool              `json:"duplicate_detected"`
		Message           string            `json:"message"`
		Existing          *models.Complaint `json:"existing_complaint"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.DuplicateDetected)
	require.NotNil(t, resp.Existing)
	assert.Equal(t, "42", resp.Existing.ID)
	assert.Equal(t, 8, resp.Existing.Upvotes)
}

func Test_CreateComplaint_Success(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeCitizen), manager, nil)

	chain := middleware.CitizenAuth(manager)(http.HandlerFunc(h.CreateComplaint))

	body, _ := json.Marshal(backend.CreateComplaintRequest{
		Title:       "Broken streetlight",
		Description: "Dark stretch near the park",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/complaints/create", bytes.NewReader(body))
	req.Header.Set("Authorization", "Token "+citizenToken(t, manager))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Complaint
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "99", created.ID)
}

func Test_CreateComplaint_RequiresTitleAndDescription(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	h := NewCitizenHandler(citizenBackend(t, models.UserTypeCitizen), manager, nil)

	chain := middleware.CitizenAuth(manager)(http.HandlerFunc(h.CreateComplaint))

	body, _ := json.Marshal(backend.CreateComplaintRequest{Title: "No description"})
	req := httptest.NewRequest(http.MethodPost, "/api/complaints/create", bytes.NewReader(body))
	req.Header.Set("Authorization", "Token "+citizenToken(t, manager))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
