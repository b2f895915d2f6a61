package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"civicsaathi/auth"
	"civicsaathi/backend"
	"civicsaathi/geocode"
	"civicsaathi/middleware"
	"civicsaathi/models"
	"civicsaathi/sla"
)

type CitizenHandler struct {
	backend    *backend.Client
	jwtManager *auth.JWTManager
	geocoder   *geocode.Client
}

func NewCitizenHandler(client *backend.Client, jwtManager *auth.JWTManager, geocoder *geocode.Client) *CitizenHandler {
	return &CitizenHandler{
		backend:    client,
		jwtManager: jwtManager,
		geocoder:   geocoder,
	}
}

type CitizenLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CitizenLoginResponse struct {
	Token string                 `json:"token"`
	User  *models.CitizenSession `json:"user"`
}

// Login authenticates a citizen against the upstream backend and issues a
// gateway session token. Worker and admin accounts are turned away; this
// surface is citizen-only.
func (h *CitizenHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CitizenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	result, err := h.backend.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			log.Printf("Login failed for user %s: invalid credentials", req.Username)
			writeError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		handleBackendError(w, err)
		return
	}

	if result.User.UserType != models.UserTypeCitizen {
		log.Printf("Login rejected for user %s: account type %s", req.Username, result.User.UserType)
		writeError(w, "This portal is for citizens only", http.StatusUnauthorized)
		return
	}

	token, err := h.jwtManager.GenerateToken(&result.User, result.Token)
	if err != nil {
		log.Printf("Failed to generate token for user %s: %v", req.Username, err)
		writeError(w, "Failed to generate authentication token", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Citizen logged in: %s", result.User.Username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CitizenLoginResponse{
		Token: token,
		User:  &result.User,
	})
}

// Me returns the account behind the current session, refreshed upstream so a
// revoked backend session surfaces immediately.
func (h *CitizenHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetCitizenFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	user, err := h.backend.Me(r.Context(), claims.UpstreamToken)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// CreateComplaint submits a new complaint. When the backend detects a
// duplicate it upvotes the existing complaint instead; that outcome is
// reported as a 409 carrying the matched complaint so the portal can show it.
func (h *CitizenHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetCitizenFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req backend.CreateComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Description == "" {
		writeError(w, "Title and description are required", http.StatusBadRequest)
		return
	}

	created, err := h.backend.CreateComplaint(r.Context(), claims.UpstreamToken, &req)
	if err != nil {
		var dup *backend.DuplicateComplaintError
		if errors.As(err, &dup) {
			log.Printf("📤 Duplicate complaint by %s: %s", claims.Username, req.Title)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"duplicate_detected": true,
				"message":            dup.Message,
				"existing_complaint": dup.Existing,
			})
			return
		}
		handleBackendError(w, err)
		return
	}

	log.Printf("📤 Complaint created by %s: %s", claims.Username, created.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// MyComplaints lists the citizen's own complaints with derived SLA views.
func (h *CitizenHandler) MyComplaints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetCitizenFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	complaints, err := h.backend.MyComplaints(r.Context(), claims.UpstreamToken)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	views := withSLA(complaints, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"complaints": views,
		"count":      len(views),
	})
}

// GetComplaint returns one complaint with its derived SLA view.
func (h *CitizenHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetCitizenFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Complaint id is required", http.StatusBadRequest)
		return
	}

	complaint, err := h.backend.Complaint(r.Context(), backend.CitizenAuth(claims.UpstreamToken), id)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ComplaintView{
		Complaint: *complaint,
		SLA:       sla.Derive(complaint, time.Now()),
	})
}

// Upvote adds the citizen's upvote to an existing complaint.
func (h *CitizenHandler) Upvote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := middleware.GetCitizenFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Complaint id is required", http.StatusBadRequest)
		return
	}

	complaint, err := h.backend.UpvoteComplaint(r.Context(), claims.UpstreamToken, id)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(complaint)
}

// ReverseGeocode resolves ?lat=&lng= to a place so the portal can prefill
// city and state from a dropped map pin.
func (h *CitizenHandler) ReverseGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, "Valid lat and lng query parameters are required", http.StatusBadRequest)
		return
	}

	place, err := h.geocoder.Reverse(r.Context(), lat, lng)
	if err != nil {
		log.Printf("❌ Reverse geocode failed: %v", err)
		writeError(w, "Failed to resolve location", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(place)
}
