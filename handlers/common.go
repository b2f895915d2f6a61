package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"civicsaathi/backend"
	"civicsaathi/middleware"
	"civicsaathi/models"
	"civicsaathi/sla"
)

// ComplaintView is a complaint decorated with its derived SLA presentation.
type ComplaintView struct {
	models.Complaint
	SLA sla.View `json:"sla"`
}

// withSLA decorates complaints with derived SLA views as of now.
func withSLA(complaints []models.Complaint, now time.Time) []ComplaintView {
	views := make([]ComplaintView, 0, len(complaints))
	for i := range complaints {
		views = append(views, ComplaintView{
			Complaint: complaints[i],
			SLA:       sla.Derive(&complaints[i], now),
		})
	}
	return views
}

// adminIdentity assembles the upstream identity headers from the request
// context populated by the admin auth middleware.
func adminIdentity(r *http.Request) (*backend.AdminIdentity, bool) {
	admin, ok := middleware.GetAdminFromContext(r.Context())
	if !ok {
		return nil, false
	}
	token, ok := middleware.GetAdminTokenFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return &backend.AdminIdentity{Token: token, Admin: admin}, true
}

// handleBackendError maps upstream failures onto the gateway's responses:
// 401 passes through so clients drop their session, upstream API errors keep
// their status and message, anything else is a 502.
func handleBackendError(w http.ResponseWriter, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		writeError(w, "Session expired or invalid", http.StatusUnauthorized)
		return
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		writeError(w, apiErr.Message, apiErr.StatusCode)
		return
	}

	log.Printf("❌ Backend call failed: %v", err)
	writeError(w, "Civic backend unavailable", http.StatusBadGateway)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
