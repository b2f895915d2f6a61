package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"civicsaathi/backend"
)

// SLAHandler exposes the backend's SLA administration endpoints. Route-level
// middleware restricts these to root admins.
type SLAHandler struct {
	backend *backend.Client
	audit   AuditLogger
}

func NewSLAHandler(client *backend.Client, audit AuditLogger) *SLAHandler {
	return &SLAHandler{
		backend: client,
		audit:   audit,
	}
}

// Configs lists department SLA configurations.
func (h *SLAHandler) Configs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	configs, err := h.backend.SLAConfigs(r.Context(), identity)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"configs": configs,
		"count":   len(configs),
	})
}

// Report returns the aggregate SLA compliance report.
func (h *SLAHandler) Report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	rows, err := h.backend.SLAReport(r.Context(), identity)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"report": rows,
		"count":  len(rows),
	})
}

// TriggerEscalation asks the backend to run its escalation sweep immediately
// instead of waiting for the scheduled one.
func (h *SLAHandler) TriggerEscalation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.backend.TriggerEscalation(r.Context(), identity); err != nil {
		handleBackendError(w, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.LogAudit(r.Context(), identity.Admin.UserID, "sla.trigger_escalation", ""); err != nil {
			log.Printf("Warning: failed to write audit log: %v", err)
		}
	}
	log.Printf("🛡️ Escalation sweep triggered by %s", identity.Admin.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Escalation sweep triggered",
	})
}
