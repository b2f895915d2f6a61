package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"civicsaathi/backend"
	"civicsaathi/models"
)

// AttendanceHandler proxies worker attendance marking to the backend.
type AttendanceHandler struct {
	backend *backend.Client
	audit   AuditLogger
}

func NewAttendanceHandler(client *backend.Client, audit AuditLogger) *AttendanceHandler {
	return &AttendanceHandler{
		backend: client,
		audit:   audit,
	}
}

// logAudit records an attendance action, best effort.
func (h *AttendanceHandler) logAudit(r *http.Request, actorID, action, details string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogAudit(r.Context(), actorID, action, details); err != nil {
		log.Printf("Warning: failed to write audit log: %v", err)
	}
}

type registerAttendanceRequest struct {
	WorkerID string `json:"worker_id"`
	Date     string `json:"date"`
	Present  bool   `json:"present"`
}

// Register marks attendance for one worker.
func (h *AttendanceHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	var req registerAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		writeError(w, "worker_id is required", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	record := &models.AttendanceRecord{
		WorkerID: req.WorkerID,
		Date:     req.Date,
		Present:  req.Present,
		MarkedBy: identity.Admin.UserID,
		MarkedAt: time.Now().UTC(),
	}
	if err := h.backend.RegisterAttendance(r.Context(), identity, record); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r, identity.Admin.UserID, "attendance.mark",
		fmt.Sprintf("worker=%s date=%s present=%t", req.WorkerID, req.Date, req.Present))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Attendance recorded",
	})
}

type bulkAttendanceRequest struct {
	Date    string          `json:"date"`
	Workers map[string]bool `json:"workers"` // worker id -> present
}

// BulkMark marks attendance for many workers in one call.
func (h *AttendanceHandler) BulkMark(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	var req bulkAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Workers) == 0 {
		writeError(w, "workers map is required", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	markedAt := time.Now().UTC()
	records := make([]models.AttendanceRecord, 0, len(req.Workers))
	for workerID, present := range req.Workers {
		records = append(records, models.AttendanceRecord{
			WorkerID: workerID,
			Date:     req.Date,
			Present:  present,
			MarkedBy: identity.Admin.UserID,
			MarkedAt: markedAt,
		})
	}
	if err := h.backend.BulkMarkAttendance(r.Context(), identity, records); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r, identity.Admin.UserID, "attendance.bulk_mark",
		fmt.Sprintf("date=%s count=%d", req.Date, len(records)))
	log.Printf("✅ Bulk attendance by %s: %d workers", identity.Admin.UserID, len(records))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Attendance recorded",
		"count":   len(records),
	})
}
