package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"civicsaathi/auth"
	"civicsaathi/authz"
	"civicsaathi/backend"
	"civicsaathi/db"
	"civicsaathi/middleware"
	"civicsaathi/models"
	"civicsaathi/session"
	"civicsaathi/sla"
)

// AuditLogger records admin actions. Satisfied by db.FirestoreDB; nil
// disables auditing (single-node deployments without Firestore).
type AuditLogger interface {
	LogAudit(ctx context.Context, actorID, action, details string) error
}

// AuditReader reads audit records back. Durable stores (db.FirestoreDB)
// satisfy it; a logger that cannot be queried simply doesn't.
type AuditReader interface {
	GetAuditLogsSince(ctx context.Context, since time.Time) ([]db.AuditEntry, error)
}

type AdminHandler struct {
	backend *backend.Client
	creds   *auth.CredentialTable
	store   session.Store
	audit   AuditLogger
}

func NewAdminHandler(client *backend.Client, creds *auth.CredentialTable, store session.Store, audit AuditLogger) *AdminHandler {
	return &AdminHandler{
		backend: client,
		creds:   creds,
		store:   store,
		audit:   audit,
	}
}

// logAudit records an admin action, best effort.
func (h *AdminHandler) logAudit(ctx context.Context, actorID, action, details string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.LogAudit(ctx, actorID, action, details); err != nil {
		log.Printf("Warning: failed to write audit log: %v", err)
	}
}

type AdminLoginRequest struct {
	UserID      string `json:"user_id"`
	Password    string `json:"password"`
	CityContext string `json:"city_context,omitempty"`
}

type AdminLoginResponse struct {
	Token string           `json:"token"`
	Admin *authz.Principal `json:"admin"`
}

// Login authenticates an admin against the credential table and opens a
// server-side session. The returned token is opaque; the principal is
// resolved from the session store on every subsequent request.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		writeError(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	record, err := h.creds.Authenticate(req.UserID, req.Password, req.CityContext)
	if err != nil {
		if errors.Is(err, auth.ErrCityContextNotAllowed) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Admin login failed for %s: invalid credentials", req.UserID)
		writeError(w, "Invalid user id or password", http.StatusUnauthorized)
		return
	}

	principal := authz.FromRecord(record)
	token, err := auth.NewAdminToken()
	if err != nil {
		log.Printf("❌ Failed to mint admin token: %v", err)
		writeError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	now := time.Now()

	if err := h.store.Save(r.Context(), &session.Session{
		Token:    token,
		Admin:    *principal,
		IssuedAt: now,
		LastSeen: now,
	}); err != nil {
		log.Printf("❌ Failed to save admin session for %s: %v", req.UserID, err)
		writeError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.logAudit(r.Context(), principal.UserID, "admin.login", string(principal.Role))
	log.Printf("🔑 Admin logged in: %s (role: %s)", principal.UserID, principal.Role)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AdminLoginResponse{
		Token: token,
		Admin: principal,
	})
}

// Logout destroys the server-side session for the presented token.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	admin, ok := middleware.GetAdminFromContext(r.Context())
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}
	token, _ := middleware.GetAdminTokenFromContext(r.Context())

	if err := h.store.Delete(r.Context(), token); err != nil {
		log.Printf("Warning: failed to delete session on logout: %v", err)
	}

	h.logAudit(r.Context(), admin.UserID, "admin.logout", "")
	log.Printf("🔑 Admin logged out: %s", admin.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Logged out successfully",
	})
}

// Me returns the principal behind the current session.
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	admin, ok := middleware.GetAdminFromContext(r.Context())
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(admin)
}

// Complaints lists complaints inside the admin's scope, decorated with
// derived SLA views. The upstream list is unfiltered; scope is enforced here.
func (h *AdminHandler) Complaints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	complaints, err := h.backend.AllComplaints(r.Context(), identity, r.URL.Query())
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := identity.Admin.FilterComplaints(complaints)
	views := withSLA(filtered, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"complaints": views,
		"count":      len(views),
	})
}

// GetComplaint returns one complaint after a scope check.
func (h *AdminHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ComplaintView{
		Complaint: *complaint,
		SLA:       sla.Derive(complaint, time.Now()),
	})
}

// scopedComplaint fetches the complaint in the path and verifies it is inside
// the caller's scope. Out-of-scope complaints are reported as 403, not 404;
// the list endpoint already reveals which ids exist.
func (h *AdminHandler) scopedComplaint(w http.ResponseWriter, r *http.Request) (*backend.AdminIdentity, *models.Complaint, bool) {
	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return nil, nil, false
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, "Complaint id is required", http.StatusBadRequest)
		return nil, nil, false
	}

	complaint, err := h.backend.Complaint(r.Context(), backend.AdminAuth(identity), id)
	if err != nil {
		handleBackendError(w, err)
		return nil, nil, false
	}

	if !identity.Admin.CanAccessComplaint(complaint) {
		writeError(w, "Complaint is outside your scope", http.StatusForbidden)
		return nil, nil, false
	}

	return identity, complaint, true
}

type assignRequest struct {
	WorkerID string `json:"worker_id"`
}

// AssignComplaint assigns a worker to a complaint inside the admin's scope.
func (h *AdminHandler) AssignComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		writeError(w, "worker_id is required", http.StatusBadRequest)
		return
	}

	if err := h.backend.AssignComplaint(r.Context(), identity, complaint.ID, req.WorkerID); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaint.assign",
		fmt.Sprintf("complaint=%s worker=%s", complaint.ID, req.WorkerID))
	log.Printf("✅ Complaint %s assigned to worker %s by %s", complaint.ID, req.WorkerID, identity.Admin.UserID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Complaint assigned successfully",
	})
}

// ReassignComplaint moves a complaint to a different worker.
func (h *AdminHandler) ReassignComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkerID == "" {
		writeError(w, "worker_id is required", http.StatusBadRequest)
		return
	}

	if err := h.backend.ReassignComplaint(r.Context(), identity, complaint.ID, req.WorkerID); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaint.reassign",
		fmt.Sprintf("complaint=%s worker=%s", complaint.ID, req.WorkerID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Complaint reassigned successfully",
	})
}

type updateStatusRequest struct {
	Status models.ComplaintStatus `json:"status"`
	Note   string                 `json:"note,omitempty"`
}

// UpdateComplaintStatus transitions a complaint's status. The backend owns
// the transition rules; invalid transitions come back as upstream errors.
func (h *AdminHandler) UpdateComplaintStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, "status is required", http.StatusBadRequest)
		return
	}

	if err := h.backend.UpdateComplaintStatus(r.Context(), identity, complaint.ID, req.Status, req.Note); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaint.update_status",
		fmt.Sprintf("complaint=%s status=%s", complaint.ID, req.Status))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Status updated successfully",
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectComplaint declines a complaint with a reason.
func (h *AdminHandler) RejectComplaint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		writeError(w, "reason is required", http.StatusBadRequest)
		return
	}

	if err := h.backend.RejectComplaint(r.Context(), identity, complaint.ID, req.Reason); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaint.reject",
		fmt.Sprintf("complaint=%s", complaint.ID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Complaint rejected",
	})
}

type assignOfficeRequest struct {
	OfficeID string `json:"office_id"`
}

// AssignOffice routes a complaint to a department field office.
func (h *AdminHandler) AssignOffice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, complaint, ok := h.scopedComplaint(w, r)
	if !ok {
		return
	}

	var req assignOfficeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfficeID == "" {
		writeError(w, "office_id is required", http.StatusBadRequest)
		return
	}

	if err := h.backend.AssignOffice(r.Context(), identity, complaint.ID, req.OfficeID); err != nil {
		handleBackendError(w, err)
		return
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaint.assign_office",
		fmt.Sprintf("complaint=%s office=%s", complaint.ID, req.OfficeID))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Complaint routed to office",
	})
}

// Departments lists the departments inside the admin's scope.
func (h *AdminHandler) Departments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	departments, err := h.backend.Departments(r.Context(), backend.AdminAuth(identity))
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := identity.Admin.FilterDepartments(departments)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"departments": filtered,
		"count":       len(filtered),
	})
}

// Offices lists department field offices inside the admin's scope.
func (h *AdminHandler) Offices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	offices, err := h.backend.Offices(r.Context(), identity)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := offices
	if identity.Admin.Role != models.RoleRootAdmin {
		filtered = []models.Office{}
		for _, office := range offices {
			if identity.Admin.CanAccessDepartment(office.Department) {
				filtered = append(filtered, office)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"offices": filtered,
		"count":   len(filtered),
	})
}

// Workers lists field workers inside the admin's scope.
func (h *AdminHandler) Workers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	workers, err := h.backend.Workers(r.Context(), identity)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := workers
	if identity.Admin.Role != models.RoleRootAdmin {
		filtered = []models.Worker{}
		for _, worker := range workers {
			if identity.Admin.CanAccessDepartment(worker.Department) {
				filtered = append(filtered, worker)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"workers": filtered,
		"count":   len(filtered),
	})
}

// WorkerStatistics returns one worker's resolution record.
func (h *AdminHandler) WorkerStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	workerID := r.PathValue("id")
	if workerID == "" {
		writeError(w, "Worker id is required", http.StatusBadRequest)
		return
	}

	stats, err := h.backend.WorkerStatistics(r.Context(), identity, workerID)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// DashboardStats aggregates the scoped complaint list into the counters the
// admin console shows on its landing page.
func (h *AdminHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	complaints, err := h.backend.AllComplaints(r.Context(), identity, nil)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := identity.Admin.FilterComplaints(complaints)
	now := time.Now()

	stats := map[string]int{
		"total":       len(filtered),
		"pending":     0,
		"assigned":    0,
		"in_progress": 0,
		"completed":   0,
		"rejected":    0,
		"overdue":     0,
	}
	for i := range filtered {
		switch filtered[i].Status {
		case models.StatusPending:
			stats["pending"]++
		case models.StatusAssigned:
			stats["assigned"]++
		case models.StatusInProgress:
			stats["in_progress"]++
		case models.StatusCompleted, models.StatusResolved:
			stats["completed"]++
		case models.StatusRejected:
			stats["rejected"]++
		}
		view := sla.Derive(&filtered[i], now)
		if view.IsOverdue {
			stats["overdue"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// AuditLogs returns audit records from the last 24 hours, or since
// ?since=<RFC3339>. Route-level middleware restricts this to root admins;
// deployments without a durable audit store report it as unavailable.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reader, ok := h.audit.(AuditReader)
	if !ok {
		writeError(w, "Audit log is not available on this deployment", http.StatusNotFound)
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	entries, err := reader.GetAuditLogsSince(r.Context(), since)
	if err != nil {
		log.Printf("❌ Failed to read audit logs: %v", err)
		writeError(w, "Failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":  entries,
		"count": len(entries),
	})
}

// ExportComplaints downloads the scoped complaint list as CSV.
func (h *AdminHandler) ExportComplaints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := adminIdentity(r)
	if !ok {
		writeError(w, "Admin not found in context", http.StatusUnauthorized)
		return
	}

	complaints, err := h.backend.AllComplaints(r.Context(), identity, nil)
	if err != nil {
		handleBackendError(w, err)
		return
	}

	filtered := identity.Admin.FilterComplaints(complaints)
	now := time.Now()

	timestamp := now.Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("civicsaathi_complaints_%s.csv", timestamp)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"ID",
		"Title",
		"Status",
		"Department",
		"City",
		"Assigned Worker",
		"Upvotes",
		"Created At",
		"SLA Status",
		"SLA Detail",
	}
	if err := writer.Write(header); err != nil {
		log.Printf("❌ Failed to write CSV header: %v", err)
		return
	}

	for i := range filtered {
		c := &filtered[i]
		view := sla.Derive(c, now)
		department := string(c.Department)
		if c.DepartmentName != "" {
			department = c.DepartmentName
		}

		row := []string{
			c.ID,
			c.Title,
			string(c.Status),
			department,
			c.City,
			c.AssignedWorker,
			fmt.Sprintf("%d", c.Upvotes),
			c.CreatedAt.Format(time.RFC3339),
			view.Title,
			view.DurationText,
		}
		if err := writer.Write(row); err != nil {
			log.Printf("❌ Failed to write CSV row: %v", err)
			return
		}
	}

	h.logAudit(r.Context(), identity.Admin.UserID, "complaints.export",
		fmt.Sprintf("count=%d", len(filtered)))
	log.Printf("📊 CSV export by %s: %d complaints", identity.Admin.UserID, len(filtered))
}
