// models.go
// Defines the core data structures shared by the Civic Saathi gateway
// (upstream API payloads, session principals, and handler request/response types).

package models

import (
	"encoding/json"
	"strings"
	"time"
)

// ComplaintStatus defines the lifecycle states of a complaint as reported
// by the upstream civic backend.
type ComplaintStatus string

const (
	StatusPending    ComplaintStatus = "PENDING"
	StatusAssigned   ComplaintStatus = "ASSIGNED"
	StatusInProgress ComplaintStatus = "IN_PROGRESS"
	StatusCompleted  ComplaintStatus = "COMPLETED"
	StatusResolved   ComplaintStatus = "RESOLVED"
	StatusRejected   ComplaintStatus = "REJECTED"
)

// IsClosed reports whether the complaint has reached a terminal resolved state.
func (s ComplaintStatus) IsClosed() bool {
	return s == StatusCompleted || s == StatusResolved
}

// DeptRef is a department reference as the upstream backend sends it.
// List endpoints sometimes serialize a numeric id and detail endpoints a
// display name, so the value is decoded tolerantly as a string either way.
type DeptRef string

// UnmarshalJSON accepts both string and number representations.
func (d *DeptRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*d = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DeptRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = DeptRef(n.String())
	return nil
}

// SLATimer is the backend-computed SLA sub-object attached to a complaint.
// The gateway treats it as read-only and only derives presentation from it.
type SLATimer struct {
	Status             string   `json:"status"` // completed|declined|pending|overdue|critical|warning|ok
	Title              string   `json:"title,omitempty"`
	Icon               string   `json:"icon,omitempty"`
	ResolutionDeadline float64  `json:"resolution_deadline,omitempty"` // hours
	HoursElapsed       *float64 `json:"hours_elapsed,omitempty"`
	HoursRemaining     *float64 `json:"hours_remaining,omitempty"`
	HoursOverdue       *float64 `json:"hours_overdue,omitempty"`
	IsOverdue          bool     `json:"is_overdue"`
	EscalationDeadline float64  `json:"escalation_deadline,omitempty"` // hours
	EscalationCount    int      `json:"escalation_count"`
	Priority           int      `json:"priority,omitempty"` // 1..3
	PriorityText       string   `json:"priority_text,omitempty"`
}

// Complaint is the projection of an upstream complaint consumed by the gateway.
type Complaint struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         ComplaintStatus `json:"status"`
	Department     DeptRef         `json:"department"` // id or name, inconsistent upstream
	DepartmentName string          `json:"department_name,omitempty"`
	Office         string          `json:"office,omitempty"`
	City           string          `json:"city,omitempty"`
	State          string          `json:"state,omitempty"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	Upvotes        int             `json:"upvotes"`
	AssignedWorker string          `json:"assigned_worker,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	SLATimer       *SLATimer       `json:"sla_timer,omitempty"`
	SLADeadline    *time.Time      `json:"sla_deadline,omitempty"`
}

// Department as listed by the upstream backend.
type Department struct {
	ID   DeptRef `json:"id"`
	Name string  `json:"name"`
	City string  `json:"city,omitempty"`
}

// Office is a department field office that complaints can be routed to.
type Office struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Department DeptRef `json:"department"`
	City       string  `json:"city,omitempty"`
	Address    string  `json:"address,omitempty"`
}

// Worker is a field worker who resolves assigned complaints.
type Worker struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone,omitempty"`
	Department DeptRef `json:"department"`
	City       string  `json:"city,omitempty"`
	Active     bool    `json:"active"`
}

// WorkerStatistics summarizes a worker's resolution record.
type WorkerStatistics struct {
	WorkerID           string  `json:"worker_id"`
	Assigned           int     `json:"assigned"`
	Completed          int     `json:"completed"`
	Overdue            int     `json:"overdue"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// UserType classifies upstream accounts; the citizen-facing session guard
// only admits CITIZEN accounts.
type UserType string

const (
	UserTypeCitizen   UserType = "CITIZEN"
	UserTypeAdmin     UserType = "ADMIN"
	UserTypeSubAdmin  UserType = "SUB_ADMIN"
	UserTypeDeptAdmin UserType = "DEPT_ADMIN"
	UserTypeWorker    UserType = "WORKER"
)

// CitizenSession describes the account behind a backend session token.
type CitizenSession struct {
	Username string   `json:"username"`
	UserType UserType `json:"user_type"`
	City     string   `json:"city,omitempty"`
	State    string   `json:"state,omitempty"`
}

// AdminRole defines the admin hierarchy levels.
type AdminRole string

const (
	RoleRootAdmin       AdminRole = "ROOT_ADMIN"
	RoleSubAdmin        AdminRole = "SUB_ADMIN"
	RoleDepartmentAdmin AdminRole = "DEPARTMENT_ADMIN"
)

// ClusterDepartment is one department inside a sub-admin's cluster.
type ClusterDepartment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AdminRecord is the matched credential-table entry for a logged-in admin.
// It is scoped by role: Departments for sub-admins (the cluster),
// DepartmentID/DepartmentName for department admins. CityContext narrows a
// multi-city department admin to one city for the session.
type AdminRecord struct {
	UserID         string              `json:"user_id"`
	Name           string              `json:"name"`
	Role           AdminRole           `json:"role"`
	Permissions    []string            `json:"permissions,omitempty"`
	ClusterID      string              `json:"cluster_id,omitempty"`
	ClusterName    string              `json:"cluster_name,omitempty"`
	Departments    []ClusterDepartment `json:"departments,omitempty"`
	DepartmentID   string              `json:"department_id,omitempty"`
	DepartmentName string              `json:"department_name,omitempty"`
	MultiCity      bool                `json:"multi_city,omitempty"`
	CityContext    string              `json:"city_context,omitempty"`
}

// AttendanceRecord is a worker attendance entry proxied to the backend.
type AttendanceRecord struct {
	WorkerID string    `json:"worker_id"`
	Date     string    `json:"date"` // YYYY-MM-DD
	Present  bool      `json:"present"`
	MarkedBy string    `json:"marked_by,omitempty"`
	MarkedAt time.Time `json:"marked_at,omitempty"`
}

// SLAConfig is a department-level SLA configuration row from the backend.
type SLAConfig struct {
	ID                 string  `json:"id"`
	Department         DeptRef `json:"department"`
	ResolutionHours    float64 `json:"resolution_hours"`
	EscalationHours    float64 `json:"escalation_hours"`
	Priority           int     `json:"priority"`
	EscalateToRole     string  `json:"escalate_to_role,omitempty"`
	NotifyOnEscalation bool    `json:"notify_on_escalation"`
}

// SLAReportRow is one aggregate row of the backend SLA compliance report.
type SLAReportRow struct {
	Department DeptRef `json:"department"`
	Total      int     `json:"total"`
	OnTime     int     `json:"on_time"`
	Overdue    int     `json:"overdue"`
	Critical   int     `json:"critical"`
	Escalated  int     `json:"escalated"`
}
