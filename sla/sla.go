// Package sla derives display-ready SLA status for complaints.
// The backend-computed sla_timer is the source of truth when present; when a
// complaint only carries a raw sla_deadline the package re-derives a coarser
// status as a fallback. Both paths are pure functions over their inputs and
// never fail: malformed or missing fields degrade to placeholder output.
package sla

import (
	"fmt"
	"math"
	"time"

	"civicsaathi/models"
)

// Status buckets used by both the primary and fallback paths.
const (
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusPending   = "pending"
	StatusOverdue   = "overdue"
	StatusCritical  = "critical"
	StatusWarning   = "warning"
	StatusOK        = "ok"
	StatusNone      = "none"
)

// Display colors for status and priority badges.
const (
	ColorGreen  = "green"
	ColorRed    = "red"
	ColorOrange = "orange"
	ColorYellow = "yellow"
	ColorBlue   = "blue"
	ColorGray   = "gray"
)

// Placeholder shown for missing or unparseable duration values.
const Placeholder = "—"

// Fallback thresholds in hours remaining.
const (
	criticalThresholdHours = 24
	warningThresholdHours  = 48
)

// View is the presentation-ready SLA state for one complaint.
type View struct {
	HasSLA            bool     `json:"has_sla"`
	Source            string   `json:"source,omitempty"` // "timer" or "fallback"
	Status            string   `json:"status"`
	Title             string   `json:"title"`
	Color             string   `json:"color"`
	Icon              string   `json:"icon,omitempty"`
	IsOverdue         bool     `json:"is_overdue"`
	ShowStats         bool     `json:"show_stats"`
	AgeText           string   `json:"age_text,omitempty"`
	DurationLabel     string   `json:"duration_label,omitempty"` // "Time Remaining" or "Overdue By"
	DurationText      string   `json:"duration_text,omitempty"`
	HoursRemaining    *float64 `json:"hours_remaining,omitempty"`
	HoursOverdue      *float64 `json:"hours_overdue,omitempty"`
	Priority          int      `json:"priority,omitempty"`
	PriorityText      string   `json:"priority_text,omitempty"`
	PriorityColor     string   `json:"priority_color,omitempty"`
	EscalationCount   int      `json:"escalation_count,omitempty"`
	EscalationWarning bool     `json:"escalation_warning,omitempty"`
}

// Derive produces the SLA view for a complaint at the given instant.
// Preference order: backend sla_timer, then sla_deadline fallback, then a
// neutral "no SLA" view. A status is never fabricated.
func Derive(c *models.Complaint, now time.Time) View {
	if c == nil {
		return None()
	}
	if c.SLATimer != nil {
		return FromTimer(c.SLATimer)
	}
	if c.SLADeadline != nil {
		return Fallback(c.Status, c.CreatedAt, *c.SLADeadline, now)
	}
	return None()
}

// None is the neutral view for complaints without any SLA assignment.
func None() View {
	return View{
		HasSLA: false,
		Status: StatusNone,
		Title:  "No SLA assigned",
		Color:  ColorGray,
	}
}

// FromTimer builds the view from a backend-computed timer. The timer's own
// status taxonomy is trusted; this only attaches colors, labels and formatted
// durations.
func FromTimer(t *models.SLATimer) View {
	v := View{
		HasSLA:          true,
		Source:          "timer",
		Status:          t.Status,
		Title:           t.Title,
		Color:           statusColor(t.Status),
		Icon:            t.Icon,
		IsOverdue:       t.IsOverdue,
		Priority:        t.Priority,
		PriorityText:    t.PriorityText,
		PriorityColor:   PriorityColor(t.Priority),
		EscalationCount: t.EscalationCount,
		// Escalations add a banner but never override the status itself.
		EscalationWarning: t.EscalationCount > 0,
	}
	if v.Title == "" {
		v.Title = statusTitle(t.Status)
	}

	// Declined complaints have no meaningful deadline math.
	if t.Status == StatusDeclined {
		v.ShowStats = false
		return v
	}

	v.ShowStats = true
	if t.HoursElapsed != nil {
		v.AgeText = FormatHours(*t.HoursElapsed)
	}
	if t.IsOverdue {
		v.HoursOverdue = t.HoursOverdue
		v.DurationLabel = "Overdue By"
		v.DurationText = FormatHoursPtr(t.HoursOverdue)
	} else {
		v.HoursRemaining = t.HoursRemaining
		v.DurationLabel = "Time Remaining"
		v.DurationText = FormatHoursPtr(t.HoursRemaining)
	}
	return v
}

// Fallback re-derives an SLA view from the raw deadline when the backend did
// not attach a timer. Deliberately coarser than the primary path; divergence
// between the two is expected, not a bug.
func Fallback(status models.ComplaintStatus, createdAt, deadline, now time.Time) View {
	hoursLeft := deadline.Sub(now).Hours()
	completed := status.IsClosed()
	overdue := !completed && hoursLeft < 0

	v := View{
		HasSLA:    true,
		Source:    "fallback",
		IsOverdue: overdue,
		ShowStats: true,
		AgeText:   FormatHours(now.Sub(createdAt).Hours()),
	}

	// First match wins, evaluated strictly in this order.
	switch {
	case completed:
		v.Status = StatusCompleted
		v.Title = "Completed on Time"
		v.Color = ColorGreen
	case hoursLeft < 0:
		v.Status = StatusOverdue
		v.Title = "SLA Deadline Overdue"
		v.Color = ColorRed
	case hoursLeft < criticalThresholdHours:
		v.Status = StatusCritical
		v.Title = "SLA Deadline Critical"
		v.Color = ColorOrange
	case hoursLeft < warningThresholdHours:
		v.Status = StatusWarning
		v.Title = "SLA Deadline Warning"
		v.Color = ColorYellow
	default:
		v.Status = StatusOK
		v.Title = "SLA Deadline Active"
		v.Color = ColorGreen
	}

	rounded := math.Round(math.Abs(hoursLeft))
	if overdue {
		v.HoursOverdue = &rounded
		v.DurationLabel = "Overdue By"
	} else {
		v.HoursRemaining = &rounded
		v.DurationLabel = "Time Remaining"
	}
	v.DurationText = FormatHours(rounded)
	return v
}

// FormatHours renders an hour count for display.
//   - NaN/Inf: placeholder
//   - |h| < 1: whole minutes, "42m"
//   - |h| >= 48: days plus hours, "2d 3h"
//   - otherwise: hours, one decimal only when non-integral, "10h" / "10.5h"
func FormatHours(h float64) string {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return Placeholder
	}
	abs := math.Abs(h)
	if abs < 1 {
		return fmt.Sprintf("%dm", int(math.Round(abs*60)))
	}
	if abs >= 48 {
		days := int(math.Floor(abs / 24))
		rem := int(math.Round(math.Mod(abs, 24)))
		return fmt.Sprintf("%dd %dh", days, rem)
	}
	if abs == math.Trunc(abs) {
		return fmt.Sprintf("%dh", int(abs))
	}
	return fmt.Sprintf("%.1fh", abs)
}

// FormatHoursPtr is FormatHours with the placeholder for absent values.
func FormatHoursPtr(h *float64) string {
	if h == nil {
		return Placeholder
	}
	return FormatHours(*h)
}

// PriorityColor maps the 1..3 priority scale to its badge color.
// Unknown priorities fall back to gray rather than guessing.
func PriorityColor(priority int) string {
	switch priority {
	case 1:
		return ColorBlue
	case 2:
		return ColorOrange
	case 3:
		return ColorRed
	default:
		return ColorGray
	}
}

// statusColor maps the primary-path status taxonomy to badge colors.
func statusColor(status string) string {
	switch status {
	case StatusCompleted, StatusOK:
		return ColorGreen
	case StatusOverdue:
		return ColorRed
	case StatusCritical:
		return ColorOrange
	case StatusWarning:
		return ColorYellow
	case StatusDeclined, StatusPending:
		return ColorGray
	default:
		return ColorGray
	}
}

// statusTitle supplies a default heading when the backend omitted one.
func statusTitle(status string) string {
	switch status {
	case StatusCompleted:
		return "Completed on Time"
	case StatusDeclined:
		return "Complaint Declined"
	case StatusPending:
		return "SLA Pending"
	case StatusOverdue:
		return "SLA Deadline Overdue"
	case StatusCritical:
		return "SLA Deadline Critical"
	case StatusWarning:
		return "SLA Deadline Warning"
	case StatusOK:
		return "SLA Deadline Active"
	default:
		return "SLA Status"
	}
}
