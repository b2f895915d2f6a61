// Package authz decides what an admin principal may see and act on.
// It is the single place where the role hierarchy is interpreted: handlers
// consume its output (accessible departments, filtered complaint lists)
// instead of re-deriving role logic locally.
//
// The upstream backend returns complaint lists unfiltered, so this package is
// the gateway's enforcement point for scope. Department references are matched
// leniently (exact id OR case-insensitive substring on the name) because the
// upstream sometimes sends an id and sometimes a display name.
package authz

import (
	"strings"

	"civicsaathi/models"
)

// Principal is the tagged admin identity resolved from a session.
// Role is the dispatch key; the scoping fields are only meaningful for the
// role they belong to. A nil or zero Principal grants nothing.
type Principal struct {
	UserID      string                     `json:"user_id"`
	Name        string                     `json:"name"`
	Role        models.AdminRole           `json:"role"`
	Permissions []string                   `json:"permissions,omitempty"`
	Departments []models.ClusterDepartment `json:"departments,omitempty"` // SUB_ADMIN cluster

	DepartmentID   string `json:"department_id,omitempty"`   // DEPARTMENT_ADMIN
	DepartmentName string `json:"department_name,omitempty"` // DEPARTMENT_ADMIN
	CityContext    string `json:"city_context,omitempty"`    // optional city narrowing
}

// FromRecord builds the principal for a matched credential-table record.
func FromRecord(rec *models.AdminRecord) *Principal {
	if rec == nil {
		return nil
	}
	return &Principal{
		UserID:         rec.UserID,
		Name:           rec.Name,
		Role:           rec.Role,
		Permissions:    rec.Permissions,
		Departments:    rec.Departments,
		DepartmentID:   rec.DepartmentID,
		DepartmentName: rec.DepartmentName,
		CityContext:    rec.CityContext,
	}
}

// HasPermission reports whether the named permission is granted.
// Root admins hold every permission; sub-admins only what their record lists;
// department admins hold the fixed department-level set.
func (p *Principal) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case models.RoleRootAdmin:
		return true
	case models.RoleSubAdmin:
		for _, granted := range p.Permissions {
			if granted == permission {
				return true
			}
		}
		return false
	case models.RoleDepartmentAdmin:
		for _, granted := range departmentAdminPermissions {
			if granted == permission {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Permissions department admins always hold within their own department.
var departmentAdminPermissions = []string{
	"complaints.view",
	"complaints.assign",
	"complaints.update_status",
	"workers.view",
	"attendance.mark",
}

// AccessibleDepartments returns the department ids the principal may operate
// on. Root admins return nil, meaning "all departments"; callers must treat
// nil as unrestricted, not as empty.
func (p *Principal) AccessibleDepartments() []string {
	if p == nil {
		return []string{}
	}
	switch p.Role {
	case models.RoleRootAdmin:
		return nil
	case models.RoleSubAdmin:
		ids := make([]string, 0, len(p.Departments))
		for _, d := range p.Departments {
			ids = append(ids, d.ID)
		}
		return ids
	case models.RoleDepartmentAdmin:
		if p.DepartmentID == "" {
			return []string{}
		}
		return []string{p.DepartmentID}
	default:
		return []string{}
	}
}

// CanAccessDepartment reports whether a department reference (id or name,
// as the upstream sent it) falls inside the principal's scope.
func (p *Principal) CanAccessDepartment(dept models.DeptRef) bool {
	if p == nil {
		return false
	}
	switch p.Role {
	case models.RoleRootAdmin:
		return true
	case models.RoleSubAdmin:
		for _, d := range p.Departments {
			if matchesDepartment(dept, d.ID, d.Name) {
				return true
			}
		}
		return false
	case models.RoleDepartmentAdmin:
		return matchesDepartment(dept, p.DepartmentID, p.DepartmentName)
	default:
		return false
	}
}

// CanAccessComplaint applies the department scope plus, for city-narrowed
// department admins, the exact-city check.
func (p *Principal) CanAccessComplaint(c *models.Complaint) bool {
	if p == nil || c == nil {
		return false
	}
	if p.Role == models.RoleRootAdmin {
		return true
	}
	dept := c.Department
	if dept == "" {
		dept = models.DeptRef(c.DepartmentName)
	}
	if !p.CanAccessDepartment(dept) && !p.CanAccessDepartment(models.DeptRef(c.DepartmentName)) {
		return false
	}
	if p.Role == models.RoleDepartmentAdmin && p.CityContext != "" && c.City != p.CityContext {
		return false
	}
	return true
}

// FilterComplaints keeps only the complaints inside the principal's scope.
// Root admins get the list back untouched.
func (p *Principal) FilterComplaints(complaints []models.Complaint) []models.Complaint {
	if p == nil {
		return []models.Complaint{}
	}
	if p.Role == models.RoleRootAdmin {
		return complaints
	}
	filtered := []models.Complaint{}
	for i := range complaints {
		if p.CanAccessComplaint(&complaints[i]) {
			filtered = append(filtered, complaints[i])
		}
	}
	return filtered
}

// FilterDepartments keeps only the departments inside the principal's scope.
func (p *Principal) FilterDepartments(departments []models.Department) []models.Department {
	if p == nil {
		return []models.Department{}
	}
	if p.Role == models.RoleRootAdmin {
		return departments
	}
	filtered := []models.Department{}
	for _, d := range departments {
		if p.CanAccessDepartment(d.ID) || p.CanAccessDepartment(models.DeptRef(d.Name)) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// matchesDepartment is the lenient comparison tolerating inconsistent
// upstream representations: exact id match, or case-insensitive substring
// containment between the reference and the known department name, in either
// direction. Empty values never match.
func matchesDepartment(ref models.DeptRef, id, name string) bool {
	refStr := strings.TrimSpace(string(ref))
	if refStr == "" {
		return false
	}
	if id != "" && refStr == id {
		return true
	}
	if name == "" {
		return false
	}
	lowerRef := strings.ToLower(refStr)
	lowerName := strings.ToLower(name)
	return strings.Contains(lowerRef, lowerName) || strings.Contains(lowerName, lowerRef)
}
