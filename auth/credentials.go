package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"civicsaathi/models"
)

// ErrInvalidCredentials is returned when no credential-table entry matches.
var ErrInvalidCredentials = errors.New("invalid user id or password")

// ErrCityContextNotAllowed is returned when a city context is supplied for an
// account that is not flagged multi-city.
var ErrCityContextNotAllowed = errors.New("city context is only valid for multi-city department admins")

// rootAdminEntry is the singleton root account in the credential table.
type rootAdminEntry struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

// subAdminEntry is one cluster-scoped sub-admin account.
type subAdminEntry struct {
	UserID       string                     `json:"user_id"`
	Name         string                     `json:"name"`
	PasswordHash string                     `json:"password_hash"`
	ClusterID    string                     `json:"cluster_id"`
	ClusterName  string                     `json:"cluster_name"`
	Departments  []models.ClusterDepartment `json:"departments"`
	Permissions  []string                   `json:"permissions"`
}

// deptAdminEntry is one department-scoped admin account.
type deptAdminEntry struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	PasswordHash   string `json:"password_hash"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	MultiCity      bool   `json:"multi_city"`
}

// CredentialTable is the static admin credential table loaded at startup.
// It enumerates one root admin, N sub-admins and M department admins.
type CredentialTable struct {
	RootAdmin        rootAdminEntry   `json:"root_admin"`
	SubAdmins        []subAdminEntry  `json:"sub_admins"`
	DepartmentAdmins []deptAdminEntry `json:"department_admins"`
}

// LoadCredentialTable reads and parses the credential table JSON file.
func LoadCredentialTable(path string) (*CredentialTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential table: %w", err)
	}

	var table CredentialTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse credential table: %w", err)
	}

	log.Printf("🔐 Credential table loaded: 1 root, %d sub-admins, %d department admins",
		len(table.SubAdmins), len(table.DepartmentAdmins))

	return &table, nil
}

// Authenticate matches the supplied credentials against the table.
// Precedence is fixed: root admin first, then sub-admins, then department
// admins; the first match wins. The tables are assumed disjoint in a valid
// configuration, so precedence only matters for misconfigured overlaps.
//
// cityContext narrows a multi-city department admin to one city for this
// session; supplying one for any other account is rejected.
func (t *CredentialTable) Authenticate(userID, password, cityContext string) (*models.AdminRecord, error) {
	if userID == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	// 1. Root admin
	if t.RootAdmin.UserID == userID && CheckPassword(password, t.RootAdmin.PasswordHash) == nil {
		if cityContext != "" {
			return nil, ErrCityContextNotAllowed
		}
		return &models.AdminRecord{
			UserID: t.RootAdmin.UserID,
			Name:   t.RootAdmin.Name,
			Role:   models.RoleRootAdmin,
		}, nil
	}

	// 2. Sub-admins
	for _, entry := range t.SubAdmins {
		if entry.UserID != userID || CheckPassword(password, entry.PasswordHash) != nil {
			continue
		}
		if cityContext != "" {
			return nil, ErrCityContextNotAllowed
		}
		return &models.AdminRecord{
			UserID:      entry.UserID,
			Name:        entry.Name,
			Role:        models.RoleSubAdmin,
			Permissions: entry.Permissions,
			ClusterID:   entry.ClusterID,
			ClusterName: entry.ClusterName,
			Departments: entry.Departments,
		}, nil
	}

	// 3. Department admins
	for _, entry := range t.DepartmentAdmins {
		if entry.UserID != userID || CheckPassword(password, entry.PasswordHash) != nil {
			continue
		}
		if cityContext != "" && !entry.MultiCity {
			return nil, ErrCityContextNotAllowed
		}
		return &models.AdminRecord{
			UserID:         entry.UserID,
			Name:           entry.Name,
			Role:           models.RoleDepartmentAdmin,
			DepartmentID:   entry.DepartmentID,
			DepartmentName: entry.DepartmentName,
			MultiCity:      entry.MultiCity,
			CityContext:    cityContext,
		}, nil
	}

	return nil, ErrInvalidCredentials
}
