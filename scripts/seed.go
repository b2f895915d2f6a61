// Generates the admin credential table (admin_credentials.json) with bcrypt
// password hashes. Run once per deployment, then change the passwords.
//
//	go run scripts/seed.go
package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"

	"civicsaathi/auth"
	"civicsaathi/models"
)

type rootAdminSeed struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

type subAdminSeed struct {
	UserID       string                     `json:"user_id"`
	Name         string                     `json:"name"`
	PasswordHash string                     `json:"password_hash"`
	ClusterID    string                     `json:"cluster_id"`
	ClusterName  string                     `json:"cluster_name"`
	Departments  []models.ClusterDepartment `json:"departments"`
	Permissions  []string                   `json:"permissions"`
}

type deptAdminSeed struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	PasswordHash   string `json:"password_hash"`
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name"`
	MultiCity      bool   `json:"multi_city"`
}

type credentialTableSeed struct {
	RootAdmin        rootAdminSeed   `json:"root_admin"`
	SubAdmins        []subAdminSeed  `json:"sub_admins"`
	DepartmentAdmins []deptAdminSeed `json:"department_admins"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	outPath := os.Getenv("ADMIN_CREDENTIALS_PATH")
	if outPath == "" {
		outPath = "./admin_credentials.json"
	}

	log.Println("🌱 Generating admin credential table...")

	table := credentialTableSeed{
		RootAdmin: rootAdminSeed{
			UserID:       "root",
			Name:         "Root Administrator",
			PasswordHash: mustHash("changeme-root-1"),
		},
		SubAdmins: []subAdminSeed{
			{
				UserID:       "sub-infra",
				Name:         "Infrastructure Cluster Admin",
				PasswordHash: mustHash("changeme-sub-1"),
				ClusterID:    "infra",
				ClusterName:  "Infrastructure",
				Departments: []models.ClusterDepartment{
					{ID: "1", Name: "Roads"},
					{ID: "2", Name: "Water Supply"},
					{ID: "3", Name: "Sewage"},
				},
				Permissions: []string{
					"complaints.view",
					"complaints.assign",
					"complaints.update_status",
					"workers.view",
				},
			},
			{
				UserID:       "sub-utilities",
				Name:         "Utilities Cluster Admin",
				PasswordHash: mustHash("changeme-sub-1"),
				ClusterID:    "utilities",
				ClusterName:  "Utilities",
				Departments: []models.ClusterDepartment{
					{ID: "4", Name: "Electricity"},
					{ID: "5", Name: "Street Lighting"},
				},
				Permissions: []string{
					"complaints.view",
					"complaints.assign",
				},
			},
		},
		DepartmentAdmins: []deptAdminSeed{
			{
				UserID:         "dept-roads",
				Name:           "Roads Department Admin",
				PasswordHash:   mustHash("changeme-dept-1"),
				DepartmentID:   "1",
				DepartmentName: "Roads",
				MultiCity:      true,
			},
			{
				UserID:         "dept-water",
				Name:           "Water Supply Department Admin",
				PasswordHash:   mustHash("changeme-dept-1"),
				DepartmentID:   "2",
				DepartmentName: "Water Supply",
				MultiCity:      false,
			},
		},
	}

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode credential table: %v", err)
	}

	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		log.Fatalf("Failed to write %s: %v", outPath, err)
	}

	log.Printf("  ✓ 1 root admin")
	log.Printf("  ✓ %d sub-admins", len(table.SubAdmins))
	log.Printf("  ✓ %d department admins", len(table.DepartmentAdmins))
	log.Printf("✅ Credential table written to %s", outPath)
	log.Println("⚠️  Default passwords are placeholders, change them before deploying")
}

func mustHash(password string) string {
	if err := auth.ValidatePasswordStrength(password); err != nil {
		log.Fatalf("Seed password %q rejected: %v", password, err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	return hash
}
