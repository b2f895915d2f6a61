// main.go
// Civic Saathi Gateway - fronts the civic-complaint backend for the citizen
// portal and the admin console: session handling, scope enforcement, SLA
// derivation, and upstream proxying.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicsaathi/auth"
	"civicsaathi/backend"
	"civicsaathi/config"
	"civicsaathi/db"
	"civicsaathi/geocode"
	"civicsaathi/handlers"
	"civicsaathi/middleware"
	"civicsaathi/models"
	"civicsaathi/session"
)

// Global instances
var (
	cfg               *config.Config
	firestoreDB       *db.FirestoreDB
	sessionStore      session.Store
	jwtManager        *auth.JWTManager
	backendClient     *backend.Client
	geocoder          *geocode.Client
	citizenHandler    *handlers.CitizenHandler
	adminHandler      *handlers.AdminHandler
	slaHandler        *handlers.SLAHandler
	attendanceHandler *handlers.AttendanceHandler
	rateLimiter       *middleware.RateLimiter
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	// Load configuration
	cfg = config.Load()
	cfg.Validate()

	log.Printf("🚀 Starting Civic Saathi Gateway")
	log.Printf("📍 Environment: %s", cfg.Server.Environment)
	log.Printf("🔧 Port: %s", cfg.Server.Port)
	log.Printf("📡 Backend: %s", cfg.Backend.BaseURL)

	// Initialize the admin session store: Firestore when configured,
	// in-memory otherwise.
	ctx := context.Background()
	var audit handlers.AuditLogger
	if cfg.Firestore.Disabled {
		sessionStore = session.NewMemoryStore()
		log.Printf("⚠️  Firestore disabled, admin sessions are in-memory only")
	} else {
		var err error
		firestoreDB, err = db.NewFirestoreDB(ctx, cfg.Firestore.ProjectID, cfg.Firestore.CredentialsPath)
		if err != nil {
			log.Fatalf("❌ Failed to initialize Firestore: %v", err)
		}
		defer firestoreDB.Close()
		sessionStore = firestoreDB
		audit = firestoreDB
	}

	// Load the admin credential table
	creds, err := auth.LoadCredentialTable(cfg.Admin.CredentialsPath)
	if err != nil {
		log.Fatalf("❌ Failed to load admin credentials: %v", err)
	}

	// Initialize JWT Manager for citizen sessions
	jwtManager = auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration)
	log.Printf("🔐 JWT Manager initialized (expiration: %v)", cfg.JWT.Expiration)

	// Initialize upstream clients
	backendClient = backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	geocoder = geocode.New(cfg.Geocode.BaseURL, cfg.Geocode.Timeout)

	// Initialize handlers
	citizenHandler = handlers.NewCitizenHandler(backendClient, jwtManager, geocoder)
	adminHandler = handlers.NewAdminHandler(backendClient, creds, sessionStore, audit)
	slaHandler = handlers.NewSLAHandler(backendClient, audit)
	attendanceHandler = handlers.NewAttendanceHandler(backendClient, audit)
	log.Printf("✅ Handlers initialized")

	// Initialize rate limiter
	rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters()
	log.Printf("🛡️  Rate limiter initialized (%d requests per %v)", cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// Set up router
	mux := http.NewServeMux()

	// Public routes (no authentication required)
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/login", citizenHandler.Login)
	mux.HandleFunc("/api/admin/login", adminHandler.Login)

	// Citizen routes (gateway JWT, citizen accounts only)
	citizenAuth := middleware.CitizenAuth(jwtManager)
	mux.Handle("/api/me", citizenAuth(http.HandlerFunc(citizenHandler.Me)))
	mux.Handle("/api/complaints/create", citizenAuth(http.HandlerFunc(citizenHandler.CreateComplaint)))
	mux.Handle("/api/complaints/mine", citizenAuth(http.HandlerFunc(citizenHandler.MyComplaints)))
	mux.Handle("/api/complaints/{id}", citizenAuth(http.HandlerFunc(citizenHandler.GetComplaint)))
	mux.Handle("/api/complaints/{id}/upvote", citizenAuth(http.HandlerFunc(citizenHandler.Upvote)))
	mux.Handle("/api/geocode/reverse", citizenAuth(http.HandlerFunc(citizenHandler.ReverseGeocode)))

	// Admin routes (opaque session token resolved server-side)
	adminAuth := middleware.AdminAuth(sessionStore, cfg.Admin.SessionTTL)
	mux.Handle("/api/admin/logout", adminAuth(http.HandlerFunc(adminHandler.Logout)))
	mux.Handle("/api/admin/me", adminAuth(http.HandlerFunc(adminHandler.Me)))
	mux.Handle("/api/admin/dashboard", adminAuth(http.HandlerFunc(adminHandler.DashboardStats)))
	mux.Handle("/api/admin/complaints", adminAuth(http.HandlerFunc(adminHandler.Complaints)))
	mux.Handle("/api/admin/complaints/export", adminAuth(http.HandlerFunc(adminHandler.ExportComplaints)))
	mux.Handle("/api/admin/complaints/{id}", adminAuth(http.HandlerFunc(adminHandler.GetComplaint)))
	mux.Handle("/api/admin/complaints/{id}/assign", adminAuth(http.HandlerFunc(adminHandler.AssignComplaint)))
	mux.Handle("/api/admin/complaints/{id}/reassign", adminAuth(http.HandlerFunc(adminHandler.ReassignComplaint)))
	mux.Handle("/api/admin/complaints/{id}/update-status", adminAuth(http.HandlerFunc(adminHandler.UpdateComplaintStatus)))
	mux.Handle("/api/admin/complaints/{id}/reject", adminAuth(http.HandlerFunc(adminHandler.RejectComplaint)))
	mux.Handle("/api/admin/complaints/{id}/assign-office", adminAuth(http.HandlerFunc(adminHandler.AssignOffice)))
	mux.Handle("/api/admin/departments", adminAuth(http.HandlerFunc(adminHandler.Departments)))
	mux.Handle("/api/admin/offices", adminAuth(http.HandlerFunc(adminHandler.Offices)))
	mux.Handle("/api/admin/workers", adminAuth(http.HandlerFunc(adminHandler.Workers)))
	mux.Handle("/api/admin/workers/{id}/statistics", adminAuth(http.HandlerFunc(adminHandler.WorkerStatistics)))

	// Attendance (department-level permission)
	attendanceMark := middleware.RequirePermission("attendance.mark")
	mux.Handle("/api/admin/attendance/register", adminAuth(attendanceMark(http.HandlerFunc(attendanceHandler.Register))))
	mux.Handle("/api/admin/attendance/bulk-mark", adminAuth(attendanceMark(http.HandlerFunc(attendanceHandler.BulkMark))))

	// SLA administration and audit trail (root admin only)
	rootOnly := middleware.RequireAdminRole(models.RoleRootAdmin)
	mux.Handle("/api/admin/audit-logs", adminAuth(rootOnly(http.HandlerFunc(adminHandler.AuditLogs))))
	mux.Handle("/api/admin/sla/configs", adminAuth(rootOnly(http.HandlerFunc(slaHandler.Configs))))
	mux.Handle("/api/admin/sla/report", adminAuth(rootOnly(http.HandlerFunc(slaHandler.Report))))
	mux.Handle("/api/admin/sla/trigger-escalation", adminAuth(rootOnly(http.HandlerFunc(slaHandler.TriggerEscalation))))

	// Apply global middleware
	handler := middleware.CORSMiddleware(cfg.CORS.AllowedOrigins)(mux)
	handler = rateLimiter.Middleware()(handler)
	handler = middleware.MetricsMiddleware()(handler)
	handler = loggingMiddleware(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("✅ Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}

// Health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%d,"version":"1.0.0"}`, time.Now().Unix())
}
