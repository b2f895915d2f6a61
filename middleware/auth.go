package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"civicsaathi/auth"
	"civicsaathi/authz"
	"civicsaathi/models"
	"civicsaathi/session"
)

type contextKey string

const (
	// CitizenContextKey holds the validated citizen claims.
	CitizenContextKey contextKey = "citizen"
	// AdminContextKey holds the resolved admin principal.
	AdminContextKey contextKey = "admin"
	// AdminTokenContextKey holds the raw admin session token.
	AdminTokenContextKey contextKey = "admin_token"
)

// CitizenAuth validates the gateway JWT and injects the citizen claims into
// the request context. Admin and worker accounts are rejected here; the
// citizen surface is citizen-only.
func CitizenAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			token, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.ValidateToken(token)
			if err != nil {
				writeError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if claims.UserType != models.UserTypeCitizen {
				writeError(w, "This portal is for citizens only", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CitizenContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCitizenFromContext retrieves the citizen claims from the request context.
func GetCitizenFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(CitizenContextKey).(*auth.Claims)
	return claims, ok
}

// AdminAuth resolves the X-Admin-Token header to a server-side session and
// injects the admin principal into the request context. Expired sessions are
// deleted on sight so a stale token can never be replayed.
func AdminAuth(store session.Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				writeError(w, "Admin authentication required", http.StatusUnauthorized)
				return
			}

			if !auth.IsAdminTokenFormat(token) {
				writeError(w, "Invalid admin token", http.StatusUnauthorized)
				return
			}

			s, err := store.Get(r.Context(), token)
			if err != nil {
				writeError(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			now := time.Now()
			if s.Expired(ttl, now) {
				if err := store.Delete(r.Context(), token); err != nil {
					log.Printf("Warning: failed to delete expired session: %v", err)
				}
				writeError(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			// Best effort; a failed touch must not fail the request.
			if err := store.Touch(r.Context(), token, now); err != nil {
				log.Printf("Warning: failed to touch session: %v", err)
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, &s.Admin)
			ctx = context.WithValue(ctx, AdminTokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminFromContext retrieves the admin principal from the request context.
func GetAdminFromContext(ctx context.Context) (*authz.Principal, bool) {
	admin, ok := ctx.Value(AdminContextKey).(*authz.Principal)
	return admin, ok
}

// GetAdminTokenFromContext retrieves the raw admin session token.
func GetAdminTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(AdminTokenContextKey).(string)
	return token, ok
}

// RequireAdminRole checks that the resolved admin holds one of the allowed
// roles. Must run after AdminAuth.
func RequireAdminRole(allowedRoles ...models.AdminRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := GetAdminFromContext(r.Context())
			if !ok {
				writeError(w, "Admin not found in context", http.StatusUnauthorized)
				return
			}

			hasRole := false
			for _, role := range allowedRoles {
				if admin.Role == role {
					hasRole = true
					break
				}
			}

			if !hasRole {
				writeError(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission checks a granular permission on the resolved admin.
// Must run after AdminAuth.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := GetAdminFromContext(r.Context())
			if !ok {
				writeError(w, "Admin not found in context", http.StatusUnauthorized)
				return
			}

			if !admin.HasPermission(permission) {
				writeError(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
