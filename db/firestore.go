package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"civicsaathi/authz"
	"civicsaathi/session"
)

// Firestore collection names.
const (
	sessionsCollection = "admin_sessions"
	auditCollection    = "audit_logs"
)

// FirestoreDB wraps the Firestore client. It backs the admin session store
// and the audit log in multi-instance deployments.
type FirestoreDB struct {
	client *firestore.Client
}

// sessionDoc is the Firestore representation of an admin session. The
// principal is serialized as JSON so this adapter is the only place that
// knows how sessions are persisted.
type sessionDoc struct {
	Token     string    `firestore:"token"`
	AdminJSON string    `firestore:"admin_json"`
	IssuedAt  time.Time `firestore:"issued_at"`
	LastSeen  time.Time `firestore:"last_seen"`
}

// auditDoc is one audit log record.
type auditDoc struct {
	LogID     string    `firestore:"log_id"`
	Timestamp time.Time `firestore:"timestamp"`
	ActorID   string    `firestore:"actor_id"`
	Action    string    `firestore:"action"`
	Details   string    `firestore:"details"`
}

// AuditEntry is an audit log record as returned to callers.
type AuditEntry struct {
	LogID     string    `json:"log_id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

// NewFirestoreDB initializes a new Firestore client
func NewFirestoreDB(ctx context.Context, projectID, credentialsPath string) (*FirestoreDB, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	log.Printf("✅ Connected to Firestore project: %s", projectID)

	return &FirestoreDB{client: client}, nil
}

// Close closes the Firestore client
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

// --- Session Store ---

// Save creates or replaces an admin session document.
func (db *FirestoreDB) Save(ctx context.Context, s *session.Session) error {
	adminJSON, err := json.Marshal(s.Admin)
	if err != nil {
		return fmt.Errorf("failed to serialize session principal: %w", err)
	}

	doc := sessionDoc{
		Token:     s.Token,
		AdminJSON: string(adminJSON),
		IssuedAt:  s.IssuedAt,
		LastSeen:  s.LastSeen,
	}
	if _, err := db.client.Collection(sessionsCollection).Doc(s.Token).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves the session for a token. Unparsable records are cleared
// silently and reported as not found, matching the boot-check behavior of
// the admin console.
func (db *FirestoreDB) Get(ctx context.Context, token string) (*session.Session, error) {
	snap, err := db.client.Collection(sessionsCollection).Doc(token).Get(ctx)
	if err != nil {
		return nil, session.ErrNotFound
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		log.Printf("Warning: clearing unparsable session %s: %v", token, err)
		_, _ = db.client.Collection(sessionsCollection).Doc(token).Delete(ctx)
		return nil, session.ErrNotFound
	}

	var admin authz.Principal
	if err := json.Unmarshal([]byte(doc.AdminJSON), &admin); err != nil {
		log.Printf("Warning: clearing session %s with corrupt principal: %v", token, err)
		_, _ = db.client.Collection(sessionsCollection).Doc(token).Delete(ctx)
		return nil, session.ErrNotFound
	}

	return &session.Session{
		Token:    doc.Token,
		Admin:    admin,
		IssuedAt: doc.IssuedAt,
		LastSeen: doc.LastSeen,
	}, nil
}

// Touch updates the session's last-seen timestamp.
func (db *FirestoreDB) Touch(ctx context.Context, token string, at time.Time) error {
	_, err := db.client.Collection(sessionsCollection).Doc(token).Update(ctx, []firestore.Update{
		{Path: "last_seen", Value: at},
	})
	if err != nil {
		return session.ErrNotFound
	}
	return nil
}

// Delete removes a session (logout).
func (db *FirestoreDB) Delete(ctx context.Context, token string) error {
	if _, err := db.client.Collection(sessionsCollection).Doc(token).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

var _ session.Store = (*FirestoreDB)(nil)

// --- Audit Log ---

// LogAudit records an admin action in the audit log.
func (db *FirestoreDB) LogAudit(ctx context.Context, actorID, action, details string) error {
	doc := auditDoc{
		LogID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
	}
	if _, err := db.client.Collection(auditCollection).Doc(doc.LogID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// GetAuditLogsSince retrieves audit records created after a timestamp.
func (db *FirestoreDB) GetAuditLogsSince(ctx context.Context, since time.Time) ([]AuditEntry, error) {
	iter := db.client.Collection(auditCollection).
		Where("timestamp", ">", since).
		Documents(ctx)
	defer iter.Stop()

	var entries []AuditEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
		}

		var doc auditDoc
		if err := snap.DataTo(&doc); err != nil {
			log.Printf("Warning: failed to parse audit log %s: %v", snap.Ref.ID, err)
			continue
		}
		entries = append(entries, AuditEntry(doc))
	}

	return entries, nil
}
