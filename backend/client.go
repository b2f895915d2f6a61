// Package backend is the typed HTTP client for the upstream civic-complaint
// REST API. All business logic (state transitions, SLA computation,
// duplicate detection, assignment) lives upstream; this client only shapes
// requests, attaches credentials and maps the error taxonomy:
//
//   - 401 → ErrUnauthorized (callers clear the session)
//   - 409 on complaint creation → *DuplicateComplaintError (auto-upvote branch)
//   - other non-2xx → *APIError with the upstream message
//
// There are no retries and no backoff; a failed call surfaces immediately and
// callers fall back to empty state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civicsaathi/authz"
	"civicsaathi/models"
)

// DefaultBaseURL is used when no backend URL is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// ErrUnauthorized is returned on HTTP 401; the caller's session is no longer
// valid upstream.
var ErrUnauthorized = errors.New("backend rejected credentials")

// APIError is any other non-2xx upstream response. Message is the extracted
// human-readable text; the raw body is kept so status-specific branches can
// decode their structured payloads from it.
type APIError struct {
	StatusCode int
	Message    string
	body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// DuplicateComplaintError is the 409 branch of complaint creation: the
// backend matched an existing complaint and upvoted it instead of creating
// a new record.
type DuplicateComplaintError struct {
	Message  string
	Existing *models.Complaint
}

func (e *DuplicateComplaintError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "duplicate complaint detected"
}

// AdminIdentity carries the locally issued admin token plus the principal,
// sent upstream as X-Admin-Token / X-Admin-User headers.
type AdminIdentity struct {
	Token string
	Admin *authz.Principal
}

// Client talks to the upstream civic backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a backend client. An empty baseURL falls back to DefaultBaseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Auth ---

// LoginRequest is the citizen/worker login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the upstream login response.
type LoginResult struct {
	Token string                `json:"token"`
	User  models.CitizenSession `json:"user"`
}

// Login authenticates a citizen or worker upstream.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login/", noAuth, LoginRequest{
		Username: username,
		Password: password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Me validates a backend session token and returns the account behind it.
func (c *Client) Me(ctx context.Context, token string) (*models.CitizenSession, error) {
	var user models.CitizenSession
	if err := c.do(ctx, http.MethodGet, "/auth/me/", citizenAuth(token), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// --- Complaints ---

// CreateComplaintRequest is the citizen complaint submission payload.
type CreateComplaintRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Department  string   `json:"department,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Address     string   `json:"address,omitempty"`
}

// duplicateResponse is the upstream 409 body on duplicate detection.
type duplicateResponse struct {
	Message  string            `json:"message"`
	Error    string            `json:"error"`
	Existing *models.Complaint `json:"existing_complaint"`
}

// CreateComplaint submits a new complaint. A 409 is returned as
// *DuplicateComplaintError carrying the matched complaint.
func (c *Client) CreateComplaint(ctx context.Context, token string, req *CreateComplaintRequest) (*models.Complaint, error) {
	var created models.Complaint
	err := c.do(ctx, http.MethodPost, "/complaints/create/", citizenAuth(token), req, &created)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return nil, duplicateError(apiErr)
		}
		return nil, err
	}
	return &created, nil
}

// duplicateError decodes the raw conflict payload into the duplicate branch.
func duplicateError(apiErr *APIError) error {
	dup := &DuplicateComplaintError{Message: apiErr.Message}
	var body duplicateResponse
	if json.Unmarshal(apiErr.body, &body) == nil {
		if body.Message != "" {
			dup.Message = body.Message
		} else if body.Error != "" {
			dup.Message = body.Error
		}
		dup.Existing = body.Existing
	}
	return dup
}

// AllComplaints fetches the unfiltered complaint list. Scope filtering is
// the gateway's job (authz), not the upstream's.
func (c *Client) AllComplaints(ctx context.Context, admin *AdminIdentity, query url.Values) ([]models.Complaint, error) {
	path := "/complaints/all/"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var complaints []models.Complaint
	if err := c.do(ctx, http.MethodGet, path, adminAuth(admin), nil, &complaints); err != nil {
		return nil, err
	}
	return complaints, nil
}

// MyComplaints fetches the complaints created by the calling citizen.
func (c *Client) MyComplaints(ctx context.Context, token string) ([]models.Complaint, error) {
	var complaints []models.Complaint
	if err := c.do(ctx, http.MethodGet, "/complaints/all/?mine=true", citizenAuth(token), nil, &complaints); err != nil {
		return nil, err
	}
	return complaints, nil
}

// Complaint fetches one complaint by id.
func (c *Client) Complaint(ctx context.Context, auth AuthOption, id string) (*models.Complaint, error) {
	var complaint models.Complaint
	if err := c.do(ctx, http.MethodGet, "/complaints/"+url.PathEscape(id)+"/", auth, nil, &complaint); err != nil {
		return nil, err
	}
	return &complaint, nil
}

// UpvoteComplaint adds the citizen's upvote to an existing complaint.
func (c *Client) UpvoteComplaint(ctx context.Context, token, id string) (*models.Complaint, error) {
	var complaint models.Complaint
	if err := c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/upvote/", citizenAuth(token), nil, &complaint); err != nil {
		return nil, err
	}
	return &complaint, nil
}

// AssignComplaint assigns a worker to a complaint.
func (c *Client) AssignComplaint(ctx context.Context, admin *AdminIdentity, id, workerID string) error {
	body := map[string]string{"worker_id": workerID}
	return c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/assign/", adminAuth(admin), body, nil)
}

// ReassignComplaint moves a complaint to a different worker.
func (c *Client) ReassignComplaint(ctx context.Context, admin *AdminIdentity, id, workerID string) error {
	body := map[string]string{"worker_id": workerID}
	return c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/reassign/", adminAuth(admin), body, nil)
}

// UpdateComplaintStatus transitions a complaint's status upstream.
func (c *Client) UpdateComplaintStatus(ctx context.Context, admin *AdminIdentity, id string, status models.ComplaintStatus, note string) error {
	body := map[string]string{"status": string(status), "note": note}
	return c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/update-status/", adminAuth(admin), body, nil)
}

// RejectComplaint declines a complaint with a reason.
func (c *Client) RejectComplaint(ctx context.Context, admin *AdminIdentity, id, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/reject/", adminAuth(admin), body, nil)
}

// AssignOffice routes a complaint to a department field office.
func (c *Client) AssignOffice(ctx context.Context, admin *AdminIdentity, id, officeID string) error {
	body := map[string]string{"office_id": officeID}
	return c.do(ctx, http.MethodPost, "/complaints/"+url.PathEscape(id)+"/assign-office/", adminAuth(admin), body, nil)
}

// --- Directory ---

// Workers lists field workers.
func (c *Client) Workers(ctx context.Context, admin *AdminIdentity) ([]models.Worker, error) {
	var workers []models.Worker
	if err := c.do(ctx, http.MethodGet, "/workers/", adminAuth(admin), nil, &workers); err != nil {
		return nil, err
	}
	return workers, nil
}

// WorkerStatistics fetches one worker's resolution record.
func (c *Client) WorkerStatistics(ctx context.Context, admin *AdminIdentity, workerID string) (*models.WorkerStatistics, error) {
	var stats models.WorkerStatistics
	if err := c.do(ctx, http.MethodGet, "/workers/"+url.PathEscape(workerID)+"/statistics/", adminAuth(admin), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Departments lists departments.
func (c *Client) Departments(ctx context.Context, auth AuthOption) ([]models.Department, error) {
	var departments []models.Department
	if err := c.do(ctx, http.MethodGet, "/departments/", auth, nil, &departments); err != nil {
		return nil, err
	}
	return departments, nil
}

// Offices lists department field offices.
func (c *Client) Offices(ctx context.Context, admin *AdminIdentity) ([]models.Office, error) {
	var offices []models.Office
	if err := c.do(ctx, http.MethodGet, "/offices/", adminAuth(admin), nil, &offices); err != nil {
		return nil, err
	}
	return offices, nil
}

// --- Attendance ---

// RegisterAttendance records one worker attendance entry.
func (c *Client) RegisterAttendance(ctx context.Context, admin *AdminIdentity, record *models.AttendanceRecord) error {
	return c.do(ctx, http.MethodPost, "/attendance/register/", adminAuth(admin), record, nil)
}

// BulkMarkAttendance records attendance for many workers at once.
func (c *Client) BulkMarkAttendance(ctx context.Context, admin *AdminIdentity, records []models.AttendanceRecord) error {
	body := map[string]interface{}{"records": records}
	return c.do(ctx, http.MethodPost, "/attendance/bulk-mark/", adminAuth(admin), body, nil)
}

// --- SLA ---

// SLAConfigs lists department SLA configurations.
func (c *Client) SLAConfigs(ctx context.Context, admin *AdminIdentity) ([]models.SLAConfig, error) {
	var configs []models.SLAConfig
	if err := c.do(ctx, http.MethodGet, "/sla/configs/", adminAuth(admin), nil, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// SLAReport fetches the aggregate SLA compliance report.
func (c *Client) SLAReport(ctx context.Context, admin *AdminIdentity) ([]models.SLAReportRow, error) {
	var rows []models.SLAReportRow
	if err := c.do(ctx, http.MethodGet, "/sla/report/", adminAuth(admin), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// TriggerEscalation asks the backend to run its escalation sweep now.
func (c *Client) TriggerEscalation(ctx context.Context, admin *AdminIdentity) error {
	return c.do(ctx, http.MethodPost, "/sla/trigger-escalation/", adminAuth(admin), nil, nil)
}

// --- Plumbing ---

// AuthOption attaches credentials to an upstream request.
type AuthOption func(*http.Request) error

// noAuth sends no credentials (login only).
func noAuth(*http.Request) error {
	return nil
}

// CitizenAuth attaches the backend session token the way the web clients do:
// a custom "Token <value>" Authorization header.
func citizenAuth(token string) AuthOption {
	return func(req *http.Request) error {
		if token == "" {
			return errors.New("missing backend session token")
		}
		req.Header.Set("Authorization", "Token "+token)
		return nil
	}
}

// CitizenAuth is the exported form for handlers that pass auth through.
func CitizenAuth(token string) AuthOption {
	return citizenAuth(token)
}

// adminAuth attaches the locally issued admin token and the serialized
// principal as X-Admin-* headers.
func adminAuth(admin *AdminIdentity) AuthOption {
	return func(req *http.Request) error {
		if admin == nil || admin.Token == "" {
			return errors.New("missing admin identity")
		}
		req.Header.Set("X-Admin-Token", admin.Token)
		if admin.Admin != nil {
			serialized, err := json.Marshal(admin.Admin)
			if err != nil {
				return fmt.Errorf("failed to serialize admin principal: %w", err)
			}
			req.Header.Set("X-Admin-User", string(serialized))
		}
		return nil
	}
}

// AdminAuth is the exported form for handlers that pass auth through.
func AdminAuth(admin *AdminIdentity) AuthOption {
	return adminAuth(admin)
}

// do executes one upstream call and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, auth AuthOption, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := auth(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Status, raw),
			body:       raw,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// errorMessage extracts the upstream error text from a raw error body. The
// backend is inconsistent ({"error": ...}, {"detail": ...}, {"message": ...},
// or plain text), so fall through to the raw body when nothing structured is
// found, and to the HTTP status when the body is empty.
func errorMessage(status string, raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return status
	}

	var structured struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &structured) == nil {
		switch {
		case structured.Error != "":
			return structured.Error
		case structured.Detail != "":
			return structured.Detail
		case structured.Message != "":
			return structured.Message
		}
	}
	return trimmed
}
