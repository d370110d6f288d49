package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/usage"
	"github.com/alecgard/gabelle/internal/user"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeUsers struct {
	byID      map[string]*user.User
	byEmail   map[string]*user.User
	byKeyHash map[string]*user.User

	created     []user.CreateUserInput
	providerKey string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:      map[string]*user.User{},
		byEmail:   map[string]*user.User{},
		byKeyHash: map[string]*user.User{},
	}
}

func (f *fakeUsers) add(u *user.User) {
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	if u.APIKeyHash != "" {
		f.byKeyHash[u.APIKeyHash] = u
	}
}

func (f *fakeUsers) Create(_ context.Context, in user.CreateUserInput) (*user.User, error) {
	if _, exists := f.byEmail[in.Email]; exists {
		return nil, errors.New("duplicate email")
	}
	f.created = append(f.created, in)
	u := &user.User{
		ID:           fmt.Sprintf("user-%d", len(f.created)),
		Email:        in.Email,
		Name:         in.Name,
		APIKeyHash:   in.APIKeyHash,
		APIKeyPrefix: in.APIKeyPrefix,
		CreatedAt:    time.Now().UTC(),
	}
	f.add(u)
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUsers) GetByAPIKeyHash(_ context.Context, hash string) (*user.User, error) {
	u, ok := f.byKeyHash[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (f *fakeUsers) RotateAPIKey(_ context.Context, id, hash, prefix string) error {
	u, ok := f.byID[id]
	if !ok {
		return errors.New("not found")
	}
	delete(f.byKeyHash, u.APIKeyHash)
	u.APIKeyHash = hash
	u.APIKeyPrefix = prefix
	f.byKeyHash[hash] = u
	return nil
}

func (f *fakeUsers) SetProviderKey(_ context.Context, _, plaintext string) error {
	f.providerKey = plaintext
	return nil
}

type fakeUsageReader struct {
	records []usage.Record
	lastQ   usage.Query
	err     error
}

func (f *fakeUsageReader) List(_ context.Context, userID string, q usage.Query) ([]usage.Record, error) {
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	out := make([]usage.Record, 0)
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeUsageReader) ListAscending(_ context.Context, userID string, _, _ time.Time) ([]usage.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]usage.Record, 0)
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	inputs []usage.RecordInput
}

func (f *fakeRecorder) Record(in usage.RecordInput) {
	f.inputs = append(f.inputs, in)
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func testUser(t *testing.T, id, email, password string) *user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return &user.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Test User",
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestRouter(users *fakeUsers, reader *fakeUsageReader, recorder *fakeRecorder) http.Handler {
	return NewRouter(RouterDeps{
		Users:      users,
		UsageStore: reader,
		Recorder:   recorder,
		Sessions:   scs.New(),
	})
}

// login performs a login request and returns the session cookies.
func login(t *testing.T, handler http.Handler, email, password string) []*http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

// ---------------------------------------------------------------------------
// Health check
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		ping       func(context.Context) error
		wantStatus int
		wantBody   string
	}{
		{name: "no pinger", ping: nil, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database up", ping: func(context.Context) error { return nil }, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "database down", ping: func(context.Context) error { return errors.New("down") }, wantStatus: http.StatusServiceUnavailable, wantBody: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterDeps{
				Users:    newFakeUsers(),
				Sessions: scs.New(),
				Ping:     tt.ping,
			})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("expected status=%s, got %q", tt.wantBody, body["status"])
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Auth flows
// ---------------------------------------------------------------------------

func TestRegister(t *testing.T) {
	users := newFakeUsers()
	handler := newTestRouter(users, &fakeUsageReader{}, &fakeRecorder{})

	body := `{"email":"alice@example.com","password":"correct horse","name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		User   map[string]interface{} `json:"user"`
		APIKey string                 `json:"apiKey"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.User["email"] != "alice@example.com" {
		t.Errorf("expected email alice@example.com, got %v", resp.User["email"])
	}
	if !strings.HasPrefix(resp.APIKey, "gabelle_") {
		t.Errorf("expected api key with gabelle_ prefix, got %q", resp.APIKey)
	}

	// The stored hash must match the returned plaintext.
	if len(users.created) != 1 {
		t.Fatalf("expected 1 created user, got %d", len(users.created))
	}
	if users.created[0].APIKeyHash != auth.HashKey(resp.APIKey) {
		t.Error("stored api key hash does not match returned plaintext")
	}

	// A session cookie should be set.
	if len(rec.Result().Cookies()) == 0 {
		t.Error("expected a session cookie after register")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing email", body: `{"password":"correct horse"}`},
		{name: "invalid email", body: `{"email":"nope","password":"correct horse"}`},
		{name: "short password", body: `{"email":"a@b.com","password":"short"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestRouter(newFakeUsers(), &fakeUsageReader{}, &fakeRecorder{})
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422, got %d", rec.Code)
			}
			if code := decodeError(t, rec); code != "validation_error" {
				t.Errorf("expected code validation_error, got %q", code)
			}
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	users := newFakeUsers()
	users.add(testUser(t, "u1", "alice@example.com", "correct horse"))
	handler := newTestRouter(users, &fakeUsageReader{}, &fakeRecorder{})

	body := `{"email":"alice@example.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestMe_RequiresSession(t *testing.T) {
	handler := newTestRouter(newFakeUsers(), &fakeUsageReader{}, &fakeRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestLoginThenMe(t *testing.T) {
	users := newFakeUsers()
	users.add(testUser(t, "u1", "alice@example.com", "correct horse"))
	handler := newTestRouter(users, &fakeUsageReader{}, &fakeRecorder{})

	cookies := login(t, handler, "alice@example.com", "correct horse")

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] != "u1" {
		t.Errorf("expected id u1, got %v", resp["id"])
	}
}

// ---------------------------------------------------------------------------
// Analytics endpoints
// ---------------------------------------------------------------------------

func TestGetUsage(t *testing.T) {
	users := newFakeUsers()
	users.add(testUser(t, "u1", "alice@example.com", "correct horse"))
	reader := &fakeUsageReader{records: []usage.Record{
		{ID: "r1", UserID: "u1", Model: "gpt-4o", TotalTokens: 1500, EstimatedCost: 0.0125},
		{ID: "r2", UserID: "someone-else", Model: "gpt-4o", TotalTokens: 99},
	}}
	handler := newTestRouter(users, reader, &fakeRecorder{})

	cookies := login(t, handler, "alice@example.com", "correct horse")

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/usage?limit=50&offset=10", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var records []usage.Record
	if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(records) != 1 || records[0].ID != "r1" {
		t.Fatalf("expected only the session user's record, got %+v", records)
	}
	if reader.lastQ.Limit != 50 || reader.lastQ.Offset != 10 {
		t.Errorf("expected limit=50 offset=10, got %+v", reader.lastQ)
	}
}

func TestGetUsage_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "non-numeric limit", query: "limit=abc"},
		{name: "negative limit", query: "limit=-1"},
		{name: "non-numeric offset", query: "offset=x"},
		{name: "malformed start date", query: "startDate=not-a-date"},
	}

	users := newFakeUsers()
	users.add(testUser(t, "u1", "alice@example.com", "correct horse"))
	handler := newTestRouter(users, &fakeUsageReader{}, &fakeRecorder{})
	cookies := login(t, handler, "alice@example.com", "correct horse")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/analytics/usage?"+tt.query, nil)
			for _, c := range cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if code := decodeError(t, rec); code != "invalid_params" {
				t.Errorf("expected code invalid_params, got %q", code)
			}
		})
	}
}

func TestGetSummary(t *testing.T) {
	day := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	users := newFakeUsers()
	users.add(testUser(t, "u1", "alice@example.com", "correct horse"))
	reader := &fakeUsageReader{records: []usage.Record{
		{ID: "r1", UserID: "u1", Model: "gpt-4o", TotalTokens: 1500, EstimatedCost: 0.0125, CreatedAt: day},
		{ID: "r2", UserID: "u1", Model: "gpt-4o", TotalTokens: 500, EstimatedCost: 0.005, CreatedAt: day},
	}}
	handler := newTestRouter(users, reader, &fakeRecorder{})
	cookies := login(t, handler, "alice@example.com", "correct horse")

	// An unknown groupBy value falls back to day grouping.
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/summary?groupBy=bogus", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary usage.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary.TotalRequests != 2 {
		t.Errorf("expected 2 total requests, got %d", summary.TotalRequests)
	}
	if summary.TotalTokens != 2000 {
		t.Errorf("expected 2000 total tokens, got %d", summary.TotalTokens)
	}
	if len(summary.PeriodSummaries) != 1 || summary.PeriodSummaries[0].Period != "2024-01-03" {
		t.Fatalf("expected one day period 2024-01-03, got %+v", summary.PeriodSummaries)
	}
}

// ---------------------------------------------------------------------------
// Usage ingest
// ---------------------------------------------------------------------------

func ingestSetup(t *testing.T) (http.Handler, *fakeRecorder, string) {
	t.Helper()
	users := newFakeUsers()
	key, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("failed to generate api key: %v", err)
	}
	u := testUser(t, "u1", "alice@example.com", "correct horse")
	u.APIKeyHash = key.Hash
	u.APIKeyPrefix = key.Prefix
	users.add(u)

	recorder := &fakeRecorder{}
	return newTestRouter(users, &fakeUsageReader{}, recorder), recorder, plaintext
}

func TestIngest(t *testing.T) {
	handler, recorder, apiKey := ingestSetup(t)

	// The user id in the body must be ignored; identity comes from the key.
	body := `{"userId":"spoofed","model":"gpt-4o","promptTokens":1000,"completionTokens":500,"requestType":"chat.completion"}`
	req := httptest.NewRequest(http.MethodPost, "/api/usage", strings.NewReader(body))
	req.Header.Set("X-API-Key", apiKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(recorder.inputs) != 1 {
		t.Fatalf("expected 1 recorded input, got %d", len(recorder.inputs))
	}
	in := recorder.inputs[0]
	if in.UserID != "u1" {
		t.Errorf("expected user id from api key owner, got %q", in.UserID)
	}
	if in.PromptTokens != 1000 || in.CompletionTokens != 500 {
		t.Errorf("unexpected token counts: %+v", in)
	}
	if !in.Success {
		t.Error("expected success to default to true")
	}
}

func TestIngest_Unauthorized(t *testing.T) {
	handler, recorder, _ := ingestSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/usage", strings.NewReader(`{"model":"gpt-4o"}`))
	req.Header.Set("X-API-Key", "gabelle_not_a_real_key_aaaaaaaaaaaaaaaa")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if len(recorder.inputs) != 0 {
		t.Errorf("expected no recorded inputs, got %d", len(recorder.inputs))
	}
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing model", body: `{"promptTokens":10}`},
		{name: "negative prompt tokens", body: `{"model":"gpt-4o","promptTokens":-1}`},
		{name: "negative completion tokens", body: `{"model":"gpt-4o","completionTokens":-5}`},
	}

	handler, recorder, apiKey := ingestSetup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/usage", strings.NewReader(tt.body))
			req.Header.Set("X-API-Key", apiKey)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422, got %d", rec.Code)
			}
		})
	}
	if len(recorder.inputs) != 0 {
		t.Errorf("expected no recorded inputs, got %d", len(recorder.inputs))
	}
}
