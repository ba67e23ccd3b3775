package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cellar/internal/item"
	"cellar/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) (http.Handler, *store.ItemStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
	st, err := store.New(store.Config{
		Path:       filepath.Join(t.TempDir(), "items.db"),
		MinAgeDays: 5,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv, err := New(st, Config{})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return srv.Handler(), st, clock
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (string, *float64) {
	t.Helper()
	var resp struct {
		Error   string   `json:"error"`
		ItemAge *float64 `json:"itemAge"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error, resp.ItemAge
}

func TestListItems_EmptyIsArray(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/items = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Errorf("Empty list should serialize as an array, got %q", rec.Body.String())
	}

	var items []item.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected 0 items, got %d", len(items))
	}
}

func TestCreateItem_Success(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/api/items", `{"name":"X"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/items = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var created item.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode created item: %v", err)
	}
	if created.ID <= 0 {
		t.Errorf("Created id = %d, want > 0", created.ID)
	}
	if created.Name != "X" {
		t.Errorf("Created name = %q, want X", created.Name)
	}
	if _, err := item.ParseTime(created.CreatedAt); err != nil {
		t.Errorf("Created created_at %q does not parse: %v", created.CreatedAt, err)
	}

	// Subsequent GET includes it
	rec = doRequest(t, h, http.MethodGet, "/api/items", "")
	var items []item.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if len(items) != 1 || items[0].ID != created.ID {
		t.Errorf("List after create = %+v, want the created item", items)
	}

	// An immediate delete is blocked by the age gate
	rec = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/items/%d", created.ID), "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("Immediate DELETE = %d, want 403", rec.Code)
	}
}

func TestCreateItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Missing Name", `{}`},
		{"Empty Name", `{"name":""}`},
		{"Whitespace Name", `{"name":"   "}`},
		{"Non-String Name", `{"name":123}`},
		{"Boolean Name", `{"name":true}`},
		{"Null Name", `{"name":null}`},
		{"Malformed Body", `{nope`},
	}

	h, _, _ := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/items", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("POST %s = %d, want 400", tt.body, rec.Code)
			}
			msg, _ := decodeError(t, rec)
			if msg != "Item name is required" {
				t.Errorf("Error = %q, want %q", msg, "Item name is required")
			}
		})
	}

	// None of the rejected bodies created a record
	rec := doRequest(t, h, http.MethodGet, "/api/items", "")
	var items []item.Item
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 0 {
		t.Errorf("Rejected creates should not persist, found %d items", len(items))
	}
}

func TestDeleteItem_TooNew(t *testing.T) {
	h, _, clock := newTestServer(t)

	doRequest(t, h, http.MethodPost, "/api/items", `{"name":"fresh"}`)
	clock.Advance(3 * 24 * time.Hour)

	rec := doRequest(t, h, http.MethodDelete, "/api/items/1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("DELETE too-new = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	msg, age := decodeError(t, rec)
	if msg != "Cannot delete items newer than 5 days" {
		t.Errorf("Error = %q, want %q", msg, "Cannot delete items newer than 5 days")
	}
	if age == nil {
		t.Fatal("403 body should carry itemAge")
	}
	if *age < 2.99 || *age >= 5 {
		t.Errorf("itemAge = %v, want ~3 and < 5", *age)
	}

	// Item unchanged
	rec = doRequest(t, h, http.MethodGet, "/api/items", "")
	var items []item.Item
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 {
		t.Errorf("Blocked delete should leave the item, found %d", len(items))
	}
}

func TestDeleteItem_Boundary(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		wantCode int
	}{
		{"Four Days Twenty-Three Hours", 4*24*time.Hour + 23*time.Hour, http.StatusForbidden},
		{"Exactly Five Days", 5 * 24 * time.Hour, http.StatusOK},
		{"Six Days", 6 * 24 * time.Hour, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, clock := newTestServer(t)
			doRequest(t, h, http.MethodPost, "/api/items", `{"name":"boundary"}`)
			clock.Advance(tt.age)

			rec := doRequest(t, h, http.MethodDelete, "/api/items/1", "")
			if rec.Code != tt.wantCode {
				t.Fatalf("DELETE at %v = %d, want %d: %s", tt.age, rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode == http.StatusForbidden {
				_, age := decodeError(t, rec)
				if age == nil || *age >= 5 {
					t.Errorf("itemAge should be < 5, got %v", age)
				}
			}
		})
	}
}

func TestDeleteItem_Success(t *testing.T) {
	h, _, clock := newTestServer(t)

	doRequest(t, h, http.MethodPost, "/api/items", `{"name":"old enough"}`)
	clock.Advance(6 * 24 * time.Hour)

	rec := doRequest(t, h, http.MethodDelete, "/api/items/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message string `json:"message"`
		ID      int64  `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode delete response: %v", err)
	}
	if resp.Message != "Item deleted successfully" {
		t.Errorf("Message = %q, want %q", resp.Message, "Item deleted successfully")
	}
	if resp.ID != 1 {
		t.Errorf("ID = %d, want 1", resp.ID)
	}

	// Idempotence: the second delete is a not-found, never a success
	rec = doRequest(t, h, http.MethodDelete, "/api/items/1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Second DELETE = %d, want 404", rec.Code)
	}
	msg, _ := decodeError(t, rec)
	if msg != "Item not found" {
		t.Errorf("Error = %q, want %q", msg, "Item not found")
	}
}

func TestDeleteItem_NotFound(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodDelete, "/api/items/999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("DELETE missing = %d, want 404", rec.Code)
	}
	msg, age := decodeError(t, rec)
	if msg != "Item not found" {
		t.Errorf("Error = %q, want %q", msg, "Item not found")
	}
	if age != nil {
		t.Error("Not-found must never carry itemAge")
	}
}

func TestDeleteItem_MissingID(t *testing.T) {
	h, _, _ := newTestServer(t)

	for _, path := range []string{"/api/items", "/api/items/"} {
		rec := doRequest(t, h, http.MethodDelete, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("DELETE %s = %d, want 400", path, rec.Code)
			continue
		}
		msg, _ := decodeError(t, rec)
		if msg != "Item id is required" {
			t.Errorf("DELETE %s error = %q, want %q", path, msg, "Item id is required")
		}
	}
}

func TestDeleteItem_MalformedID(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodDelete, "/api/items/abc", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("DELETE /api/items/abc = %d, want 500", rec.Code)
	}
	msg, _ := decodeError(t, rec)
	if msg != "Failed to delete item" {
		t.Errorf("Error = %q, want %q", msg, "Failed to delete item")
	}
}

func TestScenario_OldAndRecent(t *testing.T) {
	h, _, clock := newTestServer(t)

	doRequest(t, h, http.MethodPost, "/api/items", `{"name":"Old Item"}`)
	clock.Advance(3 * 24 * time.Hour)
	doRequest(t, h, http.MethodPost, "/api/items", `{"name":"Recent Item"}`)
	clock.Advance(3 * 24 * time.Hour)
	// Old Item is now 6 days old, Recent Item 3 days old

	rec := doRequest(t, h, http.MethodDelete, "/api/items/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE Old Item = %d, want 200", rec.Code)
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/items/2", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("DELETE Recent Item = %d, want 403", rec.Code)
	}
	_, age := decodeError(t, rec)
	if age == nil || *age >= 5 {
		t.Errorf("Recent Item age = %v, want < 5", age)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/items", "")
	var items []item.Item
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Name != "Recent Item" {
		t.Errorf("After scenario, list = %+v, want only Recent Item", items)
	}
}

func TestStoreFailure_MapsTo500(t *testing.T) {
	h, st, _ := newTestServer(t)

	// Kill the store out from under the handlers
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/items", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("GET with dead store = %d, want 500", rec.Code)
	}
	if msg, _ := decodeError(t, rec); msg != "Failed to fetch items" {
		t.Errorf("GET error = %q, want %q", msg, "Failed to fetch items")
	}

	rec = doRequest(t, h, http.MethodPost, "/api/items", `{"name":"doomed"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("POST with dead store = %d, want 500", rec.Code)
	}
	if msg, _ := decodeError(t, rec); msg != "Failed to create item" {
		t.Errorf("POST error = %q, want %q", msg, "Failed to create item")
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/items/1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("DELETE with dead store = %d, want 500", rec.Code)
	}
	if msg, _ := decodeError(t, rec); msg != "Failed to delete item" {
		t.Errorf("DELETE error = %q, want %q", msg, "Failed to delete item")
	}
}

func TestRequestIDHeader(t *testing.T) {
	h, _, _ := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/items", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("Response should carry a generated X-Request-Id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Errorf("X-Request-Id = %q, want caller-supplied id echoed", got)
	}
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestServer(t)

	doRequest(t, h, http.MethodPost, "/api/items", `{"name":"one"}`)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Items  int64  `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if resp.Status != "ok" || resp.Items != 1 {
		t.Errorf("Health = %+v, want status=ok items=1", resp)
	}
}
