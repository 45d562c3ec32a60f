package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"copytrade/internal/models"
)

func TestAuditHandler_GetAudit(t *testing.T) {
	t.Run("returns events and passes limit", func(t *testing.T) {
		uid := int64(9)
		reader := &MockAuditReader{events: []*models.AuditEvent{
			{ID: 2, Kind: models.AuditTradeAttempt, UserID: &uid, Exchange: "bybit", Message: "order placed"},
			{ID: 1, Kind: models.AuditSyncError, UserID: &uid, Exchange: "okx", Message: "balance failed"},
		}}
		handler := NewAuditHandler(reader)

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/9/audit?limit=20", nil), map[string]string{"id": "9"})
		w := httptest.NewRecorder()
		handler.GetAudit(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var events []models.AuditEvent
		if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(events) != 2 || events[0].ID != 2 {
			t.Errorf("unexpected events: %+v", events)
		}
		if reader.lastUser != 9 || reader.lastLimit != 20 {
			t.Errorf("Recent called with user=%d limit=%d", reader.lastUser, reader.lastLimit)
		}
	})

	t.Run("invalid limit falls back to default", func(t *testing.T) {
		reader := &MockAuditReader{}
		handler := NewAuditHandler(reader)

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/9/audit?limit=abc", nil), map[string]string{"id": "9"})
		w := httptest.NewRecorder()
		handler.GetAudit(w, req)

		if reader.lastLimit != 0 {
			t.Errorf("limit = %d, want 0", reader.lastLimit)
		}
		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", w.Body.String())
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		handler := NewAuditHandler(&MockAuditReader{err: ErrMockDatabase})

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/9/audit", nil), map[string]string{"id": "9"})
		w := httptest.NewRecorder()
		handler.GetAudit(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
