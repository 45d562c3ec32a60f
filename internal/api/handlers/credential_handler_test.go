package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/service"

	"github.com/gorilla/mux"
)

func withVars(req *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(req, vars)
}

// ============ CredentialHandler Tests ============

func TestCredentialHandler_ListCredentials(t *testing.T) {
	t.Run("returns views", func(t *testing.T) {
		mgr := NewMockCredentialManager()
		mgr.views = []models.CredentialView{
			{Exchange: "okx", AccountType: models.AccountTypeFutures, HasPassphrase: true},
		}
		handler := NewCredentialHandler(mgr)

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/7/exchanges", nil), map[string]string{"id": "7"})
		w := httptest.NewRecorder()
		handler.ListCredentials(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var views []models.CredentialView
		if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(views) != 1 || views[0].Exchange != "okx" || !views[0].HasPassphrase {
			t.Errorf("unexpected views: %+v", views)
		}
		if strings.Contains(w.Body.String(), "api_secret") {
			t.Error("response must not contain secrets")
		}
	})

	t.Run("no credentials is an empty array", func(t *testing.T) {
		handler := NewCredentialHandler(NewMockCredentialManager())

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/7/exchanges", nil), map[string]string{"id": "7"})
		w := httptest.NewRecorder()
		handler.ListCredentials(w, req)

		if strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("body = %q, want []", w.Body.String())
		}
	})

	t.Run("invalid user id", func(t *testing.T) {
		handler := NewCredentialHandler(NewMockCredentialManager())

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/abc/exchanges", nil), map[string]string{"id": "abc"})
		w := httptest.NewRecorder()
		handler.ListCredentials(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 500 on service error", func(t *testing.T) {
		mgr := NewMockCredentialManager()
		mgr.SetError("list", ErrMockDatabase)
		handler := NewCredentialHandler(mgr)

		req := withVars(httptest.NewRequest(http.MethodGet, "/api/v1/users/7/exchanges", nil), map[string]string{"id": "7"})
		w := httptest.NewRecorder()
		handler.ListCredentials(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		if strings.Contains(w.Body.String(), ErrMockDatabase.Error()) {
			t.Error("internal error details must not leak")
		}
	})
}

func TestCredentialHandler_SaveCredentials(t *testing.T) {
	t.Run("maps path, query and body", func(t *testing.T) {
		mgr := NewMockCredentialManager()
		handler := NewCredentialHandler(mgr)

		body := `{"api_key":"k","api_secret":"s","passphrase":"p"}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/3/exchanges/okx?type=futures", strings.NewReader(body))
		req = withVars(req, map[string]string{"id": "3", "exchange": "okx"})
		w := httptest.NewRecorder()
		handler.SaveCredentials(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		if len(mgr.saved) != 1 {
			t.Fatalf("expected 1 save, got %d", len(mgr.saved))
		}
		want := service.SaveCredentialsRequest{Exchange: "okx", AccountType: "futures", APIKey: "k", APISecret: "s", Passphrase: "p"}
		if mgr.saved[0] != want {
			t.Errorf("request = %+v, want %+v", mgr.saved[0], want)
		}
	})

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"invalid json", `{"api_key":`, nil, http.StatusBadRequest},
		{"validation error", `{"api_key":"k"}`, &service.ValidationError{Field: "api_secret", Message: "is required"}, http.StatusBadRequest},
		{"unsupported exchange", `{"api_key":"k","api_secret":"s"}`, &exchange.UnsupportedExchangeError{ID: "bitunix", Placeholder: true}, http.StatusBadRequest},
		{"store failure", `{"api_key":"k","api_secret":"s"}`, ErrMockDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewMockCredentialManager()
			if tt.err != nil {
				mgr.SetError("save", tt.err)
			}
			handler := NewCredentialHandler(mgr)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/users/3/exchanges/bybit", strings.NewReader(tt.body))
			req = withVars(req, map[string]string{"id": "3", "exchange": "bybit"})
			w := httptest.NewRecorder()
			handler.SaveCredentials(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestCredentialHandler_DeleteCredentials(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"deleted", nil, http.StatusOK},
		{"not linked", service.ErrNoCredentials, http.StatusNotFound},
		{"bad account type", &service.ValidationError{Field: "account_type", Message: "unknown"}, http.StatusBadRequest},
		{"store failure", ErrMockDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewMockCredentialManager()
			if tt.err != nil {
				mgr.SetError("delete", tt.err)
			}
			handler := NewCredentialHandler(mgr)

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/3/exchanges/binance?type=spot", nil)
			req = withVars(req, map[string]string{"id": "3", "exchange": "binance"})
			w := httptest.NewRecorder()
			handler.DeleteCredentials(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.err == nil && (len(mgr.deleted) != 1 || mgr.deleted[0] != "binance/spot") {
				t.Errorf("deleted = %v", mgr.deleted)
			}
		})
	}
}
