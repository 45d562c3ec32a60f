package handlers

import (
	"context"
	"errors"
	"net/http"

	"copytrade/internal/models"
	"copytrade/internal/service"

	"github.com/gorilla/mux"
)

// CredentialManager управляет привязками бирж (service.CredentialService)
type CredentialManager interface {
	SaveCredentials(ctx context.Context, userID int64, req service.SaveCredentialsRequest) (*models.CredentialView, error)
	DeleteCredentials(ctx context.Context, userID int64, exchangeName, accountType string) error
	ListCredentials(ctx context.Context, userID int64) ([]models.CredentialView, error)
}

// SaveCredentialsBody - тело PUT запроса; биржа и тип аккаунта берутся из URL
type SaveCredentialsBody struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase,omitempty"` // okx, bitget, blofin
}

// CredentialHandler отвечает за биржевые ключи пользователей
//
// Endpoints:
// - GET /api/v1/users/{id}/exchanges - привязки пользователя (без секретов)
// - PUT /api/v1/users/{id}/exchanges/{exchange}?type=spot|futures - сохранить ключи
// - DELETE /api/v1/users/{id}/exchanges/{exchange}?type=spot|futures - удалить ключи
type CredentialHandler struct {
	credentials CredentialManager
}

// NewCredentialHandler создает новый CredentialHandler
func NewCredentialHandler(credentials CredentialManager) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// ListCredentials возвращает привязки пользователя
// GET /api/v1/users/{id}/exchanges
func (h *CredentialHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid user id", "")
		return
	}

	views, err := h.credentials.ListCredentials(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if views == nil {
		views = []models.CredentialView{}
	}
	respondWithJSON(w, http.StatusOK, views)
}

// SaveCredentials сохраняет (или заменяет) ключи биржи
// PUT /api/v1/users/{id}/exchanges/{exchange}?type=futures
//
// Тело запроса:
//
//	{
//	  "api_key": "your-api-key",
//	  "api_secret": "your-secret",
//	  "passphrase": "optional-passphrase"
//	}
//
// Ответы:
// - 200 OK: ключи сохранены, синхронизация запущена в фоне
// - 400 Bad Request: некорректные данные или неподдерживаемая биржа
func (h *CredentialHandler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid user id", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var body SaveCredentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err.Error())
		return
	}

	view, err := h.credentials.SaveCredentials(r.Context(), userID, service.SaveCredentialsRequest{
		Exchange:    mux.Vars(r)["exchange"],
		AccountType: r.URL.Query().Get("type"),
		APIKey:      body.APIKey,
		APISecret:   body.APISecret,
		Passphrase:  body.Passphrase,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// DeleteCredentials удаляет ключи биржи
// DELETE /api/v1/users/{id}/exchanges/{exchange}?type=spot
//
// Ответы:
// - 200 OK: ключи удалены
// - 400 Bad Request: неподдерживаемая биржа или тип аккаунта
// - 404 Not Found: привязки нет
func (h *CredentialHandler) DeleteCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid user id", "")
		return
	}

	exchangeName := mux.Vars(r)["exchange"]
	err := h.credentials.DeleteCredentials(r.Context(), userID, exchangeName, r.URL.Query().Get("type"))
	if err != nil {
		if errors.Is(err, service.ErrNoCredentials) {
			respondWithError(w, http.StatusNotFound, CodeNotFound, "Exchange credentials not found", "")
			return
		}
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Exchange credentials deleted"})
}
