package handlers

import (
	"context"
	"net/http"
	"strconv"

	"copytrade/internal/models"
)

// AuditReader читает журнал аудита (service.AuditSink)
type AuditReader interface {
	Recent(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error)
}

// AuditHandler - журнал событий пользователя
//
// Endpoints:
// - GET /api/v1/users/{id}/audit?limit=N
type AuditHandler struct {
	audit AuditReader
}

// NewAuditHandler создает новый AuditHandler
func NewAuditHandler(audit AuditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GetAudit возвращает последние события пользователя, новые первыми.
// Некорректный limit игнорируется, границы применяет AuditSink.
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid user id", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.audit.Recent(r.Context(), userID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if events == nil {
		events = []*models.AuditEvent{}
	}
	respondWithJSON(w, http.StatusOK, events)
}
