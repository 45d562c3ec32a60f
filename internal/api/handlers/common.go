package handlers

import (
	"net/http"
	"strconv"

	"copytrade/internal/exchange"
	"copytrade/internal/service"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Коды ошибок в ErrorResponse.Code
const (
	CodeValidation  = "validation_error"
	CodeUnsupported = "unsupported_exchange"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal_error"
)

// respondWithJSON сериализует payload и пишет ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, status int, code, message, details string) {
	respondWithJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// respondWithServiceError переводит ошибку сервиса в HTTP статус.
// Ошибки конфигурации (неизвестная биржа, невалидный ввод) - 400, остальное - 500.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case exchange.IsUnsupported(err):
		respondWithError(w, http.StatusBadRequest, CodeUnsupported, "Unsupported exchange", err.Error())
	case service.IsValidationError(err):
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid request", err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", "")
	}
}

// userIDFromPath читает {id} из маршрута
func userIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
