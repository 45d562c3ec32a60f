package handlers

import (
	"context"
	"io"
	"net/http"

	"copytrade/internal/models"
	"copytrade/pkg/crypto"
	"copytrade/pkg/utils"

	"github.com/shopspring/decimal"
)

// SignalDispatcher исполняет сигнал для всех подписанных пользователей (service.Dispatcher)
type SignalDispatcher interface {
	Dispatch(ctx context.Context, signal *models.TradeSignal) ([]models.TradeOutcome, error)
}

// WebhookRequest - тело алерта (формат TradingView)
//
//	{
//	  "passphrase": "shared-secret",
//	  "exchange": "bybit",
//	  "account_type": "futures",
//	  "symbol": "BTCUSDT",
//	  "action": "buy",
//	  "amount": "0.01",
//	  "price": 65000
//	}
type WebhookRequest struct {
	Passphrase  string           `json:"passphrase,omitempty"`
	Exchange    string           `json:"exchange"`
	AccountType string           `json:"account_type,omitempty"`
	Symbol      string           `json:"symbol"`
	Action      string           `json:"action"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
}

// WebhookResponse - результат диспетчеризации
type WebhookResponse struct {
	SignalID string                `json:"signal_id"`
	Outcomes []models.TradeOutcome `json:"outcomes"`
}

// WebhookHandler принимает торговые сигналы.
//
// Endpoints:
// - POST /api/v1/webhook/signal
type WebhookHandler struct {
	dispatcher SignalDispatcher
	secretHash string
	logger     *utils.Logger
}

// NewWebhookHandler создаёт handler. Пустой secretHash отключает проверку passphrase.
func NewWebhookHandler(dispatcher SignalDispatcher, secretHash string) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		secretHash: secretHash,
		logger:     utils.L().WithComponent("webhook"),
	}
}

// ReceiveSignal исполняет сигнал
// POST /api/v1/webhook/signal
//
// Ответы:
// - 200 OK: список исходов по пользователям (может быть пустым)
// - 400 Bad Request: некорректный сигнал или неподдерживаемая биржа
// - 401 Unauthorized: неверный passphrase
// - 500 Internal Server Error: сигнал не удалось сохранить
func (h *WebhookHandler) ReceiveSignal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err.Error())
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeValidation, "Invalid request body", err.Error())
		return
	}

	if h.secretHash != "" {
		if err := crypto.VerifySecret(req.Passphrase, h.secretHash); err != nil {
			h.logger.Warn("webhook rejected", utils.String("remote", r.RemoteAddr), utils.Err(err))
			respondWithError(w, http.StatusUnauthorized, "", "Invalid passphrase", "")
			return
		}
	}

	signal := &models.TradeSignal{
		Exchange:    req.Exchange,
		AccountType: models.AccountType(req.AccountType),
		Symbol:      req.Symbol,
		Action:      models.SignalAction(req.Action),
		Price:       req.Price,
		Amount:      req.Amount,
		TakeProfit:  req.TakeProfit,
		StopLoss:    req.StopLoss,
		RawPayload:  redactPayload(body),
	}

	outcomes, err := h.dispatcher.Dispatch(r.Context(), signal)
	if err != nil {
		h.logger.Warn("signal dispatch failed",
			utils.Exchange(req.Exchange),
			utils.Symbol(req.Symbol),
			utils.Err(err),
		)
		respondWithServiceError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []models.TradeOutcome{}
	}

	respondWithJSON(w, http.StatusOK, WebhookResponse{
		SignalID: signal.ID,
		Outcomes: outcomes,
	})
}

// redactPayload убирает passphrase из сохраняемого тела алерта
func redactPayload(body []byte) []byte {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	delete(fields, "passphrase")
	out, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return out
}
