package websocket

import (
	"time"

	"copytrade/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeSyncResult - результат синхронизации аккаунтов пользователя.
	// Отправляется после каждой синхронизации (по расписанию и по запросу).
	MessageTypeSyncResult MessageType = "syncResult"

	// MessageTypeTradeSignal - получен сигнал по бирже, привязанной пользователем.
	// Отправляется всем затронутым пользователям до исполнения.
	MessageTypeTradeSignal MessageType = "tradeSignal"

	// MessageTypeTradeOutcome - итог исполнения сигнала для конкретного пользователя
	MessageTypeTradeOutcome MessageType = "tradeOutcome"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SyncResultMessage - балансы, ордера и позиции по всем биржам пользователя
type SyncResultMessage struct {
	BaseMessage
	UserID  int64                       `json:"user_id"`
	Results []models.ExchangeSyncResult `json:"results"`
	Error   string                      `json:"error,omitempty"`
}

// TradeSignalMessage - входящий сигнал
type TradeSignalMessage struct {
	BaseMessage
	Signal *models.TradeSignal `json:"signal"`
}

// TradeOutcomeMessage - исход сигнала для получателя
type TradeOutcomeMessage struct {
	BaseMessage
	Outcome *models.TradeOutcome `json:"outcome"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}

// NewSyncResultMessage создаёт сообщение syncResult
func NewSyncResultMessage(userID int64, results []models.ExchangeSyncResult, errMsg string) *SyncResultMessage {
	if results == nil {
		results = []models.ExchangeSyncResult{}
	}
	return &SyncResultMessage{
		BaseMessage: newBase(MessageTypeSyncResult),
		UserID:      userID,
		Results:     results,
		Error:       errMsg,
	}
}

// NewTradeSignalMessage создаёт сообщение tradeSignal.
// Сырой payload вебхука наружу не отдаётся.
func NewTradeSignalMessage(signal *models.TradeSignal) *TradeSignalMessage {
	copied := *signal
	copied.RawPayload = nil
	return &TradeSignalMessage{
		BaseMessage: newBase(MessageTypeTradeSignal),
		Signal:      &copied,
	}
}

// NewTradeOutcomeMessage создаёт сообщение tradeOutcome
func NewTradeOutcomeMessage(outcome *models.TradeOutcome) *TradeOutcomeMessage {
	copied := *outcome
	return &TradeOutcomeMessage{
		BaseMessage: newBase(MessageTypeTradeOutcome),
		Outcome:     &copied,
	}
}
