package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SignalAction - действие торгового сигнала
type SignalAction string

const (
	ActionBuy   SignalAction = "buy"
	ActionSell  SignalAction = "sell"
	ActionClose SignalAction = "close"
)

// Valid проверяет, что действие известно
func (a SignalAction) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionClose:
		return true
	}
	return false
}

// TradeSignal - входящий сигнал (webhook). Неизменяем после диспетчеризации.
type TradeSignal struct {
	ID          string           `json:"id" db:"id"`
	Exchange    string           `json:"exchange" db:"exchange"`
	AccountType AccountType      `json:"account_type" db:"account_type"`
	Symbol      string           `json:"symbol" db:"symbol"`
	Action      SignalAction     `json:"action" db:"action"`
	Price       *decimal.Decimal `json:"price,omitempty" db:"price"`
	Amount      *decimal.Decimal `json:"amount,omitempty" db:"amount"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty" db:"take_profit"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty" db:"stop_loss"`
	RawPayload  json.RawMessage  `json:"raw_payload,omitempty" db:"raw_payload"`
	ReceivedAt  time.Time        `json:"received_at" db:"received_at"`
}

// OutcomeStatus - итог попытки исполнения сигнала для пользователя
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// TradeOutcome - одна попытка (сигнал, пользователь). Не повторяется.
type TradeOutcome struct {
	ID         string        `json:"id" db:"id"`
	SignalID   string        `json:"signal_id" db:"signal_id"`
	UserID     int64         `json:"user_id" db:"user_id"`
	Exchange   string        `json:"exchange" db:"exchange"`
	Status     OutcomeStatus `json:"status" db:"status"`
	OrderID    string        `json:"order_id,omitempty" db:"order_id"`
	Side       string        `json:"side,omitempty" db:"side"`
	OrderType  string        `json:"order_type,omitempty" db:"order_type"`
	Error      string        `json:"error,omitempty" db:"error"`
	SkipReason string        `json:"skip_reason,omitempty" db:"skip_reason"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}
