package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot - нормализованный баланс в USDT.
// Если Error заполнен, числовые поля равны nil.
type BalanceSnapshot struct {
	TotalBalance *decimal.Decimal `json:"total_balance"`
	Available    *decimal.Decimal `json:"available"`
	Used         *decimal.Decimal `json:"used"`
	Error        *string          `json:"error,omitempty"`
}

// FailedBalance - снимок, несущий только ошибку
func FailedBalance(err error) *BalanceSnapshot {
	msg := err.Error()
	return &BalanceSnapshot{Error: &msg}
}

// Направления позиции
const (
	SideLong  = "long"
	SideShort = "short"
)

// Статусы позиции
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// PositionRecord - нормализованная позиция.
// У открытой позиции поля закрытия равны nil, у закрытой заполнены ClosedAt и ClosePrice.
type PositionRecord struct {
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Amount        decimal.Decimal  `json:"amount"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	MarkPrice     decimal.Decimal  `json:"mark_price"`
	Leverage      decimal.Decimal  `json:"leverage"`
	UnrealizedPnl *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	RealizedPnl   *decimal.Decimal `json:"realized_pnl,omitempty"`
	ClosePrice    *decimal.Decimal `json:"close_price,omitempty"`
	Status        string           `json:"status"`
	OpenedAt      *time.Time       `json:"opened_at,omitempty"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
}

// OpenOrder - нормализованный открытый ордер
type OpenOrder struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Filled    decimal.Decimal `json:"filled"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExchangeSyncResult - результат синхронизации одной привязки пользователя.
// Error заполнен только если не удалось получить баланс (или ключи/клиент).
type ExchangeSyncResult struct {
	Exchange      string           `json:"exchange"`
	Type          AccountType      `json:"type"`
	Balance       *BalanceSnapshot `json:"balance"`
	OpenOrders    []OpenOrder      `json:"open_orders"`
	OpenPositions []PositionRecord `json:"open_positions"`
	Error         *string          `json:"error,omitempty"`
	SyncedAt      time.Time        `json:"synced_at"`
}
