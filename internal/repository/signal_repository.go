package repository

import (
	"context"
	"database/sql"
	"time"

	"copytrade/internal/models"

	"github.com/shopspring/decimal"
)

// SignalRepository - журнал входящих сигналов и итогов их исполнения
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// CreateSignal сохраняет сигнал вместе с исходным payload
func (r *SignalRepository) CreateSignal(ctx context.Context, s *models.TradeSignal) error {
	query := `
		INSERT INTO trade_signals (id, exchange, account_type, symbol, action, price, amount, take_profit, stop_loss, raw_payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = time.Now()
	}

	var payload interface{}
	if len(s.RawPayload) > 0 {
		payload = []byte(s.RawPayload)
	}

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Exchange,
		s.AccountType,
		s.Symbol,
		s.Action,
		nullDecimal(s.Price),
		nullDecimal(s.Amount),
		nullDecimal(s.TakeProfit),
		nullDecimal(s.StopLoss),
		payload,
		s.ReceivedAt,
	)
	return err
}

// CreateOutcome сохраняет итог попытки (сигнал, пользователь)
func (r *SignalRepository) CreateOutcome(ctx context.Context, o *models.TradeOutcome) error {
	query := `
		INSERT INTO trade_outcomes (id, signal_id, user_id, exchange, status, order_id, side, order_type, error, skip_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		o.ID,
		o.SignalID,
		o.UserID,
		o.Exchange,
		o.Status,
		o.OrderID,
		o.Side,
		o.OrderType,
		o.Error,
		o.SkipReason,
		o.CreatedAt,
	)
	return err
}

// GetOutcomesBySignal возвращает итоги по сигналу
func (r *SignalRepository) GetOutcomesBySignal(ctx context.Context, signalID string) ([]*models.TradeOutcome, error) {
	query := `
		SELECT id, signal_id, user_id, exchange, status, order_id, side, order_type, error, skip_reason, created_at
		FROM trade_outcomes
		WHERE signal_id = $1
		ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query, signalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]*models.TradeOutcome, 0)
	for rows.Next() {
		o := &models.TradeOutcome{}
		err := rows.Scan(
			&o.ID,
			&o.SignalID,
			&o.UserID,
			&o.Exchange,
			&o.Status,
			&o.OrderID,
			&o.Side,
			&o.OrderType,
			&o.Error,
			&o.SkipReason,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
