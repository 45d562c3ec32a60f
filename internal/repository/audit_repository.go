package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"copytrade/internal/models"
)

// AuditRepository - журнал аудита (таблица audit_events)
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository создает новый экземпляр репозитория
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create записывает событие
func (r *AuditRepository) Create(ctx context.Context, e *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (kind, severity, user_id, exchange, message, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var meta interface{}
	if len(e.Meta) > 0 {
		data, err := json.Marshal(e.Meta)
		if err != nil {
			return err
		}
		meta = data
	}

	var userID interface{}
	if e.UserID != nil {
		userID = *e.UserID
	}

	return r.db.QueryRowContext(ctx, query,
		e.Kind,
		e.Severity,
		userID,
		e.Exchange,
		e.Message,
		meta,
		e.CreatedAt,
	).Scan(&e.ID)
}

// GetRecentByUser возвращает последние события пользователя
func (r *AuditRepository) GetRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, kind, severity, user_id, exchange, message, meta, created_at
		FROM audit_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		e := &models.AuditEvent{}
		var (
			uid  sql.NullInt64
			meta []byte
		)
		err := rows.Scan(&e.ID, &e.Kind, &e.Severity, &uid, &e.Exchange, &e.Message, &meta, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		if uid.Valid {
			id := uid.Int64
			e.UserID = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// DeleteOlderThan удаляет события старше указанного момента
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
