package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"copytrade/internal/models"
)

// Ошибки репозитория учётных данных
var (
	ErrCredentialNotFound = errors.New("exchange credential not found")
)

// CredentialRepository - работа с таблицей exchange_credentials.
// Секретные колонки хранят только шифротекст.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository создает новый экземпляр репозитория
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, user_id, exchange, account_type, api_key, api_secret, passphrase, created_at, updated_at`

// ListByUser возвращает все привязки пользователя
func (r *CredentialRepository) ListByUser(ctx context.Context, userID int64) ([]*models.ExchangeCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM exchange_credentials
		WHERE user_id = $1
		ORDER BY exchange, account_type`

	return r.list(ctx, query, userID)
}

// ListByExchange возвращает привязки всех пользователей к бирже
func (r *CredentialRepository) ListByExchange(ctx context.Context, exchange string) ([]*models.ExchangeCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM exchange_credentials
		WHERE exchange = $1
		ORDER BY user_id, account_type`

	return r.list(ctx, query, exchange)
}

func (r *CredentialRepository) list(ctx context.Context, query string, arg interface{}) ([]*models.ExchangeCredential, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	creds := make([]*models.ExchangeCredential, 0)
	for rows.Next() {
		c := &models.ExchangeCredential{}
		err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Exchange,
			&c.AccountType,
			&c.APIKey,
			&c.APISecret,
			&c.Passphrase,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return creds, nil
}

// Upsert создает или заменяет привязку (user_id, exchange, account_type)
func (r *CredentialRepository) Upsert(ctx context.Context, c *models.ExchangeCredential) error {
	query := `
		INSERT INTO exchange_credentials (user_id, exchange, account_type, api_key, api_secret, passphrase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, exchange, account_type) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			passphrase = EXCLUDED.passphrase,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	now := time.Now()
	c.UpdatedAt = now

	return r.db.QueryRowContext(ctx, query,
		c.UserID,
		c.Exchange,
		c.AccountType,
		c.APIKey,
		c.APISecret,
		c.Passphrase,
		now,
	).Scan(&c.ID, &c.CreatedAt)
}

// UpdateSecrets перезаписывает зашифрованные поля (миграция старого формата)
func (r *CredentialRepository) UpdateSecrets(ctx context.Context, id int64, apiKey, apiSecret, passphrase string) error {
	query := `
		UPDATE exchange_credentials
		SET api_key = $1, api_secret = $2, passphrase = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query, apiKey, apiSecret, passphrase, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

// Delete удаляет привязку
func (r *CredentialRepository) Delete(ctx context.Context, userID int64, exchange string, accountType models.AccountType) error {
	query := `
		DELETE FROM exchange_credentials
		WHERE user_id = $1 AND exchange = $2 AND account_type = $3`

	result, err := r.db.ExecContext(ctx, query, userID, exchange, accountType)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}
