package repository

import (
	"context"
	"database/sql"
	"errors"

	"copytrade/internal/models"

	"github.com/lib/pq"
)

// Ошибки репозитория пользователей
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository - справочник пользователей (таблица users)
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository создает новый экземпляр репозитория
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, email, status, created_at
		FROM users
		WHERE id = $1`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return u, nil
}

// ListIDs возвращает ID пользователей; без аргументов - всех
func (r *UserRepository) ListIDs(ctx context.Context, statuses ...models.UserStatus) ([]int64, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if len(statuses) == 0 {
		rows, err = r.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	} else {
		filter := make([]string, len(statuses))
		for i, s := range statuses {
			filter[i] = string(s)
		}
		rows, err = r.db.QueryContext(ctx, `SELECT id FROM users WHERE status = ANY($1) ORDER BY id`, pq.Array(filter))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// GetStatuses возвращает статусы пользователей; отсутствующих в таблице нет в карте
func (r *UserRepository) GetStatuses(ctx context.Context, ids []int64) (map[int64]models.UserStatus, error) {
	statuses := make(map[int64]models.UserStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, status FROM users WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     int64
			status models.UserStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		statuses[id] = status
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return statuses, nil
}
