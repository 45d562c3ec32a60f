package models

import "time"

// UserStatus - статус аккаунта пользователя
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusPaused   UserStatus = "paused"
	UserStatusDisabled UserStatus = "disabled"
)

// User - владелец привязок к биржам
type User struct {
	ID        int64      `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Status    UserStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// CanTrade - только активный пользователь получает сделки по сигналам
func (s UserStatus) CanTrade() bool {
	return s == UserStatusActive
}
