package service

import (
	"errors"
	"fmt"
)

// Ошибки сервисов
var (
	ErrNoOpenPosition   = errors.New("no open position to close")
	ErrNoCredentials    = errors.New("exchange credentials not found")
	ErrDefaultAmountNil = errors.New("signal has no amount and no default order amount is configured")
)

// CredentialError - ключи пользователя отсутствуют, повреждены или не расшифровываются.
// Относится к одной паре (пользователь, биржа) и не прерывает обработку остальных.
type CredentialError struct {
	UserID   int64
	Exchange string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials of user %d for %s: %v", e.UserID, e.Exchange, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// ValidationError - во входных данных не хватает обязательного поля или оно некорректно
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsValidationError сообщает, что ошибка вызвана некорректным вводом
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
