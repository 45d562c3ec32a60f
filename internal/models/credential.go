package models

import (
	"fmt"
	"strings"
	"time"
)

// AccountType - тип счёта на бирже
type AccountType string

const (
	AccountTypeSpot    AccountType = "spot"
	AccountTypeFutures AccountType = "futures"
)

// ParseAccountType разбирает тип счёта; пустая строка означает spot
func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(s))) {
	case "", AccountTypeSpot:
		return AccountTypeSpot, nil
	case AccountTypeFutures, "swap", "future":
		return AccountTypeFutures, nil
	default:
		return "", fmt.Errorf("unknown account type %q", s)
	}
}

// ExchangeCredential - привязка пользователя к аккаунту на бирже.
// Уникальна по (UserID, Exchange, AccountType). Секретные поля хранятся
// только в зашифрованном виде и никогда не отдаются в JSON.
type ExchangeCredential struct {
	ID          int64       `json:"id" db:"id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	Exchange    string      `json:"exchange" db:"exchange"`
	AccountType AccountType `json:"account_type" db:"account_type"`
	APIKey      string      `json:"-" db:"api_key"`
	APISecret   string      `json:"-" db:"api_secret"`
	Passphrase  string      `json:"-" db:"passphrase"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// DecryptedCredential - расшифрованные ключи на время одной цепочки вызовов
type DecryptedCredential struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Wipe сбрасывает ссылки на расшифрованные значения
func (c *DecryptedCredential) Wipe() {
	c.APIKey = ""
	c.APISecret = ""
	c.Passphrase = ""
}

// String не раскрывает секреты при случайном логировании
func (c DecryptedCredential) String() string {
	return "DecryptedCredential{***}"
}

// CredentialView - безопасное представление привязки для API
type CredentialView struct {
	Exchange      string      `json:"exchange"`
	AccountType   AccountType `json:"account_type"`
	HasPassphrase bool        `json:"has_passphrase"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// View возвращает представление без секретов
func (c *ExchangeCredential) View() CredentialView {
	return CredentialView{
		Exchange:      c.Exchange,
		AccountType:   c.AccountType,
		HasPassphrase: c.Passphrase != "",
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
