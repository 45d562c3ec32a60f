package service

import (
	"context"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/internal/websocket"
	"copytrade/pkg/crypto"
)

// CredentialRepositoryInterface определяет интерфейс хранилища привязок к биржам
type CredentialRepositoryInterface interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.ExchangeCredential, error)
	ListByExchange(ctx context.Context, exchange string) ([]*models.ExchangeCredential, error)
	Upsert(ctx context.Context, c *models.ExchangeCredential) error
	UpdateSecrets(ctx context.Context, id int64, apiKey, apiSecret, passphrase string) error
	Delete(ctx context.Context, userID int64, exchange string, accountType models.AccountType) error
}

// UserRepositoryInterface определяет интерфейс каталога пользователей
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListIDs(ctx context.Context, statuses ...models.UserStatus) ([]int64, error)
	GetStatuses(ctx context.Context, ids []int64) (map[int64]models.UserStatus, error)
}

// SignalRepositoryInterface определяет интерфейс хранилища сигналов и их исходов
type SignalRepositoryInterface interface {
	CreateSignal(ctx context.Context, s *models.TradeSignal) error
	CreateOutcome(ctx context.Context, o *models.TradeOutcome) error
	GetOutcomesBySignal(ctx context.Context, signalID string) ([]*models.TradeOutcome, error)
}

// AuditRepositoryInterface определяет интерфейс журнала аудита
type AuditRepositoryInterface interface {
	Create(ctx context.Context, e *models.AuditEvent) error
	GetRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ClientProvider выдаёт готовых (прошедших Setup) клиентов бирж.
// Реализуется exchange.Registry.
type ClientProvider interface {
	Get(ctx context.Context, id exchange.ID, cred models.DecryptedCredential, accountType models.AccountType) (exchange.Client, error)
	Evict(id exchange.ID, apiKey string, accountType models.AccountType) bool
}

// CredentialCipher шифрует и расшифровывает ключи. Реализуется crypto.Vault.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	DecryptWithLegacyFallback(value string) (string, bool, error)
}

// Notifier доставляет события пользователям в реальном времени.
//
// Позволяет не тянуть websocket hub в тесты; отправка никогда
// не блокирует и не возвращает ошибок.
type Notifier interface {
	Notify(userID int64, payload interface{})
	Broadcast(userIDs []int64, payload interface{})
}

// Auditor принимает события аудита без блокировки
type Auditor interface {
	Record(event models.AuditEvent)
}

// Compile-time проверки реализаций
var (
	_ CredentialRepositoryInterface = (*repository.CredentialRepository)(nil)
	_ UserRepositoryInterface       = (*repository.UserRepository)(nil)
	_ SignalRepositoryInterface     = (*repository.SignalRepository)(nil)
	_ AuditRepositoryInterface      = (*repository.AuditRepository)(nil)
	_ ClientProvider                = (*exchange.Registry)(nil)
	_ CredentialCipher              = (*crypto.Vault)(nil)
	_ Notifier                      = (*websocket.Hub)(nil)
	_ Auditor                       = (*AuditSink)(nil)
)
