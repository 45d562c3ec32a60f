package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/pkg/utils"

	"github.com/sourcegraph/conc"
)

// SaveCredentialsRequest - данные новой или обновлённой привязки
type SaveCredentialsRequest struct {
	Exchange    string `json:"exchange"`
	AccountType string `json:"account_type"`
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	Passphrase  string `json:"passphrase,omitempty"`
}

// UserSyncTrigger запускает синхронизацию пользователя (реализуется Scheduler)
type UserSyncTrigger interface {
	SyncOne(ctx context.Context, userID int64) SyncReport
}

// CredentialService управляет привязками пользователей к биржам.
//
// Ключи шифруются до записи в хранилище и никогда не возвращаются наружу.
// После сохранения привязки в фоне запускается синхронизация пользователя.
type CredentialService struct {
	creds   CredentialRepositoryInterface
	cipher  CredentialCipher
	clients ClientProvider
	audit   Auditor
	syncer  UserSyncTrigger

	syncTimeout time.Duration
	background  conc.WaitGroup
	logger      *utils.Logger
}

// NewCredentialService создаёт сервис привязок
func NewCredentialService(
	creds CredentialRepositoryInterface,
	cipher CredentialCipher,
	clients ClientProvider,
	audit Auditor,
) *CredentialService {
	return &CredentialService{
		creds:       creds,
		cipher:      cipher,
		clients:     clients,
		audit:       audit,
		syncTimeout: 2 * time.Minute,
		logger:      utils.L().WithComponent("credentials"),
	}
}

// SetSyncTrigger включает синхронизацию после сохранения ключей
func (s *CredentialService) SetSyncTrigger(t UserSyncTrigger) {
	s.syncer = t
}

// validate приводит запрос к каноническому виду и проверяет обязательные поля
func (s *CredentialService) validate(req *SaveCredentialsRequest) (exchange.ID, models.AccountType, error) {
	id, err := exchange.ParseID(req.Exchange)
	if err != nil {
		return "", "", err
	}
	if id.IsPlaceholder() {
		return "", "", &exchange.UnsupportedExchangeError{ID: string(id), Placeholder: true}
	}

	at, err := defaultAccountType(id, req.AccountType)
	if err != nil {
		return "", "", &ValidationError{Field: "account_type", Message: err.Error()}
	}
	if !id.SupportsAccountType(at) {
		return "", "", &ValidationError{Field: "account_type", Message: fmt.Sprintf("%s does not support %s accounts", id, at)}
	}

	req.APIKey = strings.TrimSpace(req.APIKey)
	req.APISecret = strings.TrimSpace(req.APISecret)
	req.Passphrase = strings.TrimSpace(req.Passphrase)

	if req.APIKey == "" {
		return "", "", &ValidationError{Field: "api_key", Message: "is required"}
	}
	if req.APISecret == "" {
		return "", "", &ValidationError{Field: "api_secret", Message: "is required"}
	}
	if err := utils.ValidateAPIKey(req.APIKey); err != nil {
		return "", "", &ValidationError{Field: "api_key", Message: err.Error()}
	}
	if err := utils.ValidateAPIKey(req.APISecret); err != nil {
		return "", "", &ValidationError{Field: "api_secret", Message: err.Error()}
	}
	if id.RequiresPassphrase() && req.Passphrase == "" {
		return "", "", &ValidationError{Field: "passphrase", Message: "is required for " + string(id)}
	}
	return id, at, nil
}

// SaveCredentials шифрует и сохраняет привязку (создание или замена)
func (s *CredentialService) SaveCredentials(ctx context.Context, userID int64, req SaveCredentialsRequest) (*models.CredentialView, error) {
	id, at, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	cred := &models.ExchangeCredential{
		UserID:      userID,
		Exchange:    string(id),
		AccountType: at,
	}
	if cred.APIKey, err = s.cipher.Encrypt(req.APIKey); err != nil {
		return nil, err
	}
	if cred.APISecret, err = s.cipher.Encrypt(req.APISecret); err != nil {
		return nil, err
	}
	if req.Passphrase != "" {
		if cred.Passphrase, err = s.cipher.Encrypt(req.Passphrase); err != nil {
			return nil, err
		}
	}

	// ключ до замены нужен, чтобы выбросить его клиента из кэша
	previousKey := s.storedAPIKey(ctx, userID, id, at)

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	s.clients.Evict(id, req.APIKey, at)
	if previousKey != "" && previousKey != req.APIKey {
		s.clients.Evict(id, previousKey, at)
	}

	s.logger.Info("credentials saved",
		utils.UserID(userID),
		utils.Exchange(string(id)),
		utils.AccountType(string(at)),
	)
	if s.audit != nil {
		s.audit.Record(userAudit(models.AuditCredentialSaved, models.SeverityInfo, userID, string(id),
			"exchange credentials saved", map[string]interface{}{"account_type": string(at)}))
	}

	s.syncInBackground(userID)

	view := cred.View()
	return &view, nil
}

// DeleteCredentials удаляет привязку и выбрасывает её клиента из кэша
func (s *CredentialService) DeleteCredentials(ctx context.Context, userID int64, exchangeName, accountType string) error {
	id, err := exchange.ParseID(exchangeName)
	if err != nil {
		return err
	}
	at, err := defaultAccountType(id, accountType)
	if err != nil {
		return &ValidationError{Field: "account_type", Message: err.Error()}
	}

	previousKey := s.storedAPIKey(ctx, userID, id, at)

	if err := s.creds.Delete(ctx, userID, string(id), at); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrNoCredentials
		}
		return fmt.Errorf("delete credentials: %w", err)
	}
	if previousKey != "" {
		s.clients.Evict(id, previousKey, at)
	}

	s.logger.Info("credentials deleted", utils.UserID(userID), utils.Exchange(string(id)), utils.AccountType(string(at)))
	if s.audit != nil {
		s.audit.Record(userAudit(models.AuditCredentialDeleted, models.SeverityInfo, userID, string(id),
			"exchange credentials deleted", map[string]interface{}{"account_type": string(at)}))
	}
	return nil
}

// ListCredentials возвращает привязки пользователя без секретов
func (s *CredentialService) ListCredentials(ctx context.Context, userID int64) ([]models.CredentialView, error) {
	creds, err := s.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]models.CredentialView, 0, len(creds))
	for _, c := range creds {
		views = append(views, c.View())
	}
	return views, nil
}

// Wait дожидается фоновых синхронизаций (graceful shutdown, тесты)
func (s *CredentialService) Wait() {
	s.background.Wait()
}

// storedAPIKey возвращает расшифрованный API ключ текущей привязки или ""
func (s *CredentialService) storedAPIKey(ctx context.Context, userID int64, id exchange.ID, at models.AccountType) string {
	creds, err := s.creds.ListByUser(ctx, userID)
	if err != nil {
		return ""
	}
	for _, c := range creds {
		if c.Exchange == string(id) && c.AccountType == at && c.APIKey != "" {
			key, _, err := s.cipher.DecryptWithLegacyFallback(c.APIKey)
			if err != nil {
				return ""
			}
			return key
		}
	}
	return ""
}

func (s *CredentialService) syncInBackground(userID int64) {
	if s.syncer == nil {
		return
	}
	s.background.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()
		s.syncer.SyncOne(ctx, userID)
	})
}
