package service

import (
	"context"
	"fmt"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/normalizer"
	"copytrade/pkg/utils"

	"github.com/sourcegraph/conc"
)

// SyncConfig - параметры синхронизации аккаунтов
type SyncConfig struct {
	// CallTimeout ограничивает каждый отдельный вызов биржи
	CallTimeout time.Duration
	// ExchangeDelay - пауза между биржами одного пользователя
	ExchangeDelay time.Duration
}

// DefaultSyncConfig возвращает значения по умолчанию
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		CallTimeout:   10 * time.Second,
		ExchangeDelay: 300 * time.Millisecond,
	}
}

// SyncService собирает балансы, открытые ордера и позиции пользователя
// по всем привязанным биржам.
//
// Каждая привязка обрабатывается изолированно: ошибка ключей, клиента или
// баланса превращается в строку результата с заполненным Error, остальные
// биржи продолжают синхронизироваться.
type SyncService struct {
	creds     CredentialRepositoryInterface
	clients   ClientProvider
	audit     Auditor
	decryptor *credentialDecryptor
	cfg       SyncConfig
	logger    *utils.Logger

	// sleep подменяется в тестах
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService создаёт сервис синхронизации
func NewSyncService(
	creds CredentialRepositoryInterface,
	cipher CredentialCipher,
	clients ClientProvider,
	audit Auditor,
	cfg SyncConfig,
) *SyncService {
	def := DefaultSyncConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.ExchangeDelay < 0 {
		cfg.ExchangeDelay = 0
	}

	logger := utils.L().WithComponent("sync")
	return &SyncService{
		creds:   creds,
		clients: clients,
		audit:   audit,
		decryptor: &credentialDecryptor{
			cipher: cipher,
			repo:   creds,
			audit:  audit,
			logger: logger,
		},
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// SyncUser синхронизирует все привязки пользователя.
//
// Возвращает по одной строке на каждую привязку, кроме бирж-заглушек.
// Ошибка возвращается только если не удалось загрузить список привязок.
func (s *SyncService) SyncUser(ctx context.Context, userID int64) ([]models.ExchangeSyncResult, error) {
	creds, err := s.creds.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credentials of user %d: %w", userID, err)
	}

	results := make([]models.ExchangeSyncResult, 0, len(creds))
	processed := 0

	for _, cred := range creds {
		id, err := exchange.ParseID(cred.Exchange)
		if err == nil && id.IsPlaceholder() {
			s.logger.Debug("skip placeholder exchange", utils.UserID(userID), utils.Exchange(cred.Exchange))
			continue
		}

		if processed > 0 && s.cfg.ExchangeDelay > 0 {
			if err := s.sleep(ctx, s.cfg.ExchangeDelay); err != nil {
				return results, nil
			}
		}
		processed++

		var result models.ExchangeSyncResult
		if err != nil {
			result = errorResult(cred.Exchange, cred.AccountType, err)
		} else {
			result = s.syncExchange(ctx, cred, id)
		}

		status := "ok"
		if result.Error != nil {
			status = "error"
			s.auditSyncError(userID, result)
		}
		SyncResults.WithLabelValues(cred.Exchange, status).Inc()
		results = append(results, result)
	}

	return results, nil
}

func (s *SyncService) syncExchange(ctx context.Context, cred *models.ExchangeCredential, id exchange.ID) models.ExchangeSyncResult {
	log := s.logger.With(utils.UserID(cred.UserID), utils.Exchange(cred.Exchange), utils.AccountType(string(cred.AccountType)))

	plain, err := s.decryptor.decrypt(ctx, cred)
	if err != nil {
		log.Warn("credential decryption failed", utils.Err(err))
		return errorResult(cred.Exchange, cred.AccountType, err)
	}
	defer plain.Wipe()

	client, err := s.clients.Get(ctx, id, plain, cred.AccountType)
	if err != nil {
		s.evictOnAuth(id, plain.APIKey, cred.AccountType, err)
		log.Warn("exchange client unavailable", utils.Err(err))
		return errorResult(cred.Exchange, cred.AccountType, err)
	}

	result := models.ExchangeSyncResult{
		Exchange:      cred.Exchange,
		Type:          cred.AccountType,
		OpenOrders:    []models.OpenOrder{},
		OpenPositions: []models.PositionRecord{},
	}

	var (
		wg        conc.WaitGroup
		balErr    error
		ordersErr error
		posErr    error
	)

	wg.Go(func() {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		raw, err := client.FetchBalance(callCtx)
		if err != nil {
			balErr = err
			return
		}
		snap := normalizer.NormalizeBalance(id, raw)
		result.Balance = &snap
	})

	wg.Go(func() {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		orders, err := client.FetchOpenOrders(callCtx, "")
		if err != nil {
			ordersErr = err
			return
		}
		if orders != nil {
			result.OpenOrders = orders
		}
	})

	if cred.AccountType == models.AccountTypeFutures {
		wg.Go(func() {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()

			raw, err := client.FetchPositions(callCtx)
			if err != nil {
				posErr = err
				return
			}
			result.OpenPositions = normalizer.NormalizePositions(id, raw)
		})
	}

	wg.Wait()

	if ordersErr != nil {
		log.Warn("open orders fetch failed", utils.Err(ordersErr))
	}
	if posErr != nil {
		log.Warn("positions fetch failed", utils.Err(posErr))
	}
	for _, e := range []error{balErr, ordersErr, posErr} {
		if e != nil && s.evictOnAuth(id, plain.APIKey, cred.AccountType, e) {
			break
		}
	}

	if balErr != nil {
		log.Warn("balance fetch failed", utils.Err(balErr))
		result.Balance = models.FailedBalance(balErr)
		msg := balErr.Error()
		result.Error = &msg
	}

	result.SyncedAt = time.Now()
	return result
}

// evictOnAuth выбрасывает закэшированного клиента, если биржа отвергла ключ
func (s *SyncService) evictOnAuth(id exchange.ID, apiKey string, accountType models.AccountType, err error) bool {
	if !exchange.IsAuthError(err) {
		return false
	}
	s.clients.Evict(id, apiKey, accountType)
	return true
}

func (s *SyncService) auditSyncError(userID int64, result models.ExchangeSyncResult) {
	if s.audit == nil {
		return
	}
	s.audit.Record(userAudit(models.AuditSyncError, models.SeverityWarn, userID, result.Exchange, *result.Error,
		map[string]interface{}{"account_type": string(result.Type)}))
}

func errorResult(exchangeName string, accountType models.AccountType, err error) models.ExchangeSyncResult {
	msg := err.Error()
	return models.ExchangeSyncResult{
		Exchange:      exchangeName,
		Type:          accountType,
		OpenOrders:    []models.OpenOrder{},
		OpenPositions: []models.PositionRecord{},
		Error:         &msg,
		SyncedAt:      time.Now(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
