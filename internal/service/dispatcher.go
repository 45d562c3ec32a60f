package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/normalizer"
	"copytrade/internal/websocket"
	"copytrade/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// DispatcherConfig - параметры исполнения сигналов
type DispatcherConfig struct {
	// DefaultAmount - объём ордера, если сигнал его не содержит
	DefaultAmount decimal.Decimal
	// Concurrency - сколько пользователей обрабатывается одновременно
	Concurrency int
	// CallTimeout ограничивает каждый вызов биржи
	CallTimeout time.Duration
	// Timeout ограничивает весь прогон сигнала; отмена вызывающего его не прерывает
	Timeout time.Duration
}

// outcomeRecordTimeout - запись одного исхода в хранилище
const outcomeRecordTimeout = 5 * time.Second

// Dispatcher исполняет торговый сигнал для всех пользователей,
// привязавших биржу сигнала.
//
// Порядок:
//  1. Валидация сигнала (ошибка прерывает весь вызов)
//  2. Сохранение сигнала
//  3. Поиск привязок по бирже и типу счёта
//  4. Для каждого пользователя параллельно: статус → ключи → клиент → ордер
//  5. Сохранение, аудит и доставка каждого исхода
//
// Исход одного пользователя не влияет на остальных.
type Dispatcher struct {
	creds     CredentialRepositoryInterface
	users     UserRepositoryInterface
	signals   SignalRepositoryInterface
	clients   ClientProvider
	audit     Auditor
	notifier  Notifier
	decryptor *credentialDecryptor
	cfg       DispatcherConfig
	logger    *utils.Logger

	newID func() string
}

// NewDispatcher создаёт диспетчер сигналов
func NewDispatcher(
	creds CredentialRepositoryInterface,
	users UserRepositoryInterface,
	signals SignalRepositoryInterface,
	cipher CredentialCipher,
	clients ClientProvider,
	audit Auditor,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultSyncConfig().CallTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	logger := utils.L().WithComponent("dispatcher")
	return &Dispatcher{
		creds:   creds,
		users:   users,
		signals: signals,
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
		newID:  uuid.NewString,
	}
}

// SetNotifier устанавливает канал доставки исходов пользователям
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifier = n
}

// Validate проверяет сигнал и приводит биржу и тип счёта к каноническому виду.
// Возвращает UnsupportedExchangeError или ValidationError.
func (d *Dispatcher) Validate(signal *models.TradeSignal) error {
	if signal == nil {
		return &ValidationError{Field: "signal", Message: "is required"}
	}

	id, err := exchange.ParseID(signal.Exchange)
	if err != nil {
		return err
	}
	if id.IsPlaceholder() {
		return &exchange.UnsupportedExchangeError{ID: string(id), Placeholder: true}
	}

	signal.Symbol = strings.TrimSpace(signal.Symbol)
	if signal.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "is required"}
	}
	if err := utils.ValidateSymbol(signal.Symbol); err != nil {
		return &ValidationError{Field: "symbol", Message: err.Error()}
	}
	signal.Action = models.SignalAction(strings.ToLower(strings.TrimSpace(string(signal.Action))))
	if !signal.Action.Valid() {
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q (expected buy, sell or close)", signal.Action)}
	}
	if signal.Amount != nil && !signal.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if signal.Price != nil && !signal.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "must be greater than zero"}
	}

	at, err := defaultAccountType(id, string(signal.AccountType))
	if err != nil {
		return &ValidationError{Field: "account_type", Message: err.Error()}
	}
	if !id.SupportsAccountType(at) {
		return &ValidationError{Field: "account_type", Message: fmt.Sprintf("%s does not support %s accounts", id, at)}
	}
	if signal.Amount == nil && !d.cfg.DefaultAmount.IsPositive() && signal.Action != models.ActionClose {
		return &ValidationError{Field: "amount", Message: ErrDefaultAmountNil.Error()}
	}

	signal.Exchange = string(id)
	signal.AccountType = at
	return nil
}

// Dispatch исполняет сигнал. Ошибка возвращается только при невалидном
// сигнале или недоступности хранилищ; сбои отдельных пользователей
// отражаются в их исходах.
//
// Отмена ctx (например, отключение отправителя webhook) не прерывает
// исполнение: ордера уже могут стоять на биржах, и каждый исход должен
// попасть в хранилище. Прогон ограничен DispatcherConfig.Timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, signal *models.TradeSignal) ([]models.TradeOutcome, error) {
	if err := d.Validate(signal); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Timeout)
	defer cancel()
	if signal.ID == "" {
		signal.ID = d.newID()
	}
	if signal.ReceivedAt.IsZero() {
		signal.ReceivedAt = time.Now()
	}

	log := d.logger.With(
		utils.SignalID(signal.ID),
		utils.Exchange(signal.Exchange),
		utils.Symbol(signal.Symbol),
		utils.Action(string(signal.Action)),
	)

	if err := d.signals.CreateSignal(ctx, signal); err != nil {
		return nil, fmt.Errorf("persist signal: %w", err)
	}

	creds, err := d.creds.ListByExchange(ctx, signal.Exchange)
	if err != nil {
		return nil, fmt.Errorf("load credentials for %s: %w", signal.Exchange, err)
	}
	targets := make([]*models.ExchangeCredential, 0, len(creds))
	for _, c := range creds {
		if c.AccountType == signal.AccountType {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		log.Info("no linked accounts for signal")
		return []models.TradeOutcome{}, nil
	}

	userIDs := make([]int64, len(targets))
	for i, c := range targets {
		userIDs[i] = c.UserID
	}
	statuses, err := d.users.GetStatuses(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load user statuses: %w", err)
	}

	// сигнал видят только те, для кого по нему будет ордер
	if d.notifier != nil {
		if recipients := tradableUsers(userIDs, statuses); len(recipients) > 0 {
			d.notifier.Broadcast(recipients, websocket.NewTradeSignalMessage(signal))
		}
	}

	outcomes := make([]models.TradeOutcome, len(targets))
	p := pool.New().WithMaxGoroutines(d.cfg.Concurrency)
	for i, cred := range targets {
		status, known := statuses[cred.UserID]
		p.Go(func() {
			outcomes[i] = d.dispatchOne(ctx, signal, cred, status, known)
		})
	}
	p.Wait()

	counts := map[models.OutcomeStatus]int{}
	for i := range outcomes {
		d.record(signal, &outcomes[i])
		counts[outcomes[i].Status]++
	}

	log.Info("signal dispatched",
		utils.Int("success", counts[models.OutcomeSuccess]),
		utils.Int("failed", counts[models.OutcomeFailed]),
		utils.Int("skipped", counts[models.OutcomeSkipped]),
	)
	return outcomes, nil
}

// dispatchOne исполняет сигнал для одного пользователя; не паникует наружу
func (d *Dispatcher) dispatchOne(ctx context.Context, signal *models.TradeSignal, cred *models.ExchangeCredential, status models.UserStatus, known bool) (outcome models.TradeOutcome) {
	outcome = models.TradeOutcome{
		ID:       d.newID(),
		SignalID: signal.ID,
		UserID:   cred.UserID,
		Exchange: signal.Exchange,
	}
	defer func() {
		if r := recover(); r != nil {
			outcome.Status = models.OutcomeFailed
			outcome.Error = fmt.Sprintf("internal error: %v", r)
			d.logger.Error("dispatch panicked", utils.UserID(cred.UserID), utils.Any("panic", r))
		}
		outcome.CreatedAt = time.Now()
	}()

	switch {
	case !known:
		outcome.Status = models.OutcomeSkipped
		outcome.SkipReason = "user not found"
		return outcome
	case !status.CanTrade():
		outcome.Status = models.OutcomeSkipped
		outcome.SkipReason = "user status " + string(status)
		return outcome
	}

	id := exchange.ID(signal.Exchange)
	plain, err := d.decryptor.decrypt(ctx, cred)
	if err != nil {
		return failed(outcome, err)
	}
	defer plain.Wipe()

	client, err := d.clients.Get(ctx, id, plain, signal.AccountType)
	if err != nil {
		d.evictOnAuth(id, plain.APIKey, signal.AccountType, err)
		return failed(outcome, err)
	}

	req, err := d.buildOrder(ctx, client, signal, outcome.ID)
	if errors.Is(err, ErrNoOpenPosition) {
		outcome.Status = models.OutcomeSkipped
		outcome.SkipReason = err.Error()
		return outcome
	}
	if err != nil {
		d.evictOnAuth(id, plain.APIKey, signal.AccountType, err)
		return failed(outcome, err)
	}
	outcome.Side = req.Side
	outcome.OrderType = req.Type

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	res, err := client.CreateOrder(callCtx, req)
	if err != nil {
		d.evictOnAuth(id, plain.APIKey, signal.AccountType, err)
		return failed(outcome, err)
	}

	outcome.Status = models.OutcomeSuccess
	outcome.OrderID = res.ID
	return outcome
}

// buildOrder переводит сигнал в ордер.
//
// buy/sell - сторона ордера; с ценой - лимитный, без цены - рыночный.
// close на фьючерсах - противоположная сторона открытой позиции, reduce-only,
// объём позиции (если сигнал не задал свой). close на споте - продажа
// указанного объёма.
func (d *Dispatcher) buildOrder(ctx context.Context, client exchange.Client, signal *models.TradeSignal, clientID string) (exchange.OrderRequest, error) {
	req := exchange.OrderRequest{
		Symbol:   exchange.ParseSymbol(signal.Symbol).Compact(),
		Type:     exchange.OrderTypeMarket,
		ClientID: strings.ReplaceAll(clientID, "-", ""),
	}
	if signal.Price != nil {
		req.Type = exchange.OrderTypeLimit
		price := *signal.Price
		req.Price = &price
	}
	if signal.Amount != nil {
		req.Amount = *signal.Amount
	} else {
		req.Amount = d.cfg.DefaultAmount
	}

	switch signal.Action {
	case models.ActionBuy:
		req.Side = exchange.SideBuy
	case models.ActionSell:
		req.Side = exchange.SideSell
	case models.ActionClose:
		if signal.AccountType != models.AccountTypeFutures {
			req.Side = exchange.SideSell
			break
		}
		pos, err := d.openPosition(ctx, client, req.Symbol)
		if err != nil {
			return req, err
		}
		req.ReduceOnly = true
		req.Side = exchange.SideSell
		if pos.Side == models.SideShort {
			req.Side = exchange.SideBuy
		}
		if signal.Amount == nil {
			req.Amount = pos.Amount
		}
	}

	if err := req.Validate(); err != nil {
		return req, &ValidationError{Field: "order", Message: err.Error()}
	}
	return req, nil
}

func (d *Dispatcher) openPosition(ctx context.Context, client exchange.Client, symbol string) (models.PositionRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	raw, err := client.FetchPositions(callCtx)
	if err != nil {
		return models.PositionRecord{}, fmt.Errorf("fetch positions: %w", err)
	}
	for _, p := range normalizer.NormalizePositions(client.Exchange(), raw) {
		if p.Symbol == symbol && p.Status == models.PositionStatusOpen {
			return p, nil
		}
	}
	return models.PositionRecord{}, ErrNoOpenPosition
}

// record сохраняет, аудирует и доставляет исход. Ошибки только логируются.
// Запись идёт в собственном контексте: исход сохраняется, даже если
// время прогона уже вышло.
func (d *Dispatcher) record(signal *models.TradeSignal, o *models.TradeOutcome) {
	DispatchOutcomes.WithLabelValues(o.Exchange, string(o.Status)).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), outcomeRecordTimeout)
	defer cancel()

	if err := d.signals.CreateOutcome(ctx, o); err != nil {
		d.logger.Error("persist trade outcome failed",
			utils.SignalID(o.SignalID),
			utils.UserID(o.UserID),
			utils.Err(err),
		)
	}

	if d.audit != nil {
		severity := models.SeverityInfo
		switch o.Status {
		case models.OutcomeFailed:
			severity = models.SeverityError
		case models.OutcomeSkipped:
			severity = models.SeverityWarn
		}
		msg := fmt.Sprintf("%s %s: %s", signal.Action, signal.Symbol, o.Status)
		d.audit.Record(userAudit(models.AuditTradeAttempt, severity, o.UserID, o.Exchange, msg, map[string]interface{}{
			"signal_id":   o.SignalID,
			"outcome_id":  o.ID,
			"order_id":    o.OrderID,
			"side":        o.Side,
			"order_type":  o.OrderType,
			"error":       o.Error,
			"skip_reason": o.SkipReason,
		}))
	}

	if d.notifier != nil {
		d.notifier.Notify(o.UserID, websocket.NewTradeOutcomeMessage(o))
	}
}

func (d *Dispatcher) evictOnAuth(id exchange.ID, apiKey string, accountType models.AccountType, err error) {
	if exchange.IsAuthError(err) {
		d.clients.Evict(id, apiKey, accountType)
	}
}

// defaultAccountType разбирает тип счёта; пустой тип у бирж только с фьючерсами означает futures
func defaultAccountType(id exchange.ID, s string) (models.AccountType, error) {
	if strings.TrimSpace(s) == "" && !id.SupportsAccountType(models.AccountTypeSpot) {
		return models.AccountTypeFutures, nil
	}
	return models.ParseAccountType(s)
}

func tradableUsers(ids []int64, statuses map[int64]models.UserStatus) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if status, ok := statuses[id]; ok && status.CanTrade() {
			out = append(out, id)
		}
	}
	return out
}

func failed(o models.TradeOutcome, err error) models.TradeOutcome {
	o.Status = models.OutcomeFailed
	o.Error = err.Error()
	return o
}
