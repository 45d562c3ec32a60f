package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client - единая поверхность возможностей биржи для одного ключа и типа счёта
type Client interface {
	// Exchange возвращает идентификатор биржи
	Exchange() ID

	// AccountType возвращает тип счёта, для которого создан клиент
	AccountType() models.AccountType

	// Setup выполняет однократную подготовку (синхронизация времени с сервером)
	Setup(ctx context.Context) error

	// FetchBalance возвращает сырой ответ баланса
	FetchBalance(ctx context.Context) (*RawBalance, error)

	// FetchOpenOrders возвращает открытые ордера; пустой symbol - по всем символам
	FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)

	// FetchPositions возвращает позиции. Для спота - пустой список без ошибки.
	FetchPositions(ctx context.Context) ([]RawPosition, error)

	// CreateOrder размещает ордер
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CancelOrder отменяет ордер
	CancelOrder(ctx context.Context, orderID, symbol string) error
}

// RawBalance - баланс в исходном формате биржи
type RawBalance struct {
	Exchange    ID
	AccountType models.AccountType
	Info        []byte
}

// RawPosition - позиция в исходном формате биржи
type RawPosition struct {
	Exchange ID
	Info     []byte
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордера
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// OrderRequest - параметры нового ордера
type OrderRequest struct {
	Symbol     string
	Side       string // buy или sell
	Type       string // market или limit
	Amount     decimal.Decimal
	Price      *decimal.Decimal
	ReduceOnly bool
	ClientID   string
}

// Validate проверяет обязательные поля
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return errors.New("order symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid order side %q", r.Side)
	}
	if !r.Amount.IsPositive() {
		return errors.New("order amount must be positive")
	}
	if r.Type == OrderTypeLimit && (r.Price == nil || !r.Price.IsPositive()) {
		return errors.New("limit order requires a positive price")
	}
	return nil
}

// OrderResult - ответ биржи на размещение ордера
type OrderResult struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Ошибки клиентов
var (
	ErrAccountTypeNotSupported = errors.New("account type is not supported by exchange")
	ErrMissingCredentials      = errors.New("api key and secret are required")
	ErrMissingPassphrase       = errors.New("passphrase is required")
	ErrEmptyResponse           = errors.New("empty response from exchange")
)

// ExchangeError - биржа отклонила запрос
type ExchangeError struct {
	Exchange   ID
	Code       string
	Message    string
	HTTPStatus int
	Auth       bool
	Original   error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Exchange, e.Message, e.Code)
	}
	return string(e.Exchange) + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// UnsupportedExchangeError - идентификатор биржи вне поддерживаемого набора
type UnsupportedExchangeError struct {
	ID          string
	Placeholder bool
}

func (e *UnsupportedExchangeError) Error() string {
	if e.Placeholder {
		return fmt.Sprintf("exchange %q has no integration yet", e.ID)
	}
	return fmt.Sprintf("unsupported exchange %q (supported: %s)", e.ID, strings.Join(SupportedNames(), ", "))
}

// IsAuthError сообщает, что биржа отвергла ключ (неверный, истёкший, нет прав)
func IsAuthError(err error) bool {
	var exErr *ExchangeError
	return errors.As(err, &exErr) && exErr.Auth
}

// IsUnsupported сообщает об ошибке конфигурации (неизвестная биржа или заглушка)
func IsUnsupported(err error) bool {
	var u *UnsupportedExchangeError
	return errors.As(err, &u)
}

func newExchangeError(id ID, code, msg string, status int, authCodes map[string]bool) *ExchangeError {
	return &ExchangeError{
		Exchange:   id,
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Auth:       status == 401 || status == 403 || authCodes[code],
	}
}
