package exchange

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"copytrade/internal/models"
	"copytrade/pkg/ratelimit"
)

// Options - общие зависимости клиентов бирж
type Options struct {
	HTTPClient *http.Client
	Limiter    *ratelimit.MultiLimiter

	// BaseURLs переопределяет адреса API (тестнеты, прокси, тесты)
	BaseURLs map[ID]string

	// RecvWindow - допуск расхождения часов для бирж, которые его принимают
	RecvWindow time.Duration
}

// Factory строит клиентов по идентификатору биржи
type Factory struct {
	opts Options
}

// NewFactory создаёт фабрику клиентов
func NewFactory(opts Options) *Factory {
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(DefaultHTTPClientConfig())
	}
	if opts.RecvWindow <= 0 {
		opts.RecvWindow = 30 * time.Second
	}
	return &Factory{opts: opts}
}

// Build создаёт нового (не закэшированного) клиента.
// Каждая биржа из Supported() обязана иметь ветку в этом switch.
func (f *Factory) Build(id ID, cred models.DecryptedCredential, accountType models.AccountType) (Client, error) {
	if id.IsPlaceholder() {
		return nil, &UnsupportedExchangeError{ID: string(id), Placeholder: true}
	}
	if cred.APIKey == "" || cred.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if id.RequiresPassphrase() && cred.Passphrase == "" {
		return nil, fmt.Errorf("%s: %w", id, ErrMissingPassphrase)
	}
	if !id.SupportsAccountType(accountType) {
		return nil, fmt.Errorf("%s %s: %w", id, accountType, ErrAccountTypeNotSupported)
	}

	switch id {
	case Binance:
		if accountType == models.AccountTypeFutures {
			return newBinanceFutures(cred, f.opts), nil
		}
		return newBinanceSpot(cred, f.opts), nil
	case BinanceUSDM:
		return newBinanceFutures(cred, f.opts), nil
	case Bybit:
		return newBybit(cred, accountType, f.opts), nil
	case OKX:
		return newOKX(cred, accountType, f.opts), nil
	case Bitget:
		return newBitget(cred, accountType, f.opts), nil
	case Blofin:
		return newBlofin(cred, accountType, f.opts), nil
	case BingX:
		return newBingX(cred, accountType, f.opts), nil
	case Coinbase:
		return newCoinbase(cred, f.opts)
	default:
		return nil, &UnsupportedExchangeError{ID: string(id)}
	}
}

func (o Options) rest(id ID, accountType models.AccountType, defaultURL string, authCodes map[string]bool) restClient {
	return restClient{
		id:          id,
		accountType: accountType,
		baseURL:     o.baseURL(id, defaultURL),
		http:        o.HTTPClient,
		limiter:     o.Limiter,
		authCodes:   authCodes,
	}
}

func (o Options) baseURL(id ID, defaultURL string) string {
	if u, ok := o.BaseURLs[id]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultURL
}
