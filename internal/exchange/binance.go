package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"copytrade/internal/models"
	"copytrade/pkg/ratelimit"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

var binanceAuthCodes = map[string]bool{
	"-1022": true, // invalid signature
	"-2014": true, // api-key format invalid
	"-2015": true, // invalid api-key, ip, or permissions
}

// binanceBase - общая часть клиентов на go-binance: лимиты, метрики, ошибки
type binanceBase struct {
	id          ID
	accountType models.AccountType
	limiter     *ratelimit.MultiLimiter
}

func (b *binanceBase) Exchange() ID {
	return b.id
}

func (b *binanceBase) AccountType() models.AccountType {
	return b.accountType
}

// observe ждёт лимитер, выполняет вызов SDK и пишет метрику
func (b *binanceBase) observe(ctx context.Context, op string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		RequestDuration.WithLabelValues(string(b.id), op, outcomeLabel(err)).Observe(time.Since(start).Seconds())
	}()

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, string(b.id)); err != nil {
			return fmt.Errorf("%s %s: rate limit wait: %w", b.id, op, err)
		}
	}
	return b.wrapError(fn())
}

// wrapError переводит *common.APIError в ExchangeError
func (b *binanceBase) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		exErr := newExchangeError(b.id, strconv.FormatInt(apiErr.Code, 10), apiErr.Message, 0, binanceAuthCodes)
		exErr.Original = err
		return exErr
	}
	return fmt.Errorf("%s: %w", b.id, err)
}

// binanceSpotClient - спот Binance
type binanceSpotClient struct {
	binanceBase
	api *binance.Client
}

func newBinanceSpot(cred models.DecryptedCredential, opts Options) *binanceSpotClient {
	api := binance.NewClient(cred.APIKey, cred.APISecret)
	api.HTTPClient = opts.HTTPClient
	api.BaseURL = opts.baseURL(Binance, api.BaseURL)

	return &binanceSpotClient{
		binanceBase: binanceBase{id: Binance, accountType: models.AccountTypeSpot, limiter: opts.Limiter},
		api:         api,
	}
}

// Setup вычисляет смещение часов; SDK применяет его к подписанным запросам
func (c *binanceSpotClient) Setup(ctx context.Context) error {
	return c.observe(ctx, "server_time", func() error {
		_, err := c.api.NewSetServerTimeService().Do(ctx)
		return err
	})
}

func (c *binanceSpotClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	var account *binance.Account
	err := c.observe(ctx, "balance", func() error {
		var err error
		account, err = c.api.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	info, err := json.Marshal(account)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: Binance, AccountType: models.AccountTypeSpot, Info: info}, nil
}

func (c *binanceSpotClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	var list []*binance.Order
	err := c.observe(ctx, "open_orders", func() error {
		svc := c.api.NewListOpenOrdersService()
		if symbol != "" {
			svc = svc.Symbol(ParseSymbol(symbol).Compact())
		}
		var err error
		list, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(list))
	for _, o := range list {
		orders = append(orders, models.OpenOrder{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    o.Symbol,
			Side:      strings.ToLower(string(o.Side)),
			Type:      strings.ToLower(string(o.Type)),
			Amount:    dec(o.OrigQuantity),
			Price:     dec(o.Price),
			Filled:    dec(o.ExecutedQuantity),
			Status:    strings.ToLower(string(o.Status)),
			CreatedAt: time.UnixMilli(o.Time),
		})
	}
	return orders, nil
}

func (c *binanceSpotClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	return []RawPosition{}, nil
}

func (c *binanceSpotClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := ParseSymbol(req.Symbol).Compact()
	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(strings.ToUpper(req.Side))).
		Quantity(req.Amount.String())
	if req.Type == OrderTypeLimit {
		svc = svc.Type(binance.OrderTypeLimit).
			Price(req.Price.String()).
			TimeInForce(binance.TimeInForceTypeGTC)
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	var resp *binance.CreateOrderResponse
	err := c.observe(ctx, "create_order", func() error {
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &OrderResult{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    strings.ToLower(string(resp.Status)),
		CreatedAt: time.Now(),
	}, nil
}

func (c *binanceSpotClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid order id %q", orderID)
	}
	return c.observe(ctx, "cancel_order", func() error {
		_, err := c.api.NewCancelOrderService().Symbol(ParseSymbol(symbol).Compact()).OrderID(id).Do(ctx)
		return err
	})
}

// binanceFuturesClient - USDT-M фьючерсы Binance
type binanceFuturesClient struct {
	binanceBase
	api *futures.Client
}

func newBinanceFutures(cred models.DecryptedCredential, opts Options) *binanceFuturesClient {
	api := futures.NewClient(cred.APIKey, cred.APISecret)
	api.HTTPClient = opts.HTTPClient
	api.BaseURL = opts.baseURL(BinanceUSDM, api.BaseURL)

	return &binanceFuturesClient{
		binanceBase: binanceBase{id: BinanceUSDM, accountType: models.AccountTypeFutures, limiter: opts.Limiter},
		api:         api,
	}
}

func (c *binanceFuturesClient) Setup(ctx context.Context) error {
	return c.observe(ctx, "server_time", func() error {
		_, err := c.api.NewSetServerTimeService().Do(ctx)
		return err
	})
}

func (c *binanceFuturesClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	var balances []*futures.Balance
	err := c.observe(ctx, "balance", func() error {
		var err error
		balances, err = c.api.NewGetBalanceService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	info, err := json.Marshal(balances)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: BinanceUSDM, AccountType: models.AccountTypeFutures, Info: info}, nil
}

func (c *binanceFuturesClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	var list []*futures.Order
	err := c.observe(ctx, "open_orders", func() error {
		svc := c.api.NewListOpenOrdersService()
		if symbol != "" {
			svc = svc.Symbol(ParseSymbol(symbol).Compact())
		}
		var err error
		list, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(list))
	for _, o := range list {
		orders = append(orders, models.OpenOrder{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    o.Symbol,
			Side:      strings.ToLower(string(o.Side)),
			Type:      strings.ToLower(string(o.Type)),
			Amount:    dec(o.OrigQuantity),
			Price:     dec(o.Price),
			Filled:    dec(o.ExecutedQuantity),
			Status:    strings.ToLower(string(o.Status)),
			CreatedAt: time.UnixMilli(o.Time),
		})
	}
	return orders, nil
}

func (c *binanceFuturesClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	var risks []*futures.PositionRisk
	err := c.observe(ctx, "positions", func() error {
		var err error
		risks, err = c.api.NewGetPositionRiskService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]RawPosition, 0, len(risks))
	for _, r := range risks {
		info, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, RawPosition{Exchange: BinanceUSDM, Info: info})
	}
	return out, nil
}

func (c *binanceFuturesClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := ParseSymbol(req.Symbol).Compact()
	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(strings.ToUpper(req.Side))).
		Quantity(req.Amount.String())
	if req.Type == OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).
			Price(req.Price.String()).
			TimeInForce(futures.TimeInForceTypeGTC)
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	var resp *futures.CreateOrderResponse
	err := c.observe(ctx, "create_order", func() error {
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &OrderResult{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    strings.ToLower(string(resp.Status)),
		CreatedAt: time.Now(),
	}, nil
}

func (c *binanceFuturesClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binanceusdm: invalid order id %q", orderID)
	}
	return c.observe(ctx, "cancel_order", func() error {
		_, err := c.api.NewCancelOrderService().Symbol(ParseSymbol(symbol).Compact()).OrderID(id).Do(ctx)
		return err
	})
}
