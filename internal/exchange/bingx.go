package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
)

const bingxBaseURL = "https://open-api.bingx.com"

var bingxAuthCodes = map[string]bool{
	"100001": true, // signature verification failed
	"100413": true, // incorrect apiKey
	"100419": true, // ip not whitelisted
}

// bingxClient - BingX: бессрочные контракты (swap v2) и спот (v1).
// Все параметры, включая timestamp, передаются в query и подписываются целиком.
type bingxClient struct {
	restClient
	apiKey     string
	secretKey  string
	recvWindow string
}

func newBingX(cred models.DecryptedCredential, accountType models.AccountType, opts Options) *bingxClient {
	b := &bingxClient{
		restClient: opts.rest(BingX, accountType, bingxBaseURL, bingxAuthCodes),
		apiKey:     cred.APIKey,
		secretKey:  cred.APISecret,
		recvWindow: strconv.FormatInt(opts.RecvWindow.Milliseconds(), 10),
	}
	b.clock = NewTimeSync(b.serverTime)
	return b
}

// sign создает подпись для BingX API
func (b *bingxClient) sign(params string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(params))
	return hex.EncodeToString(h.Sum(nil))
}

// bingxSymbol: BTC-USDT
func bingxSymbol(symbol string) string {
	return ParseSymbol(symbol).Join("-")
}

func (b *bingxClient) doRequest(ctx context.Context, op, method, endpoint string, params url.Values, signed bool) (jsoniter.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}

	qs := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		params.Set("recvWindow", b.recvWindow)
		qs = params.Encode()
		qs += "&signature=" + b.sign(qs)
	}

	req, err := b.newRequest(ctx, method, endpoint, qs, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-BX-APIKEY", b.apiKey)
	}

	raw, err := b.call(ctx, op, req, b.codeCheck("code", "msg", "0"))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data jsoniter.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (b *bingxClient) serverTime(ctx context.Context) (time.Time, error) {
	data, err := b.doRequest(ctx, "server_time", http.MethodGet, "/openApi/swap/v2/server/time", nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (b *bingxClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	path := "/openApi/spot/v1/account/balance"
	if b.futures() {
		path = "/openApi/swap/v2/user/balance"
	}

	data, err := b.doRequest(ctx, "balance", http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: BingX, AccountType: b.accountType, Info: []byte(data)}, nil
}

type bingxOrder struct {
	OrderID     flexString `json:"orderId"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	Type        string     `json:"type"`
	OrigQty     flexString `json:"origQty"`
	Price       flexString `json:"price"`
	ExecutedQty flexString `json:"executedQty"`
	Status      string     `json:"status"`
	Time        flexString `json:"time"`
}

func (b *bingxClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", bingxSymbol(symbol))
	}

	path := "/openApi/spot/v1/trade/openOrders"
	if b.futures() {
		path = "/openApi/swap/v2/trade/openOrders"
	}

	data, err := b.doRequest(ctx, "open_orders", http.MethodGet, path, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Orders []bingxOrder `json:"orders"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		orders = append(orders, models.OpenOrder{
			ID:        o.OrderID.String(),
			Symbol:    FromExchangeSymbol(o.Symbol),
			Side:      strings.ToLower(o.Side),
			Type:      strings.ToLower(o.Type),
			Amount:    dec(o.OrigQty.String()),
			Price:     dec(o.Price.String()),
			Filled:    dec(o.ExecutedQty.String()),
			Status:    strings.ToLower(o.Status),
			CreatedAt: millisTime(o.Time.String()),
		})
	}
	return orders, nil
}

func (b *bingxClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	if !b.futures() {
		return []RawPosition{}, nil
	}

	data, err := b.doRequest(ctx, "positions", http.MethodGet, "/openApi/swap/v2/user/positions", nil, true)
	if err != nil {
		return nil, err
	}

	var list []jsoniter.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return splitRaw(list, BingX), nil
}

func (b *bingxClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := bingxSymbol(req.Symbol)
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", strings.ToUpper(orderTypeOrMarket(req.Type)))
	params.Set("quantity", req.Amount.String())
	if req.Type == OrderTypeLimit {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if req.ClientID != "" {
		params.Set("clientOrderID", req.ClientID)
	}

	path := "/openApi/spot/v1/trade/order"
	if b.futures() {
		path = "/openApi/swap/v2/trade/order"
		params.Set("positionSide", "BOTH")
		if req.ReduceOnly {
			params.Set("reduceOnly", "true")
		}
	}

	data, err := b.doRequest(ctx, "create_order", http.MethodPost, path, params, true)
	if err != nil {
		return nil, err
	}

	// swap оборачивает ордер в {"order": {...}}, spot отдаёт его напрямую
	var resp struct {
		OrderID flexString `json:"orderId"`
		Order   *struct {
			OrderID flexString `json:"orderId"`
		} `json:"order"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	orderID := resp.OrderID.String()
	if resp.Order != nil {
		orderID = resp.Order.OrderID.String()
	}

	return &OrderResult{
		ID:        orderID,
		Symbol:    symbol,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    "new",
		CreatedAt: time.Now(),
	}, nil
}

func (b *bingxClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := url.Values{}
	params.Set("symbol", bingxSymbol(symbol))
	params.Set("orderId", orderID)

	if b.futures() {
		_, err := b.doRequest(ctx, "cancel_order", http.MethodDelete, "/openApi/swap/v2/trade/order", params, true)
		return err
	}
	_, err := b.doRequest(ctx, "cancel_order", http.MethodPost, "/openApi/spot/v1/trade/cancel", params, true)
	return err
}
