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

const bybitBaseURL = "https://api.bybit.com"

var bybitAuthCodes = map[string]bool{
	"10003": true, // invalid api key
	"10004": true, // sign error
	"10005": true, // permission denied
	"10007": true, // user authentication failed
	"10010": true, // unmatched ip
	"33004": true, // api key expired
}

// bybitClient - Bybit v5, единый торговый аккаунт (UNIFIED)
type bybitClient struct {
	restClient
	apiKey     string
	secretKey  string
	recvWindow string
}

func newBybit(cred models.DecryptedCredential, accountType models.AccountType, opts Options) *bybitClient {
	b := &bybitClient{
		restClient: opts.rest(Bybit, accountType, bybitBaseURL, bybitAuthCodes),
		apiKey:     cred.APIKey,
		secretKey:  cred.APISecret,
		recvWindow: strconv.FormatInt(opts.RecvWindow.Milliseconds(), 10),
	}
	b.clock = NewTimeSync(b.serverTime)
	return b
}

// sign создает подпись для запроса к Bybit API v5
func (b *bybitClient) sign(timestamp, payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(timestamp + b.apiKey + b.recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *bybitClient) category() string {
	if b.futures() {
		return "linear"
	}
	return "spot"
}

// doRequest выполняет запрос и возвращает поле result
func (b *bybitClient) doRequest(ctx context.Context, op, method, endpoint string, params map[string]interface{}, signed bool) (jsoniter.RawMessage, error) {
	var query string
	var body []byte

	if method == http.MethodGet {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, toString(v))
		}
		query = values.Encode()
	} else if len(params) > 0 {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}

	req, err := b.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return nil, err
	}

	if signed {
		timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		payload := query
		if method != http.MethodGet {
			payload = string(body)
		}
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", b.sign(timestamp, payload))
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", b.recvWindow)
	}

	raw, err := b.call(ctx, op, req, b.codeCheck("retCode", "retMsg", "0"))
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result jsoniter.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (b *bybitClient) serverTime(ctx context.Context) (time.Time, error) {
	req, err := b.newRequest(ctx, http.MethodGet, "/v5/market/time", "", nil)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := b.call(ctx, "server_time", req, b.codeCheck("retCode", "retMsg", "0"))
	if err != nil {
		return time.Time{}, err
	}

	var resp struct {
		Time int64 `json:"time"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.Time), nil
}

func (b *bybitClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	result, err := b.doRequest(ctx, "balance", http.MethodGet, "/v5/account/wallet-balance", map[string]interface{}{
		"accountType": "UNIFIED",
	}, true)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: Bybit, AccountType: b.accountType, Info: []byte(result)}, nil
}

func (b *bybitClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := map[string]interface{}{"category": b.category()}
	if symbol != "" {
		params["symbol"] = ParseSymbol(symbol).Compact()
	} else if b.futures() {
		params["settleCoin"] = "USDT"
	}

	result, err := b.doRequest(ctx, "open_orders", http.MethodGet, "/v5/order/realtime", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		List []struct {
			OrderID     string `json:"orderId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			OrderType   string `json:"orderType"`
			Qty         string `json:"qty"`
			Price       string `json:"price"`
			CumExecQty  string `json:"cumExecQty"`
			OrderStatus string `json:"orderStatus"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(resp.List))
	for _, o := range resp.List {
		orders = append(orders, models.OpenOrder{
			ID:        o.OrderID,
			Symbol:    o.Symbol,
			Side:      strings.ToLower(o.Side),
			Type:      strings.ToLower(o.OrderType),
			Amount:    dec(o.Qty),
			Price:     dec(o.Price),
			Filled:    dec(o.CumExecQty),
			Status:    strings.ToLower(o.OrderStatus),
			CreatedAt: millisTime(o.CreatedTime),
		})
	}
	return orders, nil
}

func (b *bybitClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	if !b.futures() {
		return []RawPosition{}, nil
	}

	result, err := b.doRequest(ctx, "positions", http.MethodGet, "/v5/position/list", map[string]interface{}{
		"category":   "linear",
		"settleCoin": "USDT",
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		List []jsoniter.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}
	return splitRaw(resp.List, Bybit), nil
}

func (b *bybitClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := ParseSymbol(req.Symbol).Compact()
	params := map[string]interface{}{
		"category":  b.category(),
		"symbol":    symbol,
		"side":      titleSide(req.Side),
		"orderType": "Market",
		"qty":       req.Amount.String(),
	}
	if req.Type == OrderTypeLimit {
		params["orderType"] = "Limit"
		params["price"] = req.Price.String()
		params["timeInForce"] = "GTC"
	}
	if b.futures() {
		if req.ReduceOnly {
			params["reduceOnly"] = true
		}
	} else {
		params["marketUnit"] = "baseCoin"
	}
	if req.ClientID != "" {
		params["orderLinkId"] = req.ClientID
	}

	result, err := b.doRequest(ctx, "create_order", http.MethodPost, "/v5/order/create", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}

	return &OrderResult{
		ID:        resp.OrderID,
		Symbol:    symbol,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    "new",
		CreatedAt: time.Now(),
	}, nil
}

func (b *bybitClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	_, err := b.doRequest(ctx, "cancel_order", http.MethodPost, "/v5/order/cancel", map[string]interface{}{
		"category": b.category(),
		"symbol":   ParseSymbol(symbol).Compact(),
		"orderId":  orderID,
	}, true)
	return err
}

// titleSide: buy -> Buy
func titleSide(side string) string {
	if side == SideSell {
		return "Sell"
	}
	return "Buy"
}

func orderTypeOrMarket(t string) string {
	if t == OrderTypeLimit {
		return OrderTypeLimit
	}
	return OrderTypeMarket
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case interface{ String() string }:
		return val.String()
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}
