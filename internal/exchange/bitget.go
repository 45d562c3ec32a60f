package exchange

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
)

const bitgetBaseURL = "https://api.bitget.com"

var bitgetAuthCodes = map[string]bool{
	"40006": true, // invalid ACCESS_KEY
	"40009": true, // sign signature error
	"40012": true, // apikey/password is incorrect
	"40037": true, // apikey does not exist
}

// bitgetClient - Bitget API v2 (spot и USDT-M фьючерсы)
type bitgetClient struct {
	restClient
	apiKey     string
	secretKey  string
	passphrase string
}

func newBitget(cred models.DecryptedCredential, accountType models.AccountType, opts Options) *bitgetClient {
	b := &bitgetClient{
		restClient: opts.rest(Bitget, accountType, bitgetBaseURL, bitgetAuthCodes),
		apiKey:     cred.APIKey,
		secretKey:  cred.APISecret,
		passphrase: cred.Passphrase,
	}
	b.clock = NewTimeSync(b.serverTime)
	return b
}

func (b *bitgetClient) doRequest(ctx context.Context, op, method, path string, query url.Values, params map[string]interface{}, signed bool) (jsoniter.RawMessage, error) {
	var body []byte
	if params != nil {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}
	qs := query.Encode()

	req, err := b.newRequest(ctx, method, path, qs, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("locale", "en-US")

	if signed {
		timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
		requestPath := path
		if qs != "" {
			requestPath += "?" + qs
		}
		req.Header.Set("ACCESS-KEY", b.apiKey)
		req.Header.Set("ACCESS-SIGN", signBase64(b.secretKey, timestamp+method+requestPath+string(body)))
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", b.passphrase)
	}

	raw, err := b.call(ctx, op, req, b.codeCheck("code", "msg", "00000"))
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

func (b *bitgetClient) serverTime(ctx context.Context) (time.Time, error) {
	data, err := b.doRequest(ctx, "server_time", http.MethodGet, "/api/v2/public/time", nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var resp struct {
		ServerTime flexString `json:"serverTime"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return time.Time{}, err
	}
	return millisTime(resp.ServerTime.String()), nil
}

func (b *bitgetClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	query := url.Values{}
	path := "/api/v2/spot/account/assets"
	if b.futures() {
		path = "/api/v2/mix/account/accounts"
		query.Set("productType", "USDT-FUTURES")
	} else {
		query.Set("coin", "USDT")
	}

	data, err := b.doRequest(ctx, "balance", http.MethodGet, path, query, nil, true)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: Bitget, AccountType: b.accountType, Info: []byte(data)}, nil
}

type bitgetOrder struct {
	OrderID   string     `json:"orderId"`
	Symbol    string     `json:"symbol"`
	Side      string     `json:"side"`
	OrderType string     `json:"orderType"`
	Size      flexString `json:"size"`
	Price     flexString `json:"price"`
	BaseVol   flexString `json:"baseVolume"`
	Status    string     `json:"status"`
	CTime     flexString `json:"cTime"`
}

func (o bitgetOrder) toModel() models.OpenOrder {
	return models.OpenOrder{
		ID:        o.OrderID,
		Symbol:    o.Symbol,
		Side:      strings.ToLower(o.Side),
		Type:      strings.ToLower(o.OrderType),
		Amount:    dec(o.Size.String()),
		Price:     dec(o.Price.String()),
		Filled:    dec(o.BaseVol.String()),
		Status:    o.Status,
		CreatedAt: millisTime(o.CTime.String()),
	}
}

func (b *bitgetClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", ParseSymbol(symbol).Compact())
	}

	var list []bitgetOrder
	if b.futures() {
		query.Set("productType", "USDT-FUTURES")
		data, err := b.doRequest(ctx, "open_orders", http.MethodGet, "/api/v2/mix/order/orders-pending", query, nil, true)
		if err != nil {
			return nil, err
		}
		var resp struct {
			EntrustedList []bitgetOrder `json:"entrustedList"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		list = resp.EntrustedList
	} else {
		data, err := b.doRequest(ctx, "open_orders", http.MethodGet, "/api/v2/spot/trade/unfilled-orders", query, nil, true)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
	}

	orders := make([]models.OpenOrder, 0, len(list))
	for _, o := range list {
		orders = append(orders, o.toModel())
	}
	return orders, nil
}

func (b *bitgetClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	if !b.futures() {
		return []RawPosition{}, nil
	}

	query := url.Values{}
	query.Set("productType", "USDT-FUTURES")
	query.Set("marginCoin", "USDT")
	data, err := b.doRequest(ctx, "positions", http.MethodGet, "/api/v2/mix/position/all-position", query, nil, true)
	if err != nil {
		return nil, err
	}

	var list []jsoniter.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return splitRaw(list, Bitget), nil
}

func (b *bitgetClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := ParseSymbol(req.Symbol).Compact()
	params := map[string]interface{}{
		"symbol":    symbol,
		"side":      req.Side,
		"orderType": orderTypeOrMarket(req.Type),
		"size":      req.Amount.String(),
	}
	if req.Type == OrderTypeLimit {
		params["price"] = req.Price.String()
		params["force"] = "gtc"
	}
	if req.ClientID != "" {
		params["clientOid"] = req.ClientID
	}

	path := "/api/v2/spot/trade/place-order"
	if b.futures() {
		path = "/api/v2/mix/order/place-order"
		params["productType"] = "USDT-FUTURES"
		params["marginMode"] = "crossed"
		params["marginCoin"] = "USDT"
		if req.ReduceOnly {
			params["reduceOnly"] = "YES"
		}
	}

	data, err := b.doRequest(ctx, "create_order", http.MethodPost, path, nil, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
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

func (b *bitgetClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := map[string]interface{}{
		"symbol":  ParseSymbol(symbol).Compact(),
		"orderId": orderID,
	}
	path := "/api/v2/spot/trade/cancel-order"
	if b.futures() {
		path = "/api/v2/mix/order/cancel-order"
		params["productType"] = "USDT-FUTURES"
		params["marginCoin"] = "USDT"
	}

	_, err := b.doRequest(ctx, "cancel_order", http.MethodPost, path, nil, params, true)
	return err
}
