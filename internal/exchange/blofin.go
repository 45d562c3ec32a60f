package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"copytrade/internal/models"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

const blofinBaseURL = "https://openapi.blofin.com"

var blofinAuthCodes = map[string]bool{
	"152401": true, // access key does not exist
	"152402": true, // access key has expired
	"152403": true, // invalid signature
	"152408": true, // passphrase error
	"152409": true, // ip not whitelisted
}

// blofinClient - BloFin, только бессрочные контракты.
// Endpoint времени сервера нет, Setup ничего не делает.
type blofinClient struct {
	restClient
	apiKey     string
	secretKey  string
	passphrase string
	nonce      func() string
}

func newBlofin(cred models.DecryptedCredential, accountType models.AccountType, opts Options) *blofinClient {
	return &blofinClient{
		restClient: opts.rest(Blofin, accountType, blofinBaseURL, blofinAuthCodes),
		apiKey:     cred.APIKey,
		secretKey:  cred.APISecret,
		passphrase: cred.Passphrase,
		nonce:      func() string { return uuid.NewString() },
	}
}

// sign: base64(hex(HMAC-SHA256(path + method + timestamp + nonce + body)))
func (b *blofinClient) sign(requestPath, method, timestamp, nonce, body string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(requestPath + method + timestamp + nonce + body))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(h.Sum(nil))))
}

func (b *blofinClient) doRequest(ctx context.Context, op, method, path string, query url.Values, params map[string]interface{}) (jsoniter.RawMessage, error) {
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

	timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
	nonce := b.nonce()
	requestPath := path
	if qs != "" {
		requestPath += "?" + qs
	}
	req.Header.Set("ACCESS-KEY", b.apiKey)
	req.Header.Set("ACCESS-SIGN", b.sign(requestPath, method, timestamp, nonce, string(body)))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-NONCE", nonce)
	req.Header.Set("ACCESS-PASSPHRASE", b.passphrase)

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

func (b *blofinClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	data, err := b.doRequest(ctx, "balance", http.MethodGet, "/api/v1/account/balance", nil, nil)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: Blofin, AccountType: b.accountType, Info: []byte(data)}, nil
}

func (b *blofinClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("instId", ParseSymbol(symbol).Join("-"))
	}

	data, err := b.doRequest(ctx, "open_orders", http.MethodGet, "/api/v1/trade/orders-pending", query, nil)
	if err != nil {
		return nil, err
	}

	var list []struct {
		OrderID    string `json:"orderId"`
		InstID     string `json:"instId"`
		Side       string `json:"side"`
		OrderType  string `json:"orderType"`
		Size       string `json:"size"`
		Price      string `json:"price"`
		FilledSize string `json:"filledSize"`
		State      string `json:"state"`
		CreateTime string `json:"createTime"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(list))
	for _, o := range list {
		orders = append(orders, models.OpenOrder{
			ID:        o.OrderID,
			Symbol:    FromExchangeSymbol(o.InstID),
			Side:      strings.ToLower(o.Side),
			Type:      strings.ToLower(o.OrderType),
			Amount:    dec(o.Size),
			Price:     dec(o.Price),
			Filled:    dec(o.FilledSize),
			Status:    o.State,
			CreatedAt: millisTime(o.CreateTime),
		})
	}
	return orders, nil
}

func (b *blofinClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	data, err := b.doRequest(ctx, "positions", http.MethodGet, "/api/v1/account/positions", nil, nil)
	if err != nil {
		return nil, err
	}

	var list []jsoniter.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return splitRaw(list, Blofin), nil
}

func (b *blofinClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	instID := ParseSymbol(req.Symbol).Join("-")
	params := map[string]interface{}{
		"instId":       instID,
		"marginMode":   "cross",
		"positionSide": "net",
		"side":         req.Side,
		"orderType":    orderTypeOrMarket(req.Type),
		"size":         req.Amount.String(),
	}
	if req.Type == OrderTypeLimit {
		params["price"] = req.Price.String()
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if req.ClientID != "" {
		params["clientOrderId"] = strings.ReplaceAll(req.ClientID, "-", "")
	}

	data, err := b.doRequest(ctx, "create_order", http.MethodPost, "/api/v1/trade/order", nil, params)
	if err != nil {
		return nil, err
	}

	var list []struct {
		OrderID string `json:"orderId"`
		Code    string `json:"code"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrEmptyResponse
	}
	if list[0].Code != "" && list[0].Code != "0" {
		return nil, newExchangeError(Blofin, list[0].Code, list[0].Msg, http.StatusOK, blofinAuthCodes)
	}

	return &OrderResult{
		ID:        list[0].OrderID,
		Symbol:    instID,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    "new",
		CreatedAt: time.Now(),
	}, nil
}

func (b *blofinClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := map[string]interface{}{"orderId": orderID}
	if symbol != "" {
		params["instId"] = ParseSymbol(symbol).Join("-")
	}
	_, err := b.doRequest(ctx, "cancel_order", http.MethodPost, "/api/v1/trade/cancel-order", nil, params)
	return err
}
