package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
)

const okxBaseURL = "https://www.okx.com"

var okxAuthCodes = map[string]bool{
	"50100": true, // account frozen
	"50101": true, // api key does not match environment
	"50103": true, // OK-ACCESS-KEY header required
	"50104": true, // OK-ACCESS-PASSPHRASE header required
	"50105": true, // wrong passphrase
	"50111": true, // invalid OK-ACCESS-KEY
	"50113": true, // invalid sign
	"50119": true, // api key does not exist
}

// okxClient - OKX API v5
type okxClient struct {
	restClient
	apiKey     string
	secretKey  string
	passphrase string
}

func newOKX(cred models.DecryptedCredential, accountType models.AccountType, opts Options) *okxClient {
	o := &okxClient{
		restClient: opts.rest(OKX, accountType, okxBaseURL, okxAuthCodes),
		apiKey:     cred.APIKey,
		secretKey:  cred.APISecret,
		passphrase: cred.Passphrase,
	}
	o.clock = NewTimeSync(o.serverTime)
	return o
}

// signBase64 - base64(HMAC-SHA256(secret, payload)), схема OKX и Bitget
func signBase64(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (o *okxClient) instType() string {
	if o.futures() {
		return "SWAP"
	}
	return "SPOT"
}

// instID: BTC-USDT для спота, BTC-USDT-SWAP для бессрочных контрактов
func (o *okxClient) instID(symbol string) string {
	id := ParseSymbol(symbol).Join("-")
	if o.futures() {
		id += "-SWAP"
	}
	return id
}

// doRequest выполняет запрос и возвращает поле data
func (o *okxClient) doRequest(ctx context.Context, op, method, path string, query url.Values, params map[string]interface{}, signed bool) (jsoniter.RawMessage, error) {
	var body []byte
	if params != nil {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}
	qs := query.Encode()

	req, err := o.newRequest(ctx, method, path, qs, body)
	if err != nil {
		return nil, err
	}

	if signed {
		timestamp := okxTimestamp(o.now())
		requestPath := path
		if qs != "" {
			requestPath += "?" + qs
		}
		req.Header.Set("OK-ACCESS-KEY", o.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", signBase64(o.secretKey, timestamp+method+requestPath+string(body)))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
	}

	raw, err := o.call(ctx, op, req, o.codeCheck("code", "msg", "0"))
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

func (o *okxClient) serverTime(ctx context.Context) (time.Time, error) {
	data, err := o.doRequest(ctx, "server_time", http.MethodGet, "/api/v5/public/time", nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var resp []struct {
		Ts string `json:"ts"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return time.Time{}, err
	}
	if len(resp) == 0 {
		return time.Time{}, ErrEmptyResponse
	}
	return millisTime(resp[0].Ts), nil
}

func (o *okxClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	data, err := o.doRequest(ctx, "balance", http.MethodGet, "/api/v5/account/balance", nil, nil, true)
	if err != nil {
		return nil, err
	}

	var list []jsoniter.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return &RawBalance{Exchange: OKX, AccountType: o.accountType}, nil
	}
	return &RawBalance{Exchange: OKX, AccountType: o.accountType, Info: []byte(list[0])}, nil
}

func (o *okxClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	query := url.Values{}
	query.Set("instType", o.instType())
	if symbol != "" {
		query.Set("instId", o.instID(symbol))
	}

	data, err := o.doRequest(ctx, "open_orders", http.MethodGet, "/api/v5/trade/orders-pending", query, nil, true)
	if err != nil {
		return nil, err
	}

	var list []struct {
		OrdID     string `json:"ordId"`
		InstID    string `json:"instId"`
		Side      string `json:"side"`
		OrdType   string `json:"ordType"`
		Sz        string `json:"sz"`
		Px        string `json:"px"`
		AccFillSz string `json:"accFillSz"`
		State     string `json:"state"`
		CTime     string `json:"cTime"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(list))
	for _, ord := range list {
		orders = append(orders, models.OpenOrder{
			ID:        ord.OrdID,
			Symbol:    FromExchangeSymbol(ord.InstID),
			Side:      strings.ToLower(ord.Side),
			Type:      strings.ToLower(ord.OrdType),
			Amount:    dec(ord.Sz),
			Price:     dec(ord.Px),
			Filled:    dec(ord.AccFillSz),
			Status:    ord.State,
			CreatedAt: millisTime(ord.CTime),
		})
	}
	return orders, nil
}

func (o *okxClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	if !o.futures() {
		return []RawPosition{}, nil
	}

	query := url.Values{}
	query.Set("instType", "SWAP")
	data, err := o.doRequest(ctx, "positions", http.MethodGet, "/api/v5/account/positions", query, nil, true)
	if err != nil {
		return nil, err
	}

	var list []jsoniter.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return splitRaw(list, OKX), nil
}

func (o *okxClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	instID := o.instID(req.Symbol)
	params := map[string]interface{}{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    req.Side,
		"ordType": orderTypeOrMarket(req.Type),
		"sz":      req.Amount.String(),
	}
	if o.futures() {
		params["tdMode"] = "cross"
		if req.ReduceOnly {
			params["reduceOnly"] = true
		}
	} else if req.Type != OrderTypeLimit {
		params["tgtCcy"] = "base_ccy"
	}
	if req.Type == OrderTypeLimit {
		params["px"] = req.Price.String()
	}
	if req.ClientID != "" {
		params["clOrdId"] = strings.ReplaceAll(req.ClientID, "-", "")
	}

	data, err := o.doRequest(ctx, "create_order", http.MethodPost, "/api/v5/trade/order", nil, params, true)
	if err != nil {
		return nil, err
	}

	var list []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrEmptyResponse
	}
	if list[0].SCode != "" && list[0].SCode != "0" {
		return nil, newExchangeError(OKX, list[0].SCode, list[0].SMsg, http.StatusOK, okxAuthCodes)
	}

	return &OrderResult{
		ID:        list[0].OrdID,
		Symbol:    instID,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    "new",
		CreatedAt: time.Now(),
	}, nil
}

func (o *okxClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	_, err := o.doRequest(ctx, "cancel_order", http.MethodPost, "/api/v5/trade/cancel-order", nil, map[string]interface{}{
		"instId": o.instID(symbol),
		"ordId":  orderID,
	}, true)
	return err
}

// okxTimestamp - ISO8601 с миллисекундами, как требует OKX
func okxTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
