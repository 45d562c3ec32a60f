package exchange

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"copytrade/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	coinbaseBaseURL  = "https://api.coinbase.com"
	coinbaseTokenTTL = 2 * time.Minute
)

// coinbaseClient - Coinbase Advanced Trade, только спот.
// Каждый запрос подписывается отдельным ES256 JWT (ключи CDP).
type coinbaseClient struct {
	restClient
	keyName    string
	privateKey *ecdsa.PrivateKey
}

func newCoinbase(cred models.DecryptedCredential, opts Options) (Client, error) {
	pemKey := strings.ReplaceAll(cred.APISecret, `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, &ExchangeError{
			Exchange: Coinbase,
			Message:  "api secret is not an EC private key",
			Auth:     true,
			Original: err,
		}
	}

	c := &coinbaseClient{
		restClient: opts.rest(Coinbase, models.AccountTypeSpot, coinbaseBaseURL, nil),
		keyName:    cred.APIKey,
		privateKey: key,
	}
	c.clock = NewTimeSync(c.serverTime)
	return c, nil
}

// token строит JWT для одного запроса; uri - "METHOD host/path"
func (c *coinbaseClient) token(method, path string) (string, error) {
	host := strings.TrimPrefix(strings.TrimPrefix(c.baseURL, "https://"), "http://")
	now := c.now()

	claims := jwt.MapClaims{
		"sub": c.keyName,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(coinbaseTokenTTL).Unix(),
		"uri": method + " " + host + path,
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = c.keyName
	tok.Header["nonce"] = hex.EncodeToString(nonce)
	return tok.SignedString(c.privateKey)
}

func (c *coinbaseClient) doRequest(ctx context.Context, op, method, path string, query url.Values, params interface{}, signed bool) ([]byte, error) {
	var body []byte
	if params != nil {
		var err error
		if body, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}

	req, err := c.newRequest(ctx, method, path, query.Encode(), body)
	if err != nil {
		return nil, err
	}

	if signed {
		tok, err := c.token(method, path)
		if err != nil {
			return nil, fmt.Errorf("coinbase: sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	return c.call(ctx, op, req, c.codeCheck("error", "message"))
}

func (c *coinbaseClient) serverTime(ctx context.Context) (time.Time, error) {
	raw, err := c.doRequest(ctx, "server_time", http.MethodGet, "/api/v3/brokerage/time", nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}
	var resp struct {
		EpochMillis flexString `json:"epochMillis"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return time.Time{}, err
	}
	return millisTime(resp.EpochMillis.String()), nil
}

func (c *coinbaseClient) FetchBalance(ctx context.Context) (*RawBalance, error) {
	query := url.Values{}
	query.Set("limit", "250")
	raw, err := c.doRequest(ctx, "balance", http.MethodGet, "/api/v3/brokerage/accounts", query, nil, true)
	if err != nil {
		return nil, err
	}
	return &RawBalance{Exchange: Coinbase, AccountType: models.AccountTypeSpot, Info: raw}, nil
}

func (c *coinbaseClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	query := url.Values{}
	query.Set("order_status", "OPEN")
	if symbol != "" {
		query.Set("product_ids", ParseSymbol(symbol).Join("-"))
	}

	raw, err := c.doRequest(ctx, "open_orders", http.MethodGet, "/api/v3/brokerage/orders/historical/batch", query, nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Orders []struct {
			OrderID            string              `json:"order_id"`
			ProductID          string              `json:"product_id"`
			Side               string              `json:"side"`
			OrderType          string              `json:"order_type"`
			Status             string              `json:"status"`
			FilledSize         string              `json:"filled_size"`
			AverageFilledPrice string              `json:"average_filled_price"`
			CreatedTime        string              `json:"created_time"`
			Configuration      coinbaseOrderConfig `json:"order_configuration"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	orders := make([]models.OpenOrder, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		size, price := o.Configuration.sizeAndPrice()
		createdAt, _ := time.Parse(time.RFC3339Nano, o.CreatedTime)
		orders = append(orders, models.OpenOrder{
			ID:        o.OrderID,
			Symbol:    FromExchangeSymbol(o.ProductID),
			Side:      strings.ToLower(o.Side),
			Type:      strings.ToLower(o.OrderType),
			Amount:    dec(size),
			Price:     dec(price),
			Filled:    dec(o.FilledSize),
			Status:    strings.ToLower(o.Status),
			CreatedAt: createdAt,
		})
	}
	return orders, nil
}

// FetchPositions - у спотового счёта позиций нет
func (c *coinbaseClient) FetchPositions(ctx context.Context) ([]RawPosition, error) {
	return []RawPosition{}, nil
}

type coinbaseMarketIOC struct {
	BaseSize string `json:"base_size"`
}

type coinbaseLimitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
}

type coinbaseOrderConfig struct {
	MarketIOC *coinbaseMarketIOC `json:"market_market_ioc,omitempty"`
	LimitGTC  *coinbaseLimitGTC  `json:"limit_limit_gtc,omitempty"`
}

func (cfg coinbaseOrderConfig) sizeAndPrice() (string, string) {
	switch {
	case cfg.LimitGTC != nil:
		return cfg.LimitGTC.BaseSize, cfg.LimitGTC.LimitPrice
	case cfg.MarketIOC != nil:
		return cfg.MarketIOC.BaseSize, ""
	}
	return "", ""
}

func (c *coinbaseClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	productID := ParseSymbol(req.Symbol).Join("-")
	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	var cfg coinbaseOrderConfig
	if req.Type == OrderTypeLimit {
		cfg.LimitGTC = &coinbaseLimitGTC{BaseSize: req.Amount.String(), LimitPrice: req.Price.String()}
	} else {
		cfg.MarketIOC = &coinbaseMarketIOC{BaseSize: req.Amount.String()}
	}

	params := map[string]interface{}{
		"client_order_id":     clientID,
		"product_id":          productID,
		"side":                strings.ToUpper(req.Side),
		"order_configuration": cfg,
	}

	raw, err := c.doRequest(ctx, "create_order", http.MethodPost, "/api/v3/brokerage/orders", nil, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success         bool `json:"success"`
		SuccessResponse struct {
			OrderID string `json:"order_id"`
		} `json:"success_response"`
		ErrorResponse struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"error_response"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, newExchangeError(Coinbase, resp.ErrorResponse.Error, resp.ErrorResponse.Message, http.StatusOK, nil)
	}

	return &OrderResult{
		ID:        resp.SuccessResponse.OrderID,
		Symbol:    productID,
		Side:      req.Side,
		Type:      orderTypeOrMarket(req.Type),
		Status:    "new",
		CreatedAt: time.Now(),
	}, nil
}

func (c *coinbaseClient) CancelOrder(ctx context.Context, orderID, _ string) error {
	raw, err := c.doRequest(ctx, "cancel_order", http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", nil, map[string]interface{}{
		"order_ids": []string{orderID},
	}, true)
	if err != nil {
		return err
	}

	var resp struct {
		Results []struct {
			Success       bool   `json:"success"`
			FailureReason string `json:"failure_reason"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return err
	}
	if len(resp.Results) > 0 && !resp.Results[0].Success {
		return newExchangeError(Coinbase, resp.Results[0].FailureReason, "cancel rejected", http.StatusOK, nil)
	}
	return nil
}
