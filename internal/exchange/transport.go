package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"copytrade/internal/models"
	"copytrade/pkg/ratelimit"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

const maxResponseSize = 4 << 20

// envelopeCheck разбирает обёртку ответа биржи и возвращает ошибку,
// если биржа сообщила об отказе
type envelopeCheck func(body []byte, status int) error

// restClient - общая часть REST клиентов: лимитер, HTTP, метрики, часы
type restClient struct {
	id          ID
	accountType models.AccountType
	baseURL     string
	http        *http.Client
	limiter     *ratelimit.MultiLimiter
	clock       *TimeSync
	authCodes   map[string]bool
}

func (c *restClient) Exchange() ID {
	return c.id
}

func (c *restClient) AccountType() models.AccountType {
	return c.accountType
}

func (c *restClient) futures() bool {
	return c.accountType == models.AccountTypeFutures
}

// Setup синхронизирует часы, если у биржи есть endpoint времени
func (c *restClient) Setup(ctx context.Context) error {
	return c.clock.Sync(ctx)
}

func (c *restClient) now() time.Time {
	return c.clock.Now()
}

func (c *restClient) newRequest(ctx context.Context, method, path, query string, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// call выполняет запрос с учётом лимита биржи и проверяет обёртку ответа
func (c *restClient) call(ctx context.Context, op string, req *http.Request, check envelopeCheck) (body []byte, err error) {
	start := time.Now()
	defer func() {
		RequestDuration.WithLabelValues(string(c.id), op, outcomeLabel(err)).Observe(time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, string(c.id)); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit wait: %w", c.id, op, err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.id, op, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", c.id, op, err)
	}

	if err := check(body, resp.StatusCode); err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.httpError(body, resp.StatusCode)
	}
	return body, nil
}

func (c *restClient) httpError(body []byte, status int) *ExchangeError {
	msg := string(body)
	if len(msg) > 256 {
		msg = msg[:256]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return newExchangeError(c.id, strconv.Itoa(status), msg, status, c.authCodes)
}

// codeCheck - проверка для обёрток вида {"code": ..., "msg": ...}
func (c *restClient) codeCheck(codeField, msgField string, okCodes ...string) envelopeCheck {
	return func(body []byte, status int) error {
		if len(body) == 0 {
			if status >= http.StatusBadRequest {
				return c.httpError(body, status)
			}
			return nil
		}

		var env map[string]jsoniter.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			if status >= http.StatusBadRequest {
				return c.httpError(body, status)
			}
			return fmt.Errorf("%s: decode response: %w", c.id, err)
		}

		code := rawString(env[codeField])
		for _, ok := range okCodes {
			if code == ok {
				return nil
			}
		}
		if code == "" && status < http.StatusBadRequest {
			return nil
		}
		return newExchangeError(c.id, code, rawString(env[msgField]), status, c.authCodes)
	}
}

// rawString превращает JSON строку или число в строку
func rawString(raw jsoniter.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// flexString - поле, которое биржа присылает то строкой, то числом
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	*f = flexString(rawString(data))
	return nil
}

func (f flexString) String() string {
	return string(f)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func millisTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func splitRaw(list []jsoniter.RawMessage, id ID) []RawPosition {
	out := make([]RawPosition, 0, len(list))
	for _, item := range list {
		out = append(out, RawPosition{Exchange: id, Info: []byte(item)})
	}
	return out
}
