// Package normalizer приводит ответы бирж о балансе и позициях к единому виду.
// Пакет не выполняет I/O; арифметика на shopspring/decimal.
package normalizer

import (
	"strings"

	"copytrade/internal/exchange"
	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// стейблкоины, которые Coinbase учитывает как долларовый баланс
var coinbaseStables = []string{"USDT", "USDC", "USD"}

// NormalizeBalance возвращает баланс в USDT. Отсутствующие поля считаются нулём,
// used = total - available, если биржа не отдаёт его явно. Числовые поля
// результата всегда заполнены.
func NormalizeBalance(id exchange.ID, raw *exchange.RawBalance) models.BalanceSnapshot {
	if raw == nil || len(raw.Info) == 0 {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	info := raw.Info

	switch id {
	case exchange.Binance:
		if raw.AccountType == models.AccountTypeFutures {
			return binanceFuturesBalance(info)
		}
		return binanceSpotBalance(info)
	case exchange.BinanceUSDM:
		return binanceFuturesBalance(info)
	case exchange.Bybit:
		return bybitBalance(info)
	case exchange.OKX:
		return okxBalance(info)
	case exchange.Bitget:
		if raw.AccountType == models.AccountTypeFutures {
			return bitgetFuturesBalance(info)
		}
		return bitgetSpotBalance(info)
	case exchange.Blofin:
		return blofinBalance(info)
	case exchange.BingX:
		if raw.AccountType == models.AccountTypeFutures {
			return bingxSwapBalance(info)
		}
		return bingxSpotBalance(info)
	case exchange.Coinbase:
		return coinbaseBalance(info)
	default:
		// Bitunix и неизвестные идентификаторы
		return genericBalance(info)
	}
}

// snapshot собирает результат; used == nil означает total - available
func snapshot(total, available decimal.Decimal, used *decimal.Decimal) models.BalanceSnapshot {
	u := total.Sub(available)
	if used != nil {
		u = *used
	}
	return models.BalanceSnapshot{
		TotalBalance: &total,
		Available:    &available,
		Used:         &u,
	}
}

// num читает число из JSON числа или строки; всё прочее - ноль
func num(a jsoniter.Any) decimal.Decimal {
	switch a.ValueType() {
	case jsoniter.NumberValue, jsoniter.StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(a.ToString()))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// has - поле присутствует и непустое
func has(a jsoniter.Any) bool {
	switch a.ValueType() {
	case jsoniter.NumberValue:
		return true
	case jsoniter.StringValue:
		return a.ToString() != ""
	}
	return false
}

// find возвращает элемент массива, у которого field == value
func find(list jsoniter.Any, field, value string) (jsoniter.Any, bool) {
	if list.ValueType() != jsoniter.ArrayValue {
		return nil, false
	}
	for i := 0; i < list.Size(); i++ {
		item := list.Get(i)
		if strings.EqualFold(item.Get(field).ToString(), value) {
			return item, true
		}
	}
	return nil, false
}

func binanceSpotBalance(info []byte) models.BalanceSnapshot {
	usdt, ok := find(json.Get(info, "balances"), "asset", "USDT")
	if !ok {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	free, locked := num(usdt.Get("free")), num(usdt.Get("locked"))
	return snapshot(free.Add(locked), free, &locked)
}

func binanceFuturesBalance(info []byte) models.BalanceSnapshot {
	usdt, ok := find(json.Get(info), "asset", "USDT")
	if !ok {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	total := num(usdt.Get("balance")).Add(num(usdt.Get("crossUnPnl")))
	return snapshot(total, num(usdt.Get("availableBalance")), nil)
}

func bybitBalance(info []byte) models.BalanceSnapshot {
	account := json.Get(info, "list", 0)
	if coin, ok := find(account.Get("coin"), "coin", "USDT"); ok {
		total := num(coin.Get("equity"))
		if !has(coin.Get("equity")) {
			total = num(coin.Get("walletBalance"))
		}

		var available decimal.Decimal
		if has(coin.Get("availableToWithdraw")) {
			available = num(coin.Get("availableToWithdraw"))
		} else {
			available = num(coin.Get("walletBalance")).
				Sub(num(coin.Get("totalPositionIM"))).
				Sub(num(coin.Get("totalOrderIM")))
			if available.IsNegative() {
				available = decimal.Zero
			}
		}
		return snapshot(total, available, nil)
	}
	return snapshot(num(account.Get("totalEquity")), num(account.Get("totalAvailableBalance")), nil)
}

func okxBalance(info []byte) models.BalanceSnapshot {
	account := json.Get(info)
	if usdt, ok := find(account.Get("details"), "ccy", "USDT"); ok {
		frozen := num(usdt.Get("frozenBal"))
		return snapshot(num(usdt.Get("eq")), num(usdt.Get("availBal")), &frozen)
	}
	return snapshot(num(account.Get("totalEq")), num(account.Get("availEq")), nil)
}

func bitgetSpotBalance(info []byte) models.BalanceSnapshot {
	usdt, ok := find(json.Get(info), "coin", "USDT")
	if !ok {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	available := num(usdt.Get("available"))
	used := num(usdt.Get("frozen")).Add(num(usdt.Get("locked")))
	return snapshot(available.Add(used), available, &used)
}

func bitgetFuturesBalance(info []byte) models.BalanceSnapshot {
	usdt, ok := find(json.Get(info), "marginCoin", "USDT")
	if !ok {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	total := num(usdt.Get("accountEquity"))
	if !has(usdt.Get("accountEquity")) {
		total = num(usdt.Get("usdtEquity"))
	}
	return snapshot(total, num(usdt.Get("available")), nil)
}

func blofinBalance(info []byte) models.BalanceSnapshot {
	account := json.Get(info)
	if usdt, ok := find(account.Get("details"), "currency", "USDT"); ok {
		frozen := num(usdt.Get("frozen"))
		return snapshot(num(usdt.Get("equity")), num(usdt.Get("available")), &frozen)
	}
	return snapshot(num(account.Get("totalEquity")), decimal.Zero, nil)
}

func bingxSwapBalance(info []byte) models.BalanceSnapshot {
	b := json.Get(info, "balance")
	total := num(b.Get("equity"))
	if !has(b.Get("equity")) {
		total = num(b.Get("balance"))
	}
	if has(b.Get("usedMargin")) {
		used := num(b.Get("usedMargin"))
		return snapshot(total, num(b.Get("availableMargin")), &used)
	}
	return snapshot(total, num(b.Get("availableMargin")), nil)
}

func bingxSpotBalance(info []byte) models.BalanceSnapshot {
	usdt, ok := find(json.Get(info, "balances"), "asset", "USDT")
	if !ok {
		return snapshot(decimal.Zero, decimal.Zero, nil)
	}
	free, locked := num(usdt.Get("free")), num(usdt.Get("locked"))
	return snapshot(free.Add(locked), free, &locked)
}

func coinbaseBalance(info []byte) models.BalanceSnapshot {
	accounts := json.Get(info, "accounts")
	available, hold := decimal.Zero, decimal.Zero
	for _, ccy := range coinbaseStables {
		acc, ok := find(accounts, "currency", ccy)
		if !ok {
			continue
		}
		available = available.Add(num(acc.Get("available_balance", "value")))
		hold = hold.Add(num(acc.Get("hold", "value")))
	}
	return snapshot(available.Add(hold), available, &hold)
}

// genericBalance читает total/free/used: числа, строки или {"USDT": ...}
func genericBalance(info []byte) models.BalanceSnapshot {
	root := json.Get(info)
	pick := func(field string) (decimal.Decimal, bool) {
		v := root.Get(field)
		if v.ValueType() == jsoniter.ObjectValue {
			v = v.Get("USDT")
		}
		return num(v), has(v)
	}

	total, _ := pick("total")
	free, _ := pick("free")
	if used, ok := pick("used"); ok {
		return snapshot(total, free, &used)
	}
	return snapshot(total, free, nil)
}
