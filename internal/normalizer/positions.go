package normalizer

import (
	"strings"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// positionFields - имена полей позиции в формате конкретной биржи
type positionFields struct {
	symbol   string
	size     string
	side     string
	entry    string
	mark     string
	upnl     string
	leverage string
	realized string
	opened   string
}

var genericPositionFields = positionFields{
	symbol:   "symbol",
	size:     "contracts",
	side:     "side",
	entry:    "entryPrice",
	mark:     "markPrice",
	upnl:     "unrealizedPnl",
	leverage: "leverage",
	realized: "realizedPnl",
	opened:   "timestamp",
}

func fieldsFor(id exchange.ID) positionFields {
	switch id {
	case exchange.BinanceUSDM, exchange.Binance:
		return positionFields{
			symbol: "symbol", size: "positionAmt", side: "positionSide",
			entry: "entryPrice", mark: "markPrice", upnl: "unRealizedProfit",
			leverage: "leverage", opened: "updateTime",
		}
	case exchange.Bybit:
		return positionFields{
			symbol: "symbol", size: "size", side: "side",
			entry: "avgPrice", mark: "markPrice", upnl: "unrealisedPnl",
			leverage: "leverage", realized: "cumRealisedPnl", opened: "createdTime",
		}
	case exchange.OKX:
		return positionFields{
			symbol: "instId", size: "pos", side: "posSide",
			entry: "avgPx", mark: "markPx", upnl: "upl",
			leverage: "lever", realized: "realizedPnl", opened: "cTime",
		}
	case exchange.Bitget:
		return positionFields{
			symbol: "symbol", size: "total", side: "holdSide",
			entry: "openPriceAvg", mark: "markPrice", upnl: "unrealizedPL",
			leverage: "leverage", realized: "achievedProfits", opened: "cTime",
		}
	case exchange.Blofin:
		return positionFields{
			symbol: "instId", size: "positions", side: "positionSide",
			entry: "averagePrice", mark: "markPrice", upnl: "unrealizedPnl",
			leverage: "leverage", opened: "createTime",
		}
	case exchange.BingX:
		return positionFields{
			symbol: "symbol", size: "positionAmt", side: "positionSide",
			entry: "avgPrice", mark: "markPrice", upnl: "unrealizedProfit",
			leverage: "leverage", realized: "realisedProfit", opened: "updateTime",
		}
	default:
		// Coinbase (только спот), Bitunix и неизвестные идентификаторы
		return genericPositionFields
	}
}

// NormalizePositions приводит позиции к общему виду.
// Позиции нулевого размера отбрасываются, направление - long или short.
func NormalizePositions(id exchange.ID, raw []exchange.RawPosition) []models.PositionRecord {
	f := fieldsFor(id)
	out := make([]models.PositionRecord, 0, len(raw))

	for _, p := range raw {
		if len(p.Info) == 0 {
			continue
		}
		item := json.Get(p.Info)

		size := num(item.Get(f.size))
		if f.size == genericPositionFields.size && !has(item.Get(f.size)) {
			size = num(item.Get("amount"))
		}
		if size.IsZero() {
			continue
		}

		rec := models.PositionRecord{
			Symbol:     exchange.FromExchangeSymbol(item.Get(f.symbol).ToString()),
			Side:       normalizeSide(item.Get(f.side).ToString(), size),
			Amount:     size.Abs(),
			EntryPrice: num(item.Get(f.entry)),
			MarkPrice:  num(item.Get(f.mark)),
			Leverage:   num(item.Get(f.leverage)),
			Status:     models.PositionStatusOpen,
		}
		if v := item.Get(f.upnl); has(v) {
			upnl := num(v)
			rec.UnrealizedPnl = &upnl
		}
		if f.realized != "" {
			if v := item.Get(f.realized); has(v) {
				realized := num(v)
				rec.RealizedPnl = &realized
			}
		}
		if opened := millis(item.Get(f.opened)); opened != nil {
			rec.OpenedAt = opened
		}

		out = append(out, rec)
	}
	return out
}

// normalizeSide: buy/long -> long, sell/short -> short;
// net/both/пусто - по знаку размера
func normalizeSide(side string, size decimal.Decimal) string {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy", "long":
		return models.SideLong
	case "sell", "short":
		return models.SideShort
	}
	if size.IsNegative() {
		return models.SideShort
	}
	return models.SideLong
}

func millis(a jsoniter.Any) *time.Time {
	if !has(a) {
		return nil
	}
	ms := num(a).IntPart()
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}
