package exchange

import "strings"

var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "USD", "BTC", "ETH", "EUR"}

// Symbol - торговая пара в виде base/quote
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol разбирает BTCUSDT, BTC/USDT, BTC-USDT, BTC_USDT, BTC-USDT-SWAP
// и BTC/USDT:USDT. Без известной котируемой валюты считается USDT.
func ParseSymbol(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, "-SWAP")
	s = strings.TrimSuffix(s, ".P")

	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return Symbol{Base: parts[0], Quote: parts[1]}
		}
	}

	for _, q := range knownQuotes {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return Symbol{Base: strings.TrimSuffix(s, q), Quote: q}
		}
	}
	return Symbol{Base: s, Quote: "USDT"}
}

// Join склеивает пару через разделитель
func (s Symbol) Join(sep string) string {
	return s.Base + sep + s.Quote
}

// Compact - BTCUSDT
func (s Symbol) Compact() string {
	return s.Base + s.Quote
}

// FromExchangeSymbol приводит символ биржи к виду BTCUSDT
func FromExchangeSymbol(s string) string {
	if s == "" {
		return ""
	}
	return ParseSymbol(s).Compact()
}
