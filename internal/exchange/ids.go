package exchange

import (
	"strings"

	"copytrade/internal/models"
)

// ID - идентификатор биржи. Множество значений закрыто: новые биржи
// добавляются сюда, в фабрику и в нормализатор одновременно.
type ID string

const (
	Binance     ID = "binance"
	BinanceUSDM ID = "binanceusdm"
	Bybit       ID = "bybit"
	OKX         ID = "okx"
	Bitget      ID = "bitget"
	Blofin      ID = "blofin"
	BingX       ID = "bingx"
	Coinbase    ID = "coinbase"
	Bitunix     ID = "bitunix" // заглушка без интеграции
)

var supported = []ID{Binance, BinanceUSDM, Bybit, OKX, Bitget, Blofin, BingX, Coinbase, Bitunix}

// Supported возвращает все известные биржи, включая заглушки
func Supported() []ID {
	out := make([]ID, len(supported))
	copy(out, supported)
	return out
}

// SupportedNames - то же в виде строк (для сообщений об ошибках)
func SupportedNames() []string {
	out := make([]string, len(supported))
	for i, id := range supported {
		out[i] = string(id)
	}
	return out
}

// ParseID нормализует имя биржи и проверяет, что оно известно
func ParseID(name string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range supported {
		if s == id {
			return id, nil
		}
	}
	return "", &UnsupportedExchangeError{ID: name}
}

// IsPlaceholder - биржа распознаётся, но интеграции нет
func (id ID) IsPlaceholder() bool {
	return id == Bitunix
}

// RequiresPassphrase - биржа подписывает запросы с passphrase
func (id ID) RequiresPassphrase() bool {
	switch id {
	case OKX, Bitget, Blofin:
		return true
	}
	return false
}

// SupportsAccountType сообщает, поддерживает ли интеграция тип счёта
func (id ID) SupportsAccountType(t models.AccountType) bool {
	switch id {
	case Coinbase:
		return t == models.AccountTypeSpot
	case BinanceUSDM, Blofin:
		return t == models.AccountTypeFutures
	case Bitunix:
		return false
	}
	return t == models.AccountTypeSpot || t == models.AccountTypeFutures
}

func (id ID) String() string {
	return string(id)
}
