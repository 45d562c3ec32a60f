package utils

import (
	"errors"
	"fmt"
	"unicode"
)

// Ошибки валидации входных данных
var (
	ErrEmptySymbol = errors.New("symbol is empty")
	ErrEmptyAPIKey = errors.New("api key is empty")
)

const (
	minSymbolLength = 2
	maxSymbolLength = 30

	// ключи бирж - до ~100 символов (coinbase PEM длиннее)
	maxAPIKeyLength = 4096
)

// ValidateSymbol проверяет формат торгового символа.
//
// Допустимы латинские буквы, цифры и разделители "/", "-", "_", ":", ".",
// поэтому проходят BTCUSDT, BTC-USDT, BTC/USDT:USDT и BTCUSDT.P.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	if len(symbol) < minSymbolLength || len(symbol) > maxSymbolLength {
		return fmt.Errorf("symbol %q must be %d-%d characters long", symbol, minSymbolLength, maxSymbolLength)
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '/', r == '-', r == '_', r == ':', r == '.':
		default:
			return fmt.Errorf("symbol %q contains invalid character %q", symbol, r)
		}
	}
	return nil
}

// ValidateAPIKey - базовая проверка ключа или секрета биржи.
// Пробелы по краям должны быть убраны заранее. Переводы строк допустимы
// (PEM ключи Coinbase), прочие управляющие символы - нет.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrEmptyAPIKey
	}
	if len(key) > maxAPIKeyLength {
		return fmt.Errorf("api key exceeds %d bytes", maxAPIKeyLength)
	}
	for _, r := range key {
		if r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) {
			return errors.New("api key contains control characters")
		}
	}
	return nil
}
