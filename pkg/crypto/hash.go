package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования секретов
var (
	ErrEmptySecret    = errors.New("secret cannot be empty")
	ErrSecretTooLong  = errors.New("secret exceeds maximum length of 72 bytes")
	ErrSecretMismatch = errors.New("secret does not match hash")
	ErrInvalidHash    = errors.New("invalid secret hash format")
)

// DefaultCost - стоимость bcrypt для секретов вебхуков
const DefaultCost = 12

// MaxSecretLength - предел bcrypt
const MaxSecretLength = 72

// HashSecret хеширует общий секрет вебхука (bcrypt).
// cost вне диапазона bcrypt приводится к границам.
func HashSecret(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret сравнивает секрет с bcrypt-хешем за постоянное время
func VerifySecret(secret, hash string) error {
	if secret == "" {
		return ErrEmptySecret
	}
	if hash == "" {
		return ErrInvalidHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrSecretMismatch
		}
		return ErrInvalidHash
	}
	return nil
}
