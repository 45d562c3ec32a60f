package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// CipherPrefix помечает значения, зашифрованные Vault
const CipherPrefix = "enc:v1:"

// Параметры растяжения ключа из пароля (ENCRYPTION_KEY не 32 байта)
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var scryptSalt = []byte("copytrade/credential-vault/v1")

// Ошибки шифрования
var (
	ErrEmptyKey           = errors.New("encryption key is empty")
	ErrEmptyPlaintext     = errors.New("plaintext is empty")
	ErrMissingPrefix      = errors.New("value is not vault ciphertext")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// EncryptionError - значение не удалось зашифровать
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return "encrypt credential: " + e.Err.Error()
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// DecryptionError - значение не удалось расшифровать.
// Format=true означает, что значение вообще не похоже на шифротекст
// (нет префикса или битый base64), а не провал аутентификации.
type DecryptionError struct {
	Format bool
	Err    error
}

func (e *DecryptionError) Error() string {
	return "decrypt credential: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Vault шифрует и расшифровывает учётные данные бирж (AES-256-GCM).
//
// По умолчанию nonce случайный для каждого значения. В детерминированном
// режиме nonce выводится из HMAC-SHA256(ключ, plaintext), так что одинаковый
// plaintext даёт одинаковый шифротекст. Оба режима читаются одним Decrypt.
type Vault struct {
	aead          cipher.AEAD
	nonceKey      []byte
	deterministic bool
}

// VaultOption настраивает Vault
type VaultOption func(*Vault)

// WithDeterministicNonce включает детерминированный режим
func WithDeterministicNonce() VaultOption {
	return func(v *Vault) { v.deterministic = true }
}

// NewVault создаёт Vault. Ключ длиной 32 байта используется как есть,
// любой другой непустой растягивается через scrypt.
func NewVault(key string, opts ...VaultOption) (*Vault, error) {
	raw, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, raw)
	mac.Write([]byte("nonce"))

	v := &Vault{
		aead:     aead,
		nonceKey: mac.Sum(nil),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// DeriveKey возвращает 32-байтовый ключ AES-256
func DeriveKey(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if len(key) == 32 {
		return []byte(key), nil
	}
	return scrypt.Key([]byte(key), scryptSalt, scryptN, scryptR, scryptP, 32)
}

// Deterministic сообщает, включён ли детерминированный режим
func (v *Vault) Deterministic() bool {
	return v.deterministic
}

// Encrypt шифрует plaintext и возвращает "enc:v1:" + base64(nonce|ciphertext|tag)
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", &EncryptionError{Err: ErrEmptyPlaintext}
	}

	nonce := make([]byte, v.aead.NonceSize())
	if v.deterministic {
		mac := hmac.New(sha256.New, v.nonceKey)
		mac.Write([]byte(plaintext))
		copy(nonce, mac.Sum(nil))
	} else if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &EncryptionError{Err: err}
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return CipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt расшифровывает значение, созданное Encrypt
func (v *Vault) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, CipherPrefix) {
		return "", &DecryptionError{Format: true, Err: ErrMissingPrefix}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, CipherPrefix))
	if err != nil {
		return "", &DecryptionError{Format: true, Err: ErrInvalidCiphertext}
	}

	plaintext, err := v.open(data)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return plaintext, nil
}

// DecryptWithLegacyFallback расшифровывает значение, допуская записи,
// сохранённые до появления формата с префиксом:
//   - шифротекст Vault: обычная расшифровка, needsMigration=false;
//   - base64(nonce|ciphertext) без префикса: расшифровка, needsMigration=true;
//   - иначе значение считается открытым текстом, needsMigration=true.
//
// Значение с префиксом, не прошедшее аутентификацию, остаётся ошибкой.
func (v *Vault) DecryptWithLegacyFallback(value string) (plaintext string, needsMigration bool, err error) {
	plaintext, err = v.Decrypt(value)
	if err == nil {
		return plaintext, false, nil
	}

	var decErr *DecryptionError
	if !errors.As(err, &decErr) || !decErr.Format || strings.HasPrefix(value, CipherPrefix) {
		return "", false, err
	}
	if value == "" {
		return "", false, &DecryptionError{Format: true, Err: ErrEmptyPlaintext}
	}

	if data, b64Err := base64.StdEncoding.DecodeString(value); b64Err == nil {
		if legacy, openErr := v.open(data); openErr == nil {
			return legacy, true, nil
		}
	}
	return value, true, nil
}

func (v *Vault) open(data []byte) (string, error) {
	nonceSize := v.aead.NonceSize()
	if len(data) < nonceSize+v.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsCiphertext сообщает, имеет ли значение формат Vault
func IsCiphertext(value string) bool {
	return strings.HasPrefix(value, CipherPrefix)
}

// GenerateKey генерирует криптографически стойкий случайный ключ (32 байта для AES-256)
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
