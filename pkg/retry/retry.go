// Package retry - экспоненциальный повтор операций поверх cenkalti/backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config конфигурация повтора
type Config struct {
	// MaxAttempts - максимум попыток включая первую (0 = без ограничения)
	MaxAttempts uint

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64

	// MaxElapsed ограничивает общее время повторов (0 = без ограничения)
	MaxElapsed time.Duration

	// OnRetry вызывается перед каждой повторной попыткой
	OnRetry func(err error, delay time.Duration)
}

// DefaultConfig подходит для handshake с биржей: 3 попытки, 200ms → 400ms
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		MaxElapsed:   10 * time.Second,
	}
}

func (c Config) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialDelay > 0 {
		b.InitialInterval = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	if c.Multiplier > 0 {
		b.Multiplier = c.Multiplier
	}
	b.RandomizationFactor = c.JitterFactor
	return b
}

func (c Config) options() []backoff.RetryOption {
	opts := []backoff.RetryOption{backoff.WithBackOff(c.backOff())}
	if c.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(c.MaxAttempts))
	}
	if c.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(c.MaxElapsed))
	}
	if c.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(c.OnRetry))
	}
	return opts
}

// Do повторяет operation пока она не вернёт nil, постоянную ошибку
// или не исчерпается лимит попыток / контекст.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg.options()...)
	return err
}

// DoWithResult - Do для операций с результатом
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	return backoff.Retry(ctx, operation, cfg.options()...)
}

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent сообщает, помечена ли ошибка как постоянная
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
