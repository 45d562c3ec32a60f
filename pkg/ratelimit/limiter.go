// Package ratelimit ограничивает частоту запросов к REST API бирж.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limit - лимит одной категории: запросов в секунду и допустимый всплеск
type Limit struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// DefaultLimit применяется к категориям без явного лимита
var DefaultLimit = Limit{Rate: 10, Burst: 20}

// MultiLimiter держит token bucket на каждую категорию (обычно id биржи).
// Один ключ пользователя не должен съесть лимит всей биржи, поэтому
// категория может включать и хэш ключа, но по умолчанию лимит общий на биржу.
//
// Использование:
//
//	ml := NewMultiLimiter(map[string]Limit{"okx": {Rate: 20, Burst: 40}})
//	if err := ml.Wait(ctx, "okx"); err != nil { ... }
type MultiLimiter struct {
	mu       sync.Mutex
	limits   map[string]Limit
	limiters map[string]*rate.Limiter
}

// NewMultiLimiter создаёт лимитер с заданными лимитами категорий
func NewMultiLimiter(limits map[string]Limit) *MultiLimiter {
	ml := &MultiLimiter{
		limits:   make(map[string]Limit, len(limits)),
		limiters: make(map[string]*rate.Limiter),
	}
	for category, l := range limits {
		ml.limits[category] = normalize(l)
	}
	return ml
}

func normalize(l Limit) Limit {
	if l.Rate <= 0 {
		l.Rate = DefaultLimit.Rate
	}
	if l.Burst <= 0 {
		l.Burst = int(l.Rate * 2)
	}
	if l.Burst < 1 {
		l.Burst = 1
	}
	return l
}

// Set задаёт (или меняет) лимит категории
func (ml *MultiLimiter) Set(category string, l Limit) {
	l = normalize(l)

	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limits[category] = l
	if lim, ok := ml.limiters[category]; ok {
		lim.SetLimit(rate.Limit(l.Rate))
		lim.SetBurst(l.Burst)
	}
}

// Get возвращает limiter категории, создавая его при первом обращении
func (ml *MultiLimiter) Get(category string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if lim, ok := ml.limiters[category]; ok {
		return lim
	}

	l, ok := ml.limits[category]
	if !ok {
		l = normalize(DefaultLimit)
	}
	lim := rate.NewLimiter(rate.Limit(l.Rate), l.Burst)
	ml.limiters[category] = lim
	return lim
}

// Wait блокирует до получения токена или отмены контекста
func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	return ml.Get(category).Wait(ctx)
}

// Allow - неблокирующая проверка
func (ml *MultiLimiter) Allow(category string) bool {
	return ml.Get(category).Allow()
}
