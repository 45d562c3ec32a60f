package exchange

import (
	"context"
	"sync"
	"time"
)

// TimeSync хранит смещение часов биржи относительно локальных.
// Подписанные запросы берут метку времени из Now().
type TimeSync struct {
	fetch func(ctx context.Context) (time.Time, error)

	mu       sync.RWMutex
	offset   time.Duration
	syncedAt time.Time
}

// NewTimeSync создаёт синхронизатор; fetch возвращает время сервера
func NewTimeSync(fetch func(ctx context.Context) (time.Time, error)) *TimeSync {
	return &TimeSync{fetch: fetch}
}

// Sync запрашивает время сервера и пересчитывает смещение.
// Задержка сети считается симметричной.
func (ts *TimeSync) Sync(ctx context.Context) error {
	if ts == nil || ts.fetch == nil {
		return nil
	}

	start := time.Now()
	serverTime, err := ts.fetch(ctx)
	if err != nil {
		return err
	}
	end := time.Now()

	local := start.Add(end.Sub(start) / 2)

	ts.mu.Lock()
	ts.offset = serverTime.Sub(local)
	ts.syncedAt = end
	ts.mu.Unlock()
	return nil
}

// Now возвращает локальное время, скорректированное на смещение
func (ts *TimeSync) Now() time.Time {
	if ts == nil {
		return time.Now()
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().Add(ts.offset)
}

// Offset возвращает текущее смещение
func (ts *TimeSync) Offset() time.Duration {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}

// SyncedAt - момент последней успешной синхронизации
func (ts *TimeSync) SyncedAt() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.syncedAt
}
