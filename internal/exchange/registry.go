package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"copytrade/internal/models"
	"copytrade/pkg/retry"
	"copytrade/pkg/utils"

	"go.uber.org/zap"
)

// BuildFunc создаёт нового клиента (Factory.Build)
type BuildFunc func(id ID, cred models.DecryptedCredential, accountType models.AccountType) (Client, error)

// Handle - закэшированный подготовленный клиент.
// Один Handle на (биржа, ключ, тип счёта); безопасен для конкурентного использования.
type Handle struct {
	Client
	lastUsed atomic.Int64
}

// LastUsed - время последней выдачи из реестра
func (h *Handle) LastUsed() time.Time {
	return time.Unix(0, h.lastUsed.Load())
}

func (h *Handle) touch() {
	h.lastUsed.Store(time.Now().UnixNano())
}

type registryKey struct {
	exchange    ID
	keyHash     string
	accountType models.AccountType
}

// registryEntry - слот кэша; ready закрывается после завершения Setup
type registryEntry struct {
	ready  chan struct{}
	handle *Handle
	err    error
}

// Registry кэширует клиентов так, что Setup выполняется один раз на ключ,
// а конкурентные запросы одного ключа ждут общую подготовку.
type Registry struct {
	build    BuildFunc
	retryCfg retry.Config
	logger   *utils.Logger

	mu      sync.Mutex
	entries map[registryKey]*registryEntry
}

// NewRegistry создаёт реестр поверх фабрики
func NewRegistry(build BuildFunc, retryCfg retry.Config) *Registry {
	return &Registry{
		build:    build,
		retryCfg: retryCfg,
		logger:   utils.L().WithComponent("exchange_registry"),
		entries:  make(map[registryKey]*registryEntry),
	}
}

func hashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Get возвращает готового клиента. Неизвестная биржа - ошибка конфигурации
// (UnsupportedExchangeError), отказ в авторизации не повторяется.
func (r *Registry) Get(ctx context.Context, id ID, cred models.DecryptedCredential, accountType models.AccountType) (Client, error) {
	key := registryKey{exchange: id, keyHash: hashKey(cred.APIKey), accountType: accountType}

	for {
		r.mu.Lock()
		entry, ok := r.entries[key]
		if !ok {
			entry = &registryEntry{ready: make(chan struct{})}
			r.entries[key] = entry
			r.mu.Unlock()

			r.initialize(ctx, key, entry, id, cred, accountType)
			if entry.err != nil {
				return nil, entry.err
			}
			entry.handle.touch()
			return entry.handle, nil
		}
		r.mu.Unlock()

		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if entry.err == nil {
			entry.handle.touch()
			return entry.handle, nil
		}
		// неудачная подготовка другого вызова: слот уже удалён, пробуем сами,
		// кроме ошибок, которые не исправит повтор
		if IsUnsupported(entry.err) || IsAuthError(entry.err) {
			return nil, entry.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (r *Registry) initialize(ctx context.Context, key registryKey, entry *registryEntry, id ID, cred models.DecryptedCredential, accountType models.AccountType) {
	client, err := r.build(id, cred, accountType)
	if err == nil {
		err = retry.Do(ctx, func() error {
			setupErr := client.Setup(ctx)
			if IsAuthError(setupErr) {
				return retry.Permanent(setupErr)
			}
			return setupErr
		}, r.retryCfg)
	}

	if err != nil {
		ClientSetups.WithLabelValues(string(id), outcomeLabel(err)).Inc()
		r.logger.Warn("client setup failed",
			utils.Exchange(string(id)),
			utils.AccountType(string(accountType)),
			zap.Error(err),
		)
		entry.err = err

		r.mu.Lock()
		if r.entries[key] == entry {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		close(entry.ready)
		return
	}

	ClientSetups.WithLabelValues(string(id), "ok").Inc()
	entry.handle = &Handle{Client: client}
	close(entry.ready)

	r.mu.Lock()
	CachedClients.Set(float64(r.readyCountLocked()))
	r.mu.Unlock()
}

func (r *Registry) readyCountLocked() int {
	n := 0
	for _, e := range r.entries {
		select {
		case <-e.ready:
			if e.err == nil {
				n++
			}
		default:
		}
	}
	return n
}

// Evict удаляет клиента ключа (например, после отказа в авторизации или
// замены секрета). Слот с незавершённой подготовкой тоже удаляется:
// уже ждущие вызовы получат его результат, но в кэше он не останется.
func (r *Registry) Evict(id ID, apiKey string, accountType models.AccountType) bool {
	key := registryKey{exchange: id, keyHash: hashKey(apiKey), accountType: accountType}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return false
	}

	delete(r.entries, key)
	ClientEvictions.WithLabelValues("evicted").Inc()
	CachedClients.Set(float64(r.readyCountLocked()))
	return true
}

// Prune удаляет клиентов, не использовавшихся дольше idle
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		select {
		case <-entry.ready:
		default:
			continue
		}
		if entry.handle != nil && entry.handle.LastUsed().Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	if removed > 0 {
		ClientEvictions.WithLabelValues("idle").Add(float64(removed))
		CachedClients.Set(float64(r.readyCountLocked()))
	}
	return removed
}

// Len - число готовых клиентов
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readyCountLocked()
}
