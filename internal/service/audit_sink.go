package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"copytrade/internal/models"
	"copytrade/pkg/utils"

	"github.com/sourcegraph/conc"
)

const (
	defaultAuditBuffer       = 1024
	auditWriteTimeout        = 5 * time.Second
	auditRetentionRunTimeout = 30 * time.Second
)

// AuditSink пишет события аудита в журнал в фоне.
//
// Record никогда не блокирует вызывающего: при заполненной очереди событие
// отбрасывается и учитывается в метрике AuditDropped. Ошибки записи только
// логируются. Close дожидается записи всех событий, уже стоящих в очереди.
type AuditSink struct {
	repo   AuditRepositoryInterface
	queue  chan models.AuditEvent
	logger *utils.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	wg      conc.WaitGroup
}

// NewAuditSink создаёт sink и запускает фоновую запись
func NewAuditSink(repo AuditRepositoryInterface, buffer int) *AuditSink {
	if buffer <= 0 {
		buffer = defaultAuditBuffer
	}
	s := &AuditSink{
		repo:   repo,
		queue:  make(chan models.AuditEvent, buffer),
		logger: utils.L().WithComponent("audit"),
	}
	s.wg.Go(s.run)
	return s
}

// Record ставит событие в очередь
func (s *AuditSink) Record(event models.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop()
		return
	}

	select {
	case s.queue <- event:
	default:
		s.drop()
	}
}

func (s *AuditSink) drop() {
	s.dropped.Add(1)
	AuditDropped.Inc()
}

// Dropped возвращает число отброшенных событий
func (s *AuditSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close останавливает приём и дожидается записи очереди
func (s *AuditSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AuditSink) run() {
	for event := range s.queue {
		s.write(event)
	}
}

func (s *AuditSink) write(event models.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, &event); err != nil {
		s.logger.Warn("audit write failed",
			utils.String("kind", event.Kind),
			utils.Exchange(event.Exchange),
			utils.Err(err),
		)
	}
}

// Recent возвращает последние события пользователя (новые сверху).
// limit по умолчанию 100, не больше 500.
func (s *AuditSink) Recent(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.GetRecentByUser(ctx, userID, limit)
}

// RunRetention периодически удаляет события старше keep. Останавливается по ctx.
func (s *AuditSink) RunRetention(ctx context.Context, interval, keep time.Duration) {
	if interval <= 0 || keep <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx, keep)
		}
	}
}

func (s *AuditSink) purge(ctx context.Context, keep time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, auditRetentionRunTimeout)
	defer cancel()

	deleted, err := s.repo.DeleteOlderThan(ctx, time.Now().Add(-keep))
	if err != nil {
		s.logger.Warn("audit retention failed", utils.Err(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("audit events purged", utils.Int64("deleted", deleted))
	}
}

// userAudit - короткий конструктор события пользователя
func userAudit(kind, severity string, userID int64, exchange, message string, meta map[string]interface{}) models.AuditEvent {
	uid := userID
	return models.AuditEvent{
		Kind:     kind,
		Severity: severity,
		UserID:   &uid,
		Exchange: exchange,
		Message:  message,
		Meta:     meta,
	}
}
